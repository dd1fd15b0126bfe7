package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/vfxbuddies/buddies/internal/api"
	"github.com/vfxbuddies/buddies/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxBody     int64
		ratePerSec  float64
		burst       int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the container inspection API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "largest accepted upload in bytes",
				Value:       api.DefaultMaxBodyBytes,
				Destination: &maxBody,
			},
			&cli.FloatFlag{
				Name:        "rate",
				Usage:       "inspections per second (negative disables limiting)",
				Value:       api.DefaultRatePerSecond,
				Destination: &ratePerSec,
			},
			&cli.Int64Flag{
				Name:        "burst",
				Usage:       "inspection burst size",
				Value:       api.DefaultBurst,
				Destination: &burst,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, LoadConfig(), &addr, &maxBody)

			server := api.NewServer(api.Config{
				MaxBodyBytes:  maxBody,
				RatePerSecond: ratePerSec,
				Burst:         int(burst),
				Log:           log.WithGroup("api"),
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
