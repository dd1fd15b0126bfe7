package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/vfxbuddies/buddies/internal/logger"
)

var (
	logLevel     string
	logFormat    string
	logFile      string
	logMaxSizeMB int64
	debug        bool

	logCloser io.Closer
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.StringFlag{
			Name:        "log-file",
			Usage:       "write JSON logs to a size-rotated file instead of stderr",
			Destination: &logFile,
		},
		&cli.Int64Flag{
			Name:        "log-max-size",
			Usage:       "rotate --log-file after this many megabytes",
			Value:       64,
			Destination: &logMaxSizeMB,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setupLogging builds the process logger from flags and the config file and
// stores it in the context for subcommands.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	applyLogConfig(cmd, LoadConfig())

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, err
	}
	if debug {
		level = slog.LevelDebug
	}

	log, closer, err := logger.Open(logger.Options{
		Format:    logger.Format(logFormat),
		Level:     level,
		File:      logFile,
		MaxSizeMB: int(logMaxSizeMB),
	})
	if err != nil {
		return ctx, err
	}
	logCloser = closer
	return logger.WithContext(ctx, log), nil
}

func closeLogging(ctx context.Context, cmd *cli.Command) error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}
