package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/vfxbuddies/buddies/internal/channelmap"
	"github.com/vfxbuddies/buddies/internal/convert"
	"github.com/vfxbuddies/buddies/internal/inspect"
	"github.com/vfxbuddies/buddies/internal/logger"
	"github.com/vfxbuddies/buddies/internal/xform"
)

type convertFlags struct {
	in               string
	out              string
	channelMap       string
	upAxis           string
	fromAxis         string
	scale            float64
	workers          int64
	noIntegrityCheck bool
	cornerSplit      bool
}

func convertCmd() *cli.Command {
	var o convertFlags

	return &cli.Command{
		Name:  "convert",
		Usage: "Convert between Bgeo geometry and PRT particles (direction follows the input format)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "input container", Destination: &o.in, Required: true},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output container", Destination: &o.out, Required: true},
			&cli.StringFlag{Name: "channel-map", Usage: "YAML host/channel name table", Destination: &o.channelMap},
			&cli.StringFlag{Name: "up-axis", Usage: "up axis of the output (y, z); defaults to the input's", Destination: &o.upAxis},
			&cli.StringFlag{Name: "from-axis", Usage: "up axis of the input (y, z); defaults to y for Bgeo and z for PRT", Destination: &o.fromAxis},
			&cli.FloatFlag{Name: "scale", Usage: "uniform scale applied to positions", Value: 1, Destination: &o.scale},
			&cli.Int64Flag{Name: "workers", Usage: "transform workers (0 = GOMAXPROCS)", Destination: &o.workers},
			&cli.BoolFlag{Name: "no-integrity-check", Usage: "tolerate non-triangle primitives when reading Bgeo", Destination: &o.noIntegrityCheck},
			&cli.BoolFlag{Name: "corner-split", Usage: "write per-corner vertex attributes as _corner0..2 columns", Destination: &o.cornerSplit},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyConvertConfig(cmd, LoadConfig(), &o)

			format, err := sniffFile(o.in)
			if err != nil {
				return err
			}
			opts, err := o.options(format, log)
			if err != nil {
				return err
			}

			start := time.Now()
			var rep convert.Report
			switch format {
			case inspect.FormatBgeo:
				rep, err = convert.BgeoToPRT(ctx, o.in, o.out, opts)
			case inspect.FormatPRT:
				rep, err = convert.PRTToBgeo(ctx, o.in, o.out, opts)
			}
			if err != nil {
				return fmt.Errorf("convert %s: %w", o.in, err)
			}

			size := int64(-1)
			if st, err := os.Stat(o.out); err == nil {
				size = st.Size()
			}
			log.Info("converted",
				"in", o.in,
				"out", o.out,
				"points", humanize.Comma(rep.Points),
				"channels", len(rep.Channels),
				"skipped", len(rep.Skipped),
				"size", humanize.Bytes(uint64(max(size, 0))),
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return nil
		},
	}
}

// options resolves the flag values into conversion options for an input of
// the given format.
func (o convertFlags) options(format inspect.Format, log logger.Logger) (convert.Options, error) {
	from := o.fromAxis
	if from == "" {
		from = xform.AxisY.String()
		if format == inspect.FormatPRT {
			from = xform.AxisZ.String()
		}
	}
	to := o.upAxis
	if to == "" {
		to = from
	}
	fromAxis, err := xform.ParseAxis(from)
	if err != nil {
		return convert.Options{}, err
	}
	toAxis, err := xform.ParseAxis(to)
	if err != nil {
		return convert.Options{}, err
	}

	table := channelmap.Default()
	if o.channelMap != "" {
		if table, err = channelmap.Load(o.channelMap); err != nil {
			return convert.Options{}, err
		}
	}
	return convert.Options{
		Map:            table,
		Transform:      xform.Transform{Scale: float32(o.scale), From: fromAxis, To: toAxis},
		Workers:        int(o.workers),
		IntegrityCheck: !o.noIntegrityCheck,
		CornerSplit:    o.cornerSplit,
		Log:            log,
	}, nil
}

func sniffFile(path string) (inspect.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return inspect.FormatUnknown, err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, inspect.SniffSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return inspect.FormatUnknown, err
	}
	format := inspect.Sniff(head[:n])
	if format == inspect.FormatUnknown {
		return format, fmt.Errorf("%w: %s", inspect.ErrUnknownFormat, path)
	}
	return format, nil
}
