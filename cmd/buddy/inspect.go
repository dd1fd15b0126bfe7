package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/vfxbuddies/buddies/internal/inspect"
	"github.com/vfxbuddies/buddies/internal/logger"
)

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the layout of Bgeo or PRT containers",
		ArgsUsage: "<file> [file...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print summaries as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				return fmt.Errorf("inspect: at least one file is required")
			}

			var failed int
			for _, path := range paths {
				s, err := inspect.File(path)
				if err != nil {
					log.Error("inspect failed", "path", path, "error", err)
					failed++
					continue
				}
				if asJSON {
					err = printSummaryJSON(os.Stdout, path, s)
				} else {
					err = printSummary(os.Stdout, path, s)
				}
				if err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("inspect: %d of %d files failed", failed, len(paths))
			}
			return nil
		},
	}
}

func printSummaryJSON(w io.Writer, path string, s *inspect.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Path string `json:"path"`
		*inspect.Summary
	}{path, s})
}

func printSummary(w io.Writer, path string, s *inspect.Summary) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("%s\n", path)
	printf("  format:   %s v%d\n", s.Format, s.Version)
	printf("  size:     %s\n", humanize.Bytes(uint64(s.Size)))
	switch s.Format {
	case inspect.FormatBgeo:
		printf("  points:   %s\n", humanize.Comma(s.Points))
		printf("  prims:    %s\n", humanize.Comma(s.Prims))
		if s.Dropped > 0 {
			printf("  dropped:  %s non-triangle primitives\n", humanize.Comma(int64(s.Dropped)))
		}
		printf("  indices:  %d bytes\n", s.IndexWidth)
		if len(s.Attributes) > 0 {
			printf("  attributes:\n")
		}
		for _, a := range s.Attributes {
			printf("    %-9s %-16s %s[%d]\n", a.Class, a.Name, a.Type, a.Arity)
		}
	case inspect.FormatPRT:
		printf("  particles: %s\n", humanize.Comma(s.Particles))
		printf("  stride:    %d bytes (%s unpacked)\n", s.Stride, humanize.Bytes(uint64(s.Particles)*uint64(s.Stride)))
		printf("  channels:\n")
		for _, c := range s.Channels {
			printf("    %-16s %s[%d] @%d\n", c.Name, c.Type, c.Arity, c.Offset)
		}
	}
	return err
}
