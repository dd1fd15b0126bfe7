package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/vfxbuddies/buddies/internal/channelmap"
)

func channelMapCmd() *cli.Command {
	var path string

	return &cli.Command{
		Name:  "channel-map",
		Usage: "Print the host/channel name table as YAML",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "table to load and merge over the defaults",
				Destination: &path,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			table := channelmap.Default()
			if path != "" {
				var err error
				if table, err = channelmap.Load(path); err != nil {
					return err
				}
			}
			out, err := table.Marshal()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(os.Stdout, string(out))
			return err
		},
	}
}
