// Command vibestream runs the mood playlist service and its maintenance
// commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:   "vibestream",
		Usage:  "Generate mood playlists and recommend tracks",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending database migrations",
				Action: migrate,
			},
			{
				Name:   "reconcile",
				Usage:  "Recompute track counts for every playlist",
				Action: reconcile,
			},
			{
				Name:  "generate",
				Usage: "Generate a playlist for a user",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "Owner user ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "mood",
						Aliases:  []string{"m"},
						Usage:    "Mood to generate for",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:    "genre",
						Aliases: []string{"g"},
						Usage:   "Genre tag to attach (repeatable)",
					},
				},
				Action: generate,
			},
			{
				Name:   "moods",
				Usage:  "List the moods with their own seed tracks",
				Action: moods,
			},
		},
	}

	return app.Run(ctx, args)
}
