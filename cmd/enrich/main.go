package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "enrich",
		Usage: "Look up every row of a product sheet without the HTTP server",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Process one .xlsx or .csv file and write the annotated copy",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "path to an env file",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "input sheet (.xlsx or .csv)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "backend",
						Usage: "lookup backend: browser or llm",
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "directory for the result file",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "rows per batch window",
					},
				},
				Action: runAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
