package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/shishobooks/mp4chapters/pkg/chapters"
	"github.com/shishobooks/mp4chapters/pkg/config"
	"github.com/shishobooks/mp4chapters/pkg/mp4"
	"github.com/shishobooks/mp4chapters/pkg/version"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	graceful := signals.Setup()
	go func() {
		<-graceful
		cancel()
	}()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

// newApp builds the CLI. The config is loaded in Before, after flag parsing,
// so --help works and flags can override invalid file or environment values.
func newApp() *cli.App {
	cfg := &config.Config{}

	return &cli.App{
		Name:        "mp4chapters",
		Usage:       "list the chapters of MP4/M4A/M4B files",
		Description: "Reads QuickTime-style chapter tracks (text tracks) from MP4 files and prints their titles and timings.",
		Version:     version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "output format (text or json)",
				Value:   config.OutputFormatText,
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "number of tracks read in parallel per file",
				Value:   1,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn or error)",
				Value: "info",
			},
		},
		Before: func(c *cli.Context) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if c.IsSet("format") {
				loaded.OutputFormat = c.String("format")
			}
			if c.IsSet("workers") {
				loaded.TrackWorkers = c.Int("workers")
			}
			if c.IsSet("log-level") {
				loaded.LogLevel = c.String("log-level")
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "print the chapters of the given files",
				ArgsUsage: "<file>...",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("at least one file is required", 2)
					}

					ctx := logger.NewWithLevel(cfg.LogLevel).WithContext(c.Context)
					svc := chapters.NewService(cfg)

					results := make([]*chapters.FileChapters, 0, c.NArg())
					failed := 0
					for _, path := range c.Args().Slice() {
						result, err := svc.ExtractFile(ctx, path)
						if err != nil {
							failed++
							result = &chapters.FileChapters{Path: path, Chapters: []mp4.Chapter{}, Error: err.Error()}
						}
						results = append(results, result)
					}

					if err := chapters.Write(c.App.Writer, cfg.OutputFormat, results); err != nil {
						return err
					}
					if failed > 0 {
						return cli.Exit(fmt.Sprintf("%d of %d files failed", failed, len(results)), 1)
					}
					return nil
				},
			},
			{
				Name:      "scan",
				Usage:     "print the chapters of every MP4 file under a directory",
				ArgsUsage: "<dir>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("exactly one directory is required", 2)
					}

					ctx := logger.NewWithLevel(cfg.LogLevel).WithContext(c.Context)
					svc := chapters.NewService(cfg)

					results, err := svc.Scan(ctx, c.Args().First())
					if err != nil {
						return err
					}
					return chapters.Write(c.App.Writer, cfg.OutputFormat, results)
				},
			},
		},
	}
}
