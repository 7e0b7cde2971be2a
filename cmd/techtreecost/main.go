// techtreecost annotates War Thunder wiki tech trees with research and
// purchase costs.
//
// Usage:
//
//	techtreecost tree --source http --location https://wiki.warthunder.com/ground
//	techtreecost watch --source browser --location https://wiki.warthunder.com/ground
//	techtreecost unit us_m1_abrams germ_leopard_2a4
//	techtreecost serve --addr :8080
//	techtreecost cache list
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"TechTreeCost/internal/app"
	"TechTreeCost/internal/config"
	"TechTreeCost/internal/domain"
	"TechTreeCost/internal/logging"
)

func main() {
	cliApp := &cli.App{
		Name:  "techtreecost",
		Usage: "Show research and purchase costs on War Thunder wiki tech trees",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to YAML configuration",
				EnvVars: []string{"TECHTREECOST_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "cache",
				Usage: "Cache DSN: SQLite path or postgres:// URL",
			},
		},
		Commands: []*cli.Command{
			treeCommand(),
			watchCommand(),
			unitCommand(),
			serveCommand(),
			cacheCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "Page source (file, http, browser)",
		},
		&cli.StringFlag{
			Name:    "location",
			Aliases: []string{"l"},
			Usage:   "File path or URL of the tree page",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write the annotated page here instead of stdout",
		},
		&cli.BoolFlag{
			Name:  "no-total",
			Usage: "Do not render the sum over all ranks",
		},
	}
}

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Annotate a tree page once and print rank sums",
		Flags: sourceFlags(),
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.Application) error {
				report, err := a.RunTree(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(c.App.ErrWriter, report.Summary())
				return a.NotifyReport(ctx, report)
			})
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Keep a tree page annotated while it changes",
		Flags: sourceFlags(),
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.Application) error {
				return a.Watch(ctx)
			})
		},
	}
}

func unitCommand() *cli.Command {
	return &cli.Command{
		Name:      "unit",
		Usage:     "Print the costs of individual units",
		ArgsUsage: "<unit-id>...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one unit id is required")
			}
			return withApp(c, func(ctx context.Context, a *app.Application) error {
				costs, err := a.Units(ctx, c.Args().Slice())
				if err != nil {
					return err
				}
				for _, uc := range costs {
					status := "fetched"
					switch {
					case uc.Cached:
						status = "cached"
					case !uc.Resolved:
						status = "unresolved"
					}
					fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", uc.UnitID, domain.Badge(uc.Record), status)
				}
				return nil
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve unit costs over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
			},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.Application) error {
				return a.Serve(ctx)
			})
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the cost cache",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached unit ids",
				Action: func(c *cli.Context) error {
					return withApp(c, func(ctx context.Context, a *app.Application) error {
						ids, err := a.CachedUnits(ctx)
						if err != nil {
							return err
						}
						for _, id := range ids {
							fmt.Fprintln(c.App.Writer, id)
						}
						return nil
					})
				},
			},
		},
	}
}

func withApp(c *cli.Context, run func(ctx context.Context, a *app.Application) error) error {
	cfg := loadConfig(c)
	logger := logging.NewWithWriter(cfg.Logging.Level, c.App.ErrWriter)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger, c.App.Writer)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	return run(ctx, application)
}

func loadConfig(c *cli.Context) config.Config {
	cfg := config.LoadFile(c.String("config"))

	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String("cache"); v != "" {
		cfg.Cache.DSN = v
	}
	if c.IsSet("source") {
		cfg.Source.Kind = c.String("source")
	}
	if c.IsSet("location") {
		cfg.Source.Location = c.String("location")
	}
	if c.IsSet("output") {
		cfg.Output.Path = c.String("output")
	}
	if c.Bool("no-total") {
		off := false
		cfg.Render.ShowTotal = &off
	}
	if v := c.String("addr"); v != "" {
		cfg.Server.Addr = v
	}
	return cfg
}
