package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/standardbeagle/themescan/internal/config"
	"github.com/standardbeagle/themescan/internal/debug"
	"github.com/standardbeagle/themescan/internal/server"
	"github.com/standardbeagle/themescan/internal/shopify"
	"github.com/standardbeagle/themescan/internal/version"
)

// newBackend connects to the store named in cfg. Tests replace it with a fake.
var newBackend = func(cfg *config.Config) (server.Backend, error) {
	client, err := shopify.NewClient(server.ClientOptions(cfg))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")

	cfg, err := config.LoadEnvironment(configPath, c.String("env"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludeFlags...)
	}
	if store := c.String("store"); store != "" {
		cfg.Store.Domain = store
	}
	return cfg, nil
}

// loadStoreConfig loads configuration for a command that talks to the store
func loadStoreConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	validator := &config.Validator{RequireStore: true}
	if err := validator.ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the process logger. MCP mode additionally logs to a
// file because the client usually swallows stderr.
func setupLogging(c *cli.Context) error {
	opts := debug.Options{Verbose: c.Bool("verbose")}
	if c.Args().First() == "mcp" {
		debug.SetMCPMode(true)
		if path, err := debug.DefaultLogFile(); err == nil {
			opts.LogFile = path
		}
	}

	logger, err := debug.NewLogger(opts)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	debug.SetLogger(logger)
	debug.L().Debug("logger initialized", zap.String("version", version.Version))
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "themescan",
		Usage:                  "Find which store definitions a Shopify theme actually uses",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   config.FileName,
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "shopify.theme.toml environment to read store settings from",
				EnvVars: []string{"THEMESCAN_ENV"},
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Store domain (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Only scan asset keys matching glob patterns (e.g., --include 'sections/**')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip asset keys matching glob patterns (e.g., --exclude 'templates/customers/**')",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log debug information to stderr",
			},
		},
		Before: setupLogging,
		After: func(c *cli.Context) error {
			debug.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "scan",
				Aliases:   []string{"s"},
				Usage:     "Scan a theme for references of one type",
				ArgsUsage: "[type]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "metafields, metaobjects, menus, templates or sections",
					},
					&cli.Int64Flag{
						Name:  "theme-id",
						Usage: "Theme to scan (default: configured theme, then the published theme)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, json, yaml or ndjson",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:  "remote",
						Usage: "Run the scan on a themescan server at this address",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Assets fetched concurrently per batch (default from config)",
					},
					&cli.IntFlag{
						Name:  "delay-ms",
						Usage: "Pause between batches in milliseconds (default from config)",
						Value: -1,
					},
				},
				Action: scanCommand,
			},
			{
				Name:  "serve",
				Usage: "Serve scans over HTTP as NDJSON streams",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Aliases: []string{"a"},
						Usage:   "Listen address (default from config)",
					},
					&cli.BoolFlag{
						Name:  "no-watch",
						Usage: "Do not reload scan settings when the config file changes",
					},
				},
				Action: serveCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Start the MCP server on stdio",
				Action: mcpCommand,
			},
			{
				Name:  "status",
				Usage: "Show recent scans of a running server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "remote",
						Usage: "Server address (default from config)",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: statusCommand,
			},
			{
				Name:  "config",
				Usage: "Configuration management",
				Subcommands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Show the effective configuration",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "format",
								Usage: "Output format: kdl, yaml or table",
								Value: "kdl",
							},
						},
						Action: configShowCommand,
					},
					{
						Name:  "init",
						Usage: "Write a starter " + config.FileName,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "output",
								Aliases: []string{"o"},
								Usage:   "Output file",
								Value:   config.FileName,
							},
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Overwrite an existing file",
							},
						},
						Action: configInitCommand,
					},
				},
			},
			{
				Name:  "version",
				Usage: "Show version and build information",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version.FullInfo())
					fmt.Fprintf(c.App.Writer, "build id: %s\n", version.BuildID())
					return nil
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
