package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/standardbeagle/themescan/internal/config"
	"github.com/standardbeagle/themescan/internal/debug"
	"github.com/standardbeagle/themescan/internal/mcp"
	"github.com/standardbeagle/themescan/internal/server"
)

// serveCommand starts the HTTP scan server and blocks until it is told to stop
func serveCommand(c *cli.Context) error {
	cfg, err := loadStoreConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Shopify client: %w", err)
	}
	srv, err := server.NewScanServer(cfg, backend)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if !c.Bool("no-watch") {
		path := watchPath(c.String("config"), cfg.Project.Root)
		if err := srv.WatchConfig(path); err != nil {
			// Serving without hot reload is still useful
			debug.Component("cli").Warn("config watching disabled", zap.String("path", path), zap.Error(err))
		}
	}

	fmt.Fprintf(c.App.Writer, "Scan server listening on http://%s\n", srv.Addr())
	fmt.Fprintf(c.App.Writer, "Store: %s\n", cfg.Store.Domain)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		fmt.Fprintf(c.App.Writer, "\nReceived signal %v, shutting down...\n", sig)
	case <-c.Context.Done():
	case <-srv.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "Scan server stopped")
	return nil
}

// watchPath is the config file a server reloads from
func watchPath(configPath, root string) string {
	if configPath == "" || configPath == config.FileName {
		return filepath.Join(root, config.FileName)
	}
	return configPath
}

// mcpCommand serves the scan tools over stdio
func mcpCommand(c *cli.Context) error {
	debug.SetMCPMode(true)
	logger := debug.Component("cli")

	cfg, err := loadStoreConfig(c)
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return err
	}
	backend, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Shopify client: %w", err)
	}
	mcpServer, err := mcp.NewServer(cfg, backend)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer mcpServer.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mcpServer.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Error("MCP server error", zap.Error(err))
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// statusCommand lists the recent scans of a running server
func statusCommand(c *cli.Context) error {
	addr, err := remoteAddr(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	client := server.NewClient(addr)
	ping, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("no scan server at %s: %w", addr, err)
	}
	status, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Server %s (version %s, store %s, up %s)\n",
		addr, ping.Version, ping.Store, (time.Duration(ping.Uptime) * time.Second).String())
	for _, a := range status.Active {
		fmt.Fprintf(w, "Running: %s %s since %s\n", a.Type, a.ID, a.StartedAt)
	}
	if len(status.Scans) == 0 {
		fmt.Fprintln(w, "No finished scans")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tTHEME\tFOUND\tSCANNED\tDURATION")
	for _, s := range status.Scans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d/%d\t%dms\n",
			s.ID, s.Type, s.Status, s.ThemeID, s.Found, s.Scanned, s.Assets, s.DurationMs)
	}
	return tw.Flush()
}
