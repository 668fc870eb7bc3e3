package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/standardbeagle/themescan/internal/config"
	scanerrors "github.com/standardbeagle/themescan/internal/errors"
	"github.com/standardbeagle/themescan/internal/scan"
	"github.com/standardbeagle/themescan/internal/server"
	"github.com/standardbeagle/themescan/internal/types"
)

// scanOutput is what json and yaml output print
type scanOutput struct {
	ID         string             `json:"id"`
	Type       types.ScanType     `json:"type"`
	ThemeID    int64              `json:"theme_id"`
	Status     types.ScanStatus   `json:"status"`
	References int                `json:"references,omitempty"`
	Results    interface{}        `json:"results"`
	Summary    *types.ScanSummary `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`
}

var scanFormats = []string{"text", "json", "yaml", "ndjson"}

// scanCommand runs one scan locally or on a remote server and prints the result
func scanCommand(c *cli.Context) error {
	format := strings.ToLower(c.String("format"))
	if !validFormat(format) {
		return fmt.Errorf("unsupported format %q (use %s)", format, strings.Join(scanFormats, ", "))
	}

	typeName := c.String("type")
	if typeName == "" {
		typeName = c.Args().First()
	}
	scanType, err := types.ParseScanType(typeName)
	if err != nil {
		return err
	}

	if c.IsSet("batch-size") && c.Int("batch-size") < 1 {
		return fmt.Errorf("invalid --batch-size %d", c.Int("batch-size"))
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if remote := c.String("remote"); remote != "" {
		return remoteScan(ctx, c, remote, scanType, format)
	}
	return localScan(ctx, c, scanType, format)
}

func validFormat(format string) bool {
	for _, f := range scanFormats {
		if f == format {
			return true
		}
	}
	return false
}

func localScan(ctx context.Context, c *cli.Context, scanType types.ScanType, format string) error {
	cfg, err := loadStoreConfig(c)
	if err != nil {
		return err
	}
	backend, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Shopify client: %w", err)
	}

	configured := c.Int64("theme-id")
	if configured == 0 {
		configured = cfg.Store.ThemeID
	}
	themeID, err := backend.ResolveThemeID(ctx, configured)
	if err != nil {
		return scanerrors.NewScanError(scanerrors.ErrorTypeTheme, scanType, types.StatusInit, err)
	}

	req := scan.Request{Type: scanType, ThemeID: themeID, Throughput: throughputOverride(c)}
	engine := scan.NewEngine(backend, server.EngineOptions(cfg), nil)

	out := c.App.Writer
	enc := json.NewEncoder(out)
	res := engine.Run(ctx, req, func(p types.ScanProgress) {
		switch format {
		case "ndjson":
			_ = enc.Encode(p)
		case "text":
			if !p.IsTerminal() {
				fmt.Fprintf(c.App.ErrWriter, "[%3d%%] %s\n", p.Progress, p.Message)
			}
		}
	})

	if format != "ndjson" {
		summary := res.Summary()
		result := scanOutput{
			ID:         res.ID,
			Type:       res.Type,
			ThemeID:    res.ThemeID,
			Status:     summary.Status,
			References: res.References,
			Results:    res.Payload(),
			Summary:    &summary,
			Error:      summary.Error,
		}
		if err := printScan(out, format, result); err != nil {
			return err
		}
	}
	if res.Err != nil {
		return fmt.Errorf("scan failed: %w", res.Err)
	}
	return nil
}

func remoteScan(ctx context.Context, c *cli.Context, addr string, scanType types.ScanType, format string) error {
	params := server.ScanParams{
		Type:      scanType,
		ThemeID:   c.Int64("theme-id"),
		BatchSize: -1,
		DelayMs:   c.Int("delay-ms"),
	}
	if c.IsSet("batch-size") {
		params.BatchSize = c.Int("batch-size")
	}

	out := c.App.Writer
	client := server.NewClient(addr)
	id, final, err := client.Scan(ctx, params, func(f server.Frame) {
		switch format {
		case "ndjson":
			_ = json.NewEncoder(out).Encode(f)
		case "text":
			if !f.IsTerminal() {
				fmt.Fprintf(c.App.ErrWriter, "[%3d%%] %s\n", f.Progress, f.Message)
			}
		}
	})
	if err != nil {
		return err
	}

	if format != "ndjson" {
		progress := final.ToProgress(scanType)
		result := scanOutput{
			ID:      id,
			Type:    scanType,
			ThemeID: params.ThemeID,
			Status:  final.Status,
			Results: progress.Results,
			Error:   final.Error,
		}
		if err := printScan(out, format, result); err != nil {
			return err
		}
	}
	if final.Status == types.StatusError {
		return fmt.Errorf("scan failed: %s", final.Error)
	}
	return nil
}

// throughputOverride builds a per-scan throughput from --batch-size and --delay-ms
func throughputOverride(c *cli.Context) *scan.Throughput {
	if !c.IsSet("batch-size") && c.Int("delay-ms") < 0 {
		return nil
	}
	tp := scan.Throughput{Delay: -1}
	if c.IsSet("batch-size") {
		tp.BatchSize = c.Int("batch-size")
	}
	if ms := c.Int("delay-ms"); ms >= 0 {
		tp.Delay = time.Duration(ms) * time.Millisecond
	}
	return &tp
}

func printScan(w io.Writer, format string, result scanOutput) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		return printYAML(w, result)
	default:
		return printScanText(w, result)
	}
}

// printYAML goes through JSON so the YAML keys match the JSON field names
func printYAML(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func printScanText(w io.Writer, result scanOutput) error {
	if result.Status == types.StatusError {
		fmt.Fprintf(w, "Scan %s failed: %s\n", result.Type, result.Error)
	}

	switch results := result.Results.(type) {
	case []types.SectionDescriptor:
		return printSections(w, results)
	case []string:
		printKeys(w, result, results)
	}
	return nil
}

func printKeys(w io.Writer, result scanOutput, keys []string) {
	if result.References > 0 {
		fmt.Fprintf(w, "%d of %d %s referenced by theme %d\n", len(keys), result.References, result.Type, result.ThemeID)
	} else {
		fmt.Fprintf(w, "%d %s referenced\n", len(keys), result.Type)
	}
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\n", k)
	}
}

func printSections(w io.Writer, sections []types.SectionDescriptor) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tNAME\tUSES\tASSIGNED IN")
	for _, s := range sections {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.FileName, s.SchemaName, s.AssignmentCount, strings.Join(s.Assignments, ", "))
	}
	return tw.Flush()
}

// remoteAddr is the server address for commands that talk to a running server
func remoteAddr(c *cli.Context) (string, error) {
	if addr := c.String("remote"); addr != "" {
		return addr, nil
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return "", err
	}
	if cfg.Server.Addr == "" {
		return config.DefaultServerAddr, nil
	}
	return cfg.Server.Addr, nil
}
