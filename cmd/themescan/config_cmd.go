package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/themescan/internal/config"
	"github.com/standardbeagle/themescan/internal/types"
)

const starterConfig = `// themescan configuration

store {
    domain "my-shop.myshopify.com"
    // theme_id 123456789        // default: the published theme
    // access_token "shpat_..."  // or THEMESCAN_ACCESS_TOKEN, or shopify.theme.toml
    api_version "%s"
}

fetch {
    max_attempts 5               // listing and enumeration requests
    content_max_attempts 3       // per-asset content requests
    base_delay_ms 500            // first retry delay, doubled each attempt
    request_timeout_sec 30
}

scan {
    batch_size %d                 // concurrent asset fetches
    delay_ms %d                 // pause between batches
    timeout_sec 900
    max_json_depth %d

    // Per-type throughput
    // sections {
    //     batch_size 4
    // }
}

enumerate {
    page_size %d
    max_definitions %d
    max_menus %d
}

server {
    addr "%s"
}

// Asset keys to skip (doublestar globs)
exclude {
    // "templates/customers/**"
}
`

// configInitCommand writes a starter config file
func configInitCommand(c *cli.Context) error {
	output := c.String("output")
	if !c.Bool("force") {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("configuration file %s already exists (use --force to overwrite)", output)
		}
	}

	content := fmt.Sprintf(starterConfig,
		config.DefaultAPIVersion,
		types.DefaultBatchSize,
		types.DefaultDelayMs,
		types.DefaultMaxJSONDepth,
		types.DefaultPageSize,
		types.DefaultMaxDefinitions,
		types.DefaultMaxMenus,
		config.DefaultServerAddr,
	)
	if err := os.WriteFile(output, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Configuration file created: %s\n", output)
	fmt.Fprintf(c.App.Writer, "Set store.domain, then provide a token with THEMESCAN_ACCESS_TOKEN or shopify.theme.toml.\n")
	return nil
}

// configShowCommand prints the effective configuration
func configShowCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	if err := config.NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return err
	}

	switch c.String("format") {
	case "table":
		displayConfigTable(c.App.Writer, cfg)
		return nil
	case "yaml":
		return printYAML(c.App.Writer, configView(cfg))
	case "kdl", "":
		fmt.Fprint(c.App.Writer, configToKDL(cfg))
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", c.String("format"))
	}
}

// maskToken keeps enough of a token to tell tokens apart
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if i := strings.Index(token, "_"); i >= 0 && i < len(token)-1 {
		return token[:i+1] + "****"
	}
	return "****"
}

func sortedOverrideTypes(overrides map[types.ScanType]config.Throughput) []types.ScanType {
	out := make([]types.ScanType, 0, len(overrides))
	for t := range overrides {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func configToKDL(cfg *config.Config) string {
	var b strings.Builder
	b.WriteString("// Effective themescan configuration\n\n")

	fmt.Fprintf(&b, "project {\n    root %q\n", cfg.Project.Root)
	if cfg.Project.Environment != "" {
		fmt.Fprintf(&b, "    environment %q\n", cfg.Project.Environment)
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(&b, "store {\n    domain %q\n", cfg.Store.Domain)
	if cfg.Store.ThemeID != 0 {
		fmt.Fprintf(&b, "    theme_id %d\n", cfg.Store.ThemeID)
	}
	if cfg.Store.AccessToken != "" {
		fmt.Fprintf(&b, "    access_token %q\n", maskToken(cfg.Store.AccessToken))
	}
	fmt.Fprintf(&b, "    api_version %q\n}\n\n", cfg.Store.APIVersion)

	fmt.Fprintf(&b, "fetch {\n    max_attempts %d\n    content_max_attempts %d\n    base_delay_ms %d\n    request_timeout_sec %d\n}\n\n",
		cfg.Fetch.MaxAttempts, cfg.Fetch.ContentMaxAttempts, cfg.Fetch.BaseDelayMs, cfg.Fetch.RequestTimeoutSec)

	fmt.Fprintf(&b, "scan {\n    batch_size %d\n    delay_ms %d\n    timeout_sec %d\n    max_json_depth %d\n",
		cfg.Scan.BatchSize, cfg.Scan.DelayMs, cfg.Scan.TimeoutSec, cfg.Scan.MaxJSONDepth)
	for _, t := range sortedOverrideTypes(cfg.Scan.Overrides) {
		tp := cfg.Scan.Overrides[t]
		fmt.Fprintf(&b, "    %s {\n        batch_size %d\n        delay_ms %d\n    }\n", t, tp.BatchSize, tp.DelayMs)
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(&b, "enumerate {\n    page_size %d\n    max_definitions %d\n    max_menus %d\n}\n\n",
		cfg.Enumerate.PageSize, cfg.Enumerate.MaxDefinitions, cfg.Enumerate.MaxMenus)

	fmt.Fprintf(&b, "server {\n    addr %q\n    max_summaries %d\n}\n\n", cfg.Server.Addr, cfg.Server.MaxSummaries)

	b.WriteString(formatKDLStringArray("include", cfg.Include))
	b.WriteString("\n\n")
	b.WriteString(formatKDLStringArray("exclude", cfg.Exclude))
	b.WriteString("\n")
	return b.String()
}

func formatKDLStringArray(section string, items []string) string {
	if len(items) == 0 {
		return section + " {\n    // No items\n}"
	}

	result := section + " {\n"
	for _, item := range items {
		result += fmt.Sprintf("    %q\n", item)
	}
	result += "}"
	return result
}

// configView is the YAML shape of a config, with the token masked
func configView(cfg *config.Config) map[string]interface{} {
	overrides := map[string]interface{}{}
	for t, tp := range cfg.Scan.Overrides {
		overrides[t.String()] = map[string]int{"batch_size": tp.BatchSize, "delay_ms": tp.DelayMs}
	}
	return map[string]interface{}{
		"project": map[string]string{"root": cfg.Project.Root, "environment": cfg.Project.Environment},
		"store": map[string]interface{}{
			"domain":       cfg.Store.Domain,
			"theme_id":     cfg.Store.ThemeID,
			"access_token": maskToken(cfg.Store.AccessToken),
			"api_version":  cfg.Store.APIVersion,
		},
		"fetch": map[string]int{
			"max_attempts":         cfg.Fetch.MaxAttempts,
			"content_max_attempts": cfg.Fetch.ContentMaxAttempts,
			"base_delay_ms":        cfg.Fetch.BaseDelayMs,
			"request_timeout_sec":  cfg.Fetch.RequestTimeoutSec,
		},
		"scan": map[string]interface{}{
			"batch_size":     cfg.Scan.BatchSize,
			"delay_ms":       cfg.Scan.DelayMs,
			"timeout_sec":    cfg.Scan.TimeoutSec,
			"max_json_depth": cfg.Scan.MaxJSONDepth,
			"overrides":      overrides,
		},
		"enumerate": map[string]int{
			"page_size":       cfg.Enumerate.PageSize,
			"max_definitions": cfg.Enumerate.MaxDefinitions,
			"max_menus":       cfg.Enumerate.MaxMenus,
		},
		"server":  map[string]interface{}{"addr": cfg.Server.Addr, "max_summaries": cfg.Server.MaxSummaries},
		"include": cfg.Include,
		"exclude": cfg.Exclude,
	}
}

func displayConfigTable(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "themescan Configuration\n")
	fmt.Fprintf(w, "=======================\n\n")

	fmt.Fprintf(w, "Store:\n")
	fmt.Fprintf(w, "  Domain:            %s\n", cfg.Store.Domain)
	if cfg.Store.ThemeID != 0 {
		fmt.Fprintf(w, "  Theme:             %d\n", cfg.Store.ThemeID)
	} else {
		fmt.Fprintf(w, "  Theme:             published theme\n")
	}
	fmt.Fprintf(w, "  Access token:      %s\n", maskToken(cfg.Store.AccessToken))
	fmt.Fprintf(w, "  API version:       %s\n", cfg.Store.APIVersion)
	if cfg.Project.Environment != "" {
		fmt.Fprintf(w, "  Environment:       %s\n", cfg.Project.Environment)
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Fetch:\n")
	fmt.Fprintf(w, "  Max attempts:      %d (content %d)\n", cfg.Fetch.MaxAttempts, cfg.Fetch.ContentMaxAttempts)
	fmt.Fprintf(w, "  Base delay:        %d ms\n", cfg.Fetch.BaseDelayMs)
	fmt.Fprintf(w, "  Request timeout:   %d s\n", cfg.Fetch.RequestTimeoutSec)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Scan:\n")
	fmt.Fprintf(w, "  Batch size:        %d\n", cfg.Scan.BatchSize)
	fmt.Fprintf(w, "  Delay:             %d ms\n", cfg.Scan.DelayMs)
	fmt.Fprintf(w, "  Timeout:           %d s\n", cfg.Scan.TimeoutSec)
	for _, t := range sortedOverrideTypes(cfg.Scan.Overrides) {
		tp := cfg.Scan.Overrides[t]
		fmt.Fprintf(w, "  %-19s%d per batch, %d ms\n", t.String()+":", tp.BatchSize, tp.DelayMs)
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Exclude Patterns (%d):\n", len(cfg.Exclude))
	for _, pattern := range cfg.Exclude {
		fmt.Fprintf(w, "  %s\n", pattern)
	}
}
