package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
	"go.uber.org/zap"

	"github.com/standardbeagle/themescan/internal/debug"
	"github.com/standardbeagle/themescan/internal/types"
)

// LoadKDL attempts to load configuration from the .themescan.kdl file in dir
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, FileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil // No KDL config found, use defaults
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", FileName, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	// Relative roots resolve against the directory holding the file
	if cfg.Project.Root != "" && !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(dir, cfg.Project.Root))
	} else if cfg.Project.Root == "" {
		cfg.Project.Root = absOrSelf(dir)
	}

	return cfg, nil
}

// Simple KDL parser for themescan configuration
func parseKDL(content string) (*Config, error) {
	cfg := Default()
	cfg.Project.Root = ""

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children { // project { root "."; environment "staging" }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "environment", func(v string) { cfg.Project.Environment = v })
			}
		case "store":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "domain":
					if v, ok := firstStringArg(cn); ok {
						cfg.Store.Domain = v
					}
				case "theme_id":
					if v, ok := firstInt64Arg(cn); ok {
						cfg.Store.ThemeID = v
					}
				case "access_token":
					if v, ok := firstStringArg(cn); ok {
						cfg.Store.AccessToken = v
					}
				case "api_version":
					if v, ok := firstStringArg(cn); ok {
						cfg.Store.APIVersion = v
					}
				}
			}
		case "fetch":
			for _, cn := range n.Children {
				v, ok := firstIntArg(cn)
				if !ok {
					continue
				}
				switch nodeName(cn) {
				case "max_attempts":
					cfg.Fetch.MaxAttempts = v
				case "content_max_attempts":
					cfg.Fetch.ContentMaxAttempts = v
				case "base_delay_ms":
					cfg.Fetch.BaseDelayMs = v
				case "request_timeout_sec":
					cfg.Fetch.RequestTimeoutSec = v
				}
			}
		case "scan":
			for _, cn := range n.Children {
				name := nodeName(cn)
				if t := types.ScanType(name); t.Valid() {
					cfg.Scan.Overrides[t] = parseThroughput(cn, cfg.ThroughputFor(t))
					continue
				}
				v, ok := firstIntArg(cn)
				if !ok {
					debug.Component("config").Warn("ignoring scan setting without integer value", zap.String("node", name))
					continue
				}
				switch name {
				case "batch_size":
					cfg.Scan.BatchSize = v
				case "delay_ms":
					cfg.Scan.DelayMs = v
				case "timeout_sec":
					cfg.Scan.TimeoutSec = v
				case "max_json_depth":
					cfg.Scan.MaxJSONDepth = v
				default:
					debug.Component("config").Warn("unknown scan setting", zap.String("node", name))
				}
			}
		case "enumerate":
			for _, cn := range n.Children {
				v, ok := firstIntArg(cn)
				if !ok {
					continue
				}
				switch nodeName(cn) {
				case "page_size":
					cfg.Enumerate.PageSize = v
				case "max_definitions":
					cfg.Enumerate.MaxDefinitions = v
				case "max_menus":
					cfg.Enumerate.MaxMenus = v
				}
			}
		case "server":
			for _, cn := range n.Children {
				assignSimpleString(cn, "addr", func(v string) { cfg.Server.Addr = v })
				if nodeName(cn) == "max_summaries" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Server.MaxSummaries = v
					}
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			cfg.Exclude = append(cfg.Exclude, collectStringArgs(n)...)
		}
	}

	return cfg, nil
}

// parseThroughput reads a per-type block such as sections { batch_size 4; delay_ms 100 }.
// Settings the block omits are inherited from base.
func parseThroughput(n *document.Node, base Throughput) Throughput {
	tp := base
	for _, cn := range n.Children {
		v, ok := firstIntArg(cn)
		if !ok {
			continue
		}
		switch nodeName(cn) {
		case "batch_size":
			tp.BatchSize = v
		case "delay_ms":
			tp.DelayMs = v
		}
	}
	return tp
}

// Helper functions leveraging kdl-go document model
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}
func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// firstInt64Arg also accepts numeric strings, since theme ids are often quoted
func firstInt64Arg(n *document.Node) (int64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			debug.Component("config").Warn("invalid integer value in KDL config",
				zap.String("node", nodeName(n)), zap.String("value", v))
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	// First try to collect from arguments (for inline format)
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// In KDL block format, strings are child nodes where the node name is the string value
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}
func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
