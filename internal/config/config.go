package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/standardbeagle/themescan/internal/types"
)

const (
	// FileName is the project config file looked up in the project root and home directory
	FileName = ".themescan.kdl"

	// DefaultAPIVersion is the Admin API version requests are made against
	DefaultAPIVersion = "2024-10"

	// DefaultServerAddr is where `themescan serve` listens
	DefaultServerAddr = "127.0.0.1:8787"

	// DefaultMaxSummaries is how many finished scans the server remembers
	DefaultMaxSummaries = 20
)

// Environment variables that override file configuration
const (
	EnvStore       = "THEMESCAN_STORE"
	EnvThemeID     = "THEMESCAN_THEME_ID"
	EnvAccessToken = "THEMESCAN_ACCESS_TOKEN"
)

type Config struct {
	Version   int
	Project   Project
	Store     Store
	Fetch     Fetch
	Scan      Scan
	Enumerate Enumerate
	Server    Server
	Include   []string
	Exclude   []string
}

type Project struct {
	Root string
	// Environment selects an [environments.<name>] table of shopify.theme.toml
	Environment string
}

// Store identifies the shop and theme being scanned
type Store struct {
	Domain      string
	ThemeID     int64 // 0 = resolve the theme with role "main"
	AccessToken string
	APIVersion  string
}

// Fetch controls the rate-limited HTTP client
type Fetch struct {
	MaxAttempts        int // Attempts for listing and enumeration requests
	ContentMaxAttempts int // Attempts for per-asset content requests
	BaseDelayMs        int // First backoff delay, doubled on every retry
	RequestTimeoutSec  int
}

// Throughput is the batch size and inter-batch delay of one scan type
type Throughput struct {
	BatchSize int
	DelayMs   int
}

type Scan struct {
	BatchSize    int // Concurrent content fetches per batch
	DelayMs      int // Pause between batches
	TimeoutSec   int // Wall-clock ceiling of one scan
	MaxJSONDepth int
	// Overrides holds per-type throughput, e.g. scan { sections { batch_size 4 } }
	Overrides map[types.ScanType]Throughput
}

// Enumerate bounds the reference definition APIs
type Enumerate struct {
	PageSize       int
	MaxDefinitions int
	MaxMenus       int
}

type Server struct {
	Addr         string
	MaxSummaries int
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	return &Config{
		Version: 1,
		Project: Project{
			Root: cwd,
		},
		Store: Store{
			APIVersion: DefaultAPIVersion,
		},
		Fetch: Fetch{
			MaxAttempts:        5,
			ContentMaxAttempts: 3,
			BaseDelayMs:        500,
			RequestTimeoutSec:  30,
		},
		Scan: Scan{
			BatchSize:    types.DefaultBatchSize,
			DelayMs:      types.DefaultDelayMs,
			TimeoutSec:   900, // 15 minutes covers the largest themes at default throughput
			MaxJSONDepth: types.DefaultMaxJSONDepth,
			Overrides:    map[types.ScanType]Throughput{},
		},
		Enumerate: Enumerate{
			PageSize:       types.DefaultPageSize,
			MaxDefinitions: types.DefaultMaxDefinitions,
			MaxMenus:       types.DefaultMaxMenus,
		},
		Server: Server{
			Addr:         DefaultServerAddr,
			MaxSummaries: DefaultMaxSummaries,
		},
		Include: []string{},
		Exclude: []string{},
	}
}

// Load reads configuration for the current directory.
// path may name an explicit config file; an empty or default path searches the usual places.
func Load(path string) (*Config, error) {
	return LoadEnvironment(path, "")
}

// LoadEnvironment is Load with the shopify.theme.toml environment forced to
// environment. An empty environment keeps the configured one.
func LoadEnvironment(path, environment string) (*Config, error) {
	if path != "" && path != FileName {
		return loadFile(path, environment)
	}
	return loadWithRoot("", environment)
}

// LoadFile reads a single KDL config file without merging the global config
func LoadFile(path string) (*Config, error) {
	return loadFile(path, "")
}

func loadFile(path, environment string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		cfg.Project.Root = abs
	}
	return finish(cfg, environment)
}

func LoadWithRoot(path string, rootDir string) (*Config, error) {
	return loadWithRoot(rootDir, "")
}

func loadWithRoot(rootDir, environment string) (*Config, error) {
	// Determine search directory for config files
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	// Step 1: Load global base config from ~/.themescan.kdl (if exists)
	homeDir, err := os.UserHomeDir()
	var baseConfig *Config
	if err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	// Step 2: Load project-specific config from project directory
	var projectConfig *Config
	if kdlCfg, err := LoadKDL(searchDir); err == nil && kdlCfg != nil {
		projectConfig = kdlCfg
	} else if err != nil {
		return nil, err
	}

	// Step 3: Merge configs (project overrides base, but preserve base exclusions)
	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		cfg = baseConfig
		cfg.Project.Root = absOrSelf(searchDir)
	default:
		cfg = Default()
		cfg.Project.Root = absOrSelf(searchDir)
	}
	return finish(cfg, environment)
}

// finish applies shopify.theme.toml, which fills store settings the KDL files
// left empty, and then the environment, which wins over every file
func finish(cfg *Config, environment string) (*Config, error) {
	if environment != "" {
		cfg.Project.Environment = environment
	}
	if err := cfg.applyThemeTOML(); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides store settings from THEMESCAN_* environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvStore); v != "" {
		c.Store.Domain = v
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		c.Store.AccessToken = v
	}
	if v := os.Getenv(EnvThemeID); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Store.ThemeID = id
		}
	}
}

// ThroughputFor returns the batch size and delay configured for t
func (c *Config) ThroughputFor(t types.ScanType) Throughput {
	if tp, ok := c.Scan.Overrides[t]; ok && tp.BatchSize > 0 {
		return tp
	}
	return Throughput{BatchSize: c.Scan.BatchSize, DelayMs: c.Scan.DelayMs}
}

func absOrSelf(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// mergeConfigs merges a base config with a project config
// Project config takes precedence, but base exclusions are preserved
func mergeConfigs(base, project *Config) *Config {
	// Start with a copy of the project config
	merged := *project

	// Merge exclusions: combine base and project exclusions, keeping first-seen order
	if len(base.Exclude) > 0 {
		seen := make(map[string]bool, len(base.Exclude)+len(project.Exclude))
		merged.Exclude = make([]string, 0, len(base.Exclude)+len(project.Exclude))
		for _, list := range [][]string{base.Exclude, project.Exclude} {
			for _, pattern := range list {
				if !seen[pattern] {
					seen[pattern] = true
					merged.Exclude = append(merged.Exclude, pattern)
				}
			}
		}
	}

	// Merge inclusions: project overrides base completely if specified
	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	// Credentials usually live in the global file; a project only names its store
	if merged.Store.Domain == "" {
		merged.Store.Domain = base.Store.Domain
	}
	if merged.Store.AccessToken == "" {
		merged.Store.AccessToken = base.Store.AccessToken
	}
	if merged.Store.ThemeID == 0 {
		merged.Store.ThemeID = base.Store.ThemeID
	}
	if merged.Project.Environment == "" {
		merged.Project.Environment = base.Project.Environment
	}

	// Per-type overrides from the global file apply unless the project sets the same type
	if len(base.Scan.Overrides) > 0 {
		overrides := make(map[types.ScanType]Throughput, len(base.Scan.Overrides)+len(project.Scan.Overrides))
		for t, tp := range base.Scan.Overrides {
			overrides[t] = tp
		}
		for t, tp := range project.Scan.Overrides {
			overrides[t] = tp
		}
		merged.Scan.Overrides = overrides
	}

	return &merged
}
