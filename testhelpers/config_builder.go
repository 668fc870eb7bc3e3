// Package testhelpers provides shared utilities for testing themescan
package testhelpers

import (
	"github.com/standardbeagle/themescan/internal/config"
	"github.com/standardbeagle/themescan/internal/types"
)

// TestConfigBuilder provides a fluent API for building test configs with safe defaults.
// Delays are zero so tests never wait between batches.
// Usage:
//
//	cfg := testhelpers.NewTestConfigBuilder(srv.URL).
//		WithBatchSize(3).
//		WithExclusions("locales/**").
//		Build()
type TestConfigBuilder struct {
	domain     string
	themeID    int64
	batchSize  int
	delayMs    int
	overrides  map[types.ScanType]config.Throughput
	exclusions []string
	inclusions []string
}

// NewTestConfigBuilder creates a config builder for a store domain
func NewTestConfigBuilder(domain string) *TestConfigBuilder {
	return &TestConfigBuilder{
		domain:     domain,
		batchSize:  2,
		overrides:  map[types.ScanType]config.Throughput{},
		exclusions: []string{},
		inclusions: []string{},
	}
}

// WithThemeID pins the theme instead of resolving the main theme
func (b *TestConfigBuilder) WithThemeID(id int64) *TestConfigBuilder {
	b.themeID = id
	return b
}

// WithBatchSize sets the default batch size
func (b *TestConfigBuilder) WithBatchSize(n int) *TestConfigBuilder {
	b.batchSize = n
	return b
}

// WithDelayMs sets the default inter-batch delay
func (b *TestConfigBuilder) WithDelayMs(ms int) *TestConfigBuilder {
	b.delayMs = ms
	return b
}

// WithOverride sets the throughput of one scan type
func (b *TestConfigBuilder) WithOverride(t types.ScanType, batchSize, delayMs int) *TestConfigBuilder {
	b.overrides[t] = config.Throughput{BatchSize: batchSize, DelayMs: delayMs}
	return b
}

// WithExclusions adds additional exclusion patterns
func (b *TestConfigBuilder) WithExclusions(patterns ...string) *TestConfigBuilder {
	b.exclusions = append(b.exclusions, patterns...)
	return b
}

// WithIncludePatterns sets the include patterns
func (b *TestConfigBuilder) WithIncludePatterns(patterns ...string) *TestConfigBuilder {
	b.inclusions = patterns
	return b
}

// Build creates the final test config with all settings
func (b *TestConfigBuilder) Build() *config.Config {
	cfg := config.Default()
	cfg.Store = config.Store{
		Domain:      b.domain,
		ThemeID:     b.themeID,
		AccessToken: "shpat_test",
		APIVersion:  config.DefaultAPIVersion,
	}
	cfg.Fetch = config.Fetch{
		MaxAttempts:        3,
		ContentMaxAttempts: 2,
		BaseDelayMs:        0, // No backoff sleeping in tests
		RequestTimeoutSec:  5,
	}
	cfg.Scan.BatchSize = b.batchSize
	cfg.Scan.DelayMs = b.delayMs
	cfg.Scan.TimeoutSec = 30
	cfg.Scan.Overrides = b.overrides
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Include = b.inclusions
	cfg.Exclude = b.exclusions
	return cfg
}
