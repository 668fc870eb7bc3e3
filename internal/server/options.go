package server

import (
	"time"

	"github.com/standardbeagle/themescan/internal/config"
	"github.com/standardbeagle/themescan/internal/scan"
	"github.com/standardbeagle/themescan/internal/shopify"
	"github.com/standardbeagle/themescan/internal/types"
)

// EngineOptions converts the scan sections of cfg into engine tunables
func EngineOptions(cfg *config.Config) scan.Options {
	opts := scan.Options{
		Throughput: scan.Throughput{
			BatchSize: cfg.Scan.BatchSize,
			Delay:     time.Duration(cfg.Scan.DelayMs) * time.Millisecond,
		},
		Overrides:    make(map[types.ScanType]scan.Throughput, len(cfg.Scan.Overrides)),
		Timeout:      time.Duration(cfg.Scan.TimeoutSec) * time.Second,
		MaxJSONDepth: cfg.Scan.MaxJSONDepth,
		Limits: scan.Limits{
			MaxDefinitions: cfg.Enumerate.MaxDefinitions,
			MaxMenus:       cfg.Enumerate.MaxMenus,
		},
		Include: cfg.Include,
		Exclude: cfg.Exclude,
	}
	for t, tp := range cfg.Scan.Overrides {
		opts.Overrides[t] = scan.Throughput{
			BatchSize: tp.BatchSize,
			Delay:     time.Duration(tp.DelayMs) * time.Millisecond,
		}
	}
	return opts
}

// ClientOptions converts the store and fetch sections of cfg into Shopify client options
func ClientOptions(cfg *config.Config) shopify.Options {
	return shopify.Options{
		Domain:             cfg.Store.Domain,
		AccessToken:        cfg.Store.AccessToken,
		APIVersion:         cfg.Store.APIVersion,
		MaxAttempts:        cfg.Fetch.MaxAttempts,
		ContentMaxAttempts: cfg.Fetch.ContentMaxAttempts,
		BaseDelay:          time.Duration(cfg.Fetch.BaseDelayMs) * time.Millisecond,
		RequestTimeout:     time.Duration(cfg.Fetch.RequestTimeoutSec) * time.Second,
		PageSize:           cfg.Enumerate.PageSize,
	}
}
