package config

import (
	"errors"
	"fmt"

	scanerrors "github.com/standardbeagle/themescan/internal/errors"
	"github.com/standardbeagle/themescan/internal/types"
)

// Validator validates configuration and sets smart defaults
type Validator struct {
	// RequireStore also demands a domain and access token
	RequireStore bool
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults
// Returns an error if validation fails
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	v.setSmartDefaults(cfg)

	if v.RequireStore {
		if err := v.validateStoreConfig(&cfg.Store); err != nil {
			return scanerrors.NewConfigError("store", cfg.Store.Domain, err)
		}
	}

	if err := v.validateFetchConfig(&cfg.Fetch); err != nil {
		return scanerrors.NewConfigError("fetch", "", err)
	}

	if err := v.validateScanConfig(&cfg.Scan); err != nil {
		return scanerrors.NewConfigError("scan", "", err)
	}

	if err := v.validateEnumerateConfig(&cfg.Enumerate); err != nil {
		return scanerrors.NewConfigError("enumerate", "", err)
	}

	if cfg.Server.MaxSummaries < 0 {
		return scanerrors.NewConfigError("server", "", fmt.Errorf("MaxSummaries cannot be negative, got %d", cfg.Server.MaxSummaries))
	}

	return nil
}

// validateStoreConfig validates store configuration
func (v *Validator) validateStoreConfig(store *Store) error {
	if store.Domain == "" {
		return errors.New("store domain is required (store { domain \"...\" }, shopify.theme.toml or THEMESCAN_STORE)")
	}

	if store.AccessToken == "" {
		return errors.New("access token is required (store { access_token \"...\" }, shopify.theme.toml or THEMESCAN_ACCESS_TOKEN)")
	}

	if store.ThemeID < 0 {
		return fmt.Errorf("ThemeID cannot be negative, got %d", store.ThemeID)
	}

	return nil
}

// validateFetchConfig validates fetch configuration
func (v *Validator) validateFetchConfig(fetch *Fetch) error {
	if fetch.MaxAttempts <= 0 {
		return fmt.Errorf("MaxAttempts must be positive, got %d", fetch.MaxAttempts)
	}

	if fetch.ContentMaxAttempts <= 0 {
		return fmt.Errorf("ContentMaxAttempts must be positive, got %d", fetch.ContentMaxAttempts)
	}

	if fetch.BaseDelayMs < 0 {
		return fmt.Errorf("BaseDelayMs cannot be negative, got %d", fetch.BaseDelayMs)
	}

	if fetch.RequestTimeoutSec < 0 {
		return fmt.Errorf("RequestTimeoutSec cannot be negative, got %d", fetch.RequestTimeoutSec)
	}

	return nil
}

// validateScanConfig validates scan configuration
func (v *Validator) validateScanConfig(scan *Scan) error {
	if scan.BatchSize <= 0 {
		return fmt.Errorf("BatchSize must be positive, got %d", scan.BatchSize)
	}

	if scan.DelayMs < 0 {
		return fmt.Errorf("DelayMs cannot be negative, got %d", scan.DelayMs)
	}

	if scan.TimeoutSec < 0 {
		return fmt.Errorf("TimeoutSec cannot be negative, got %d", scan.TimeoutSec)
	}

	if scan.MaxJSONDepth < 1 {
		return fmt.Errorf("MaxJSONDepth must be at least 1, got %d", scan.MaxJSONDepth)
	}

	for t, tp := range scan.Overrides {
		if !t.Valid() {
			return fmt.Errorf("unknown scan type %q in overrides", t)
		}
		if tp.BatchSize <= 0 {
			return fmt.Errorf("%s BatchSize must be positive, got %d", t, tp.BatchSize)
		}
		if tp.DelayMs < 0 {
			return fmt.Errorf("%s DelayMs cannot be negative, got %d", t, tp.DelayMs)
		}
	}

	return nil
}

// validateEnumerateConfig validates enumeration configuration
func (v *Validator) validateEnumerateConfig(enum *Enumerate) error {
	if enum.PageSize <= 0 || enum.PageSize > types.DefaultPageSize {
		return fmt.Errorf("PageSize must be between 1 and %d, got %d", types.DefaultPageSize, enum.PageSize)
	}

	if enum.MaxDefinitions <= 0 {
		return fmt.Errorf("MaxDefinitions must be positive, got %d", enum.MaxDefinitions)
	}

	if enum.MaxMenus <= 0 {
		return fmt.Errorf("MaxMenus must be positive, got %d", enum.MaxMenus)
	}

	return nil
}

// setSmartDefaults fills settings that were left at their zero value
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Store.APIVersion == "" {
		cfg.Store.APIVersion = DefaultAPIVersion
	}

	cfg.Store.Domain = StoreDomain(cfg.Store.Domain)

	if cfg.Enumerate.PageSize == 0 {
		cfg.Enumerate.PageSize = types.DefaultPageSize
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}

	if cfg.Server.MaxSummaries == 0 {
		cfg.Server.MaxSummaries = DefaultMaxSummaries
	}

	if cfg.Scan.Overrides == nil {
		cfg.Scan.Overrides = map[types.ScanType]Throughput{}
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
