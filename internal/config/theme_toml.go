package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ThemeTOMLFileName is the Shopify CLI environments file
const ThemeTOMLFileName = "shopify.theme.toml"

// DefaultEnvironment is used when the project does not name one
const DefaultEnvironment = "development"

// ThemeEnvironment is one [environments.<name>] table of shopify.theme.toml
type ThemeEnvironment struct {
	Store    string `toml:"store"`
	Theme    string `toml:"theme"`
	Password string `toml:"password"`
}

type themeTOML struct {
	Environments map[string]ThemeEnvironment `toml:"environments"`
}

// LoadThemeEnvironments reads every environment declared in dir/shopify.theme.toml.
// A missing file yields an empty map.
func LoadThemeEnvironments(dir string) (map[string]ThemeEnvironment, error) {
	data, err := os.ReadFile(filepath.Join(dir, ThemeTOMLFileName))
	if os.IsNotExist(err) {
		return map[string]ThemeEnvironment{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ThemeTOMLFileName, err)
	}

	var doc themeTOML
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ThemeTOMLFileName, err)
	}
	if doc.Environments == nil {
		doc.Environments = map[string]ThemeEnvironment{}
	}
	return doc.Environments, nil
}

// SelectEnvironment picks the named environment, falling back to "development"
// and then to the only environment declared
func SelectEnvironment(envs map[string]ThemeEnvironment, name string) (ThemeEnvironment, bool) {
	if name != "" {
		env, ok := envs[name]
		return env, ok
	}
	if env, ok := envs[DefaultEnvironment]; ok {
		return env, true
	}
	if len(envs) == 1 {
		for _, env := range envs {
			return env, true
		}
	}
	return ThemeEnvironment{}, false
}

// EnvironmentNames returns the declared environment names in sorted order
func EnvironmentNames(envs map[string]ThemeEnvironment) []string {
	names := make([]string, 0, len(envs))
	for name := range envs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StoreDomain expands a bare shop name into its myshopify.com domain
func StoreDomain(store string) string {
	store = strings.TrimSpace(store)
	if store == "" || strings.Contains(store, ".") {
		return store
	}
	return store + ".myshopify.com"
}

// applyThemeTOML fills store settings the KDL files left empty
func (c *Config) applyThemeTOML() error {
	envs, err := LoadThemeEnvironments(c.Project.Root)
	if err != nil {
		return err
	}
	env, ok := SelectEnvironment(envs, c.Project.Environment)
	if !ok {
		if c.Project.Environment != "" && len(envs) > 0 {
			return fmt.Errorf("environment %q not found in %s (have %s)",
				c.Project.Environment, ThemeTOMLFileName, strings.Join(EnvironmentNames(envs), ", "))
		}
		return nil
	}

	if c.Store.Domain == "" {
		c.Store.Domain = StoreDomain(env.Store)
	}
	if c.Store.AccessToken == "" {
		c.Store.AccessToken = env.Password
	}
	if c.Store.ThemeID == 0 && env.Theme != "" {
		// Theme may also be a name; only numeric ids are usable here
		if id, err := strconv.ParseInt(env.Theme, 10, 64); err == nil {
			c.Store.ThemeID = id
		}
	}
	return nil
}
