package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/standardbeagle/themescan/internal/types"
)

// FakeSource is an in-memory theme and definition API for scan tests.
// It tracks content fetch calls and the peak number of concurrent fetches.
type FakeSource struct {
	mu sync.Mutex

	assets      []types.Asset
	contents    map[string]string
	failContent map[string]bool

	definitions      map[string][]types.MetafieldDefinition
	definitionErrors map[string]error
	metaobjectTypes  []string
	menus            []types.Menu

	// ListErr fails FetchAssetsList
	ListErr error
	// Gate, when set, holds every content fetch until it is closed or the context ends
	Gate chan struct{}
	// MainThemeID is returned by ResolveThemeID when no theme is configured
	MainThemeID int64
	// ThemeErr fails ResolveThemeID
	ThemeErr error

	contentCalls map[string]int
	inFlight     int
	maxInFlight  int
}

// NewFakeSource creates an empty fake
func NewFakeSource() *FakeSource {
	return &FakeSource{
		contents:         make(map[string]string),
		failContent:      make(map[string]bool),
		definitions:      make(map[string][]types.MetafieldDefinition),
		definitionErrors: make(map[string]error),
		contentCalls:     make(map[string]int),
	}
}

// WithAsset adds an asset and its content
func (f *FakeSource) WithAsset(key, content string) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, types.Asset{Key: key, Checksum: fmt.Sprintf("%x", len(content))})
	f.contents[key] = content
	return f
}

// WithFailingAsset adds an asset whose content fetch always fails
func (f *FakeSource) WithFailingAsset(key string) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, types.Asset{Key: key})
	f.failContent[key] = true
	return f
}

// WithMetafield adds a metafield definition for ownerType
func (f *FakeSource) WithMetafield(ownerType, namespace, key string) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.definitions[ownerType] = append(f.definitions[ownerType],
		types.MetafieldDefinition{Namespace: namespace, Key: key, OwnerType: ownerType})
	return f
}

// WithDefinitionError makes the definitions of ownerType fail
func (f *FakeSource) WithDefinitionError(ownerType string, err error) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.definitionErrors[ownerType] = err
	return f
}

// WithMetaobjectTypes adds metaobject definition types
func (f *FakeSource) WithMetaobjectTypes(typeNames ...string) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaobjectTypes = append(f.metaobjectTypes, typeNames...)
	return f
}

// WithMenu adds a menu
func (f *FakeSource) WithMenu(handle, title string) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menus = append(f.menus, types.Menu{
		ID:     fmt.Sprintf("gid://shopify/Menu/%d", len(f.menus)+1),
		Handle: handle,
		Title:  title,
	})
	return f
}

// ResolveThemeID returns configured when set, otherwise MainThemeID
func (f *FakeSource) ResolveThemeID(ctx context.Context, configured int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ThemeErr != nil {
		return 0, f.ThemeErr
	}
	if configured > 0 {
		return configured, nil
	}
	return f.MainThemeID, nil
}

// FetchAssetsList returns the configured assets
func (f *FakeSource) FetchAssetsList(ctx context.Context, themeID int64) ([]types.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]types.Asset, len(f.assets))
	copy(out, f.assets)
	return out, nil
}

// FetchAssetContent returns the configured content, "" for failing or unknown assets
func (f *FakeSource) FetchAssetContent(ctx context.Context, themeID int64, key string) string {
	f.mu.Lock()
	f.contentCalls[key]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	gate := f.Gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ""
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failContent[key] {
		return ""
	}
	return f.contents[key]
}

// MetafieldDefinitions returns the definitions of ownerType
func (f *FakeSource) MetafieldDefinitions(ctx context.Context, ownerType string, limit int) ([]types.MetafieldDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.definitionErrors[ownerType]; err != nil {
		return nil, err
	}
	defs := f.definitions[ownerType]
	if limit > 0 && len(defs) > limit {
		defs = defs[:limit]
	}
	return append([]types.MetafieldDefinition(nil), defs...), nil
}

// MetaobjectTypes returns the configured metaobject types
func (f *FakeSource) MetaobjectTypes(ctx context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.metaobjectTypes
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]string(nil), out...), nil
}

// Menus returns the configured menus
func (f *FakeSource) Menus(ctx context.Context, limit int) ([]types.Menu, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.menus
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]types.Menu(nil), out...), nil
}

// ContentCalls returns how many times key was fetched
func (f *FakeSource) ContentCalls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contentCalls[key]
}

// FetchedKeys returns every key fetched at least once, sorted
func (f *FakeSource) FetchedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.contentCalls))
	for k := range f.contentCalls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MaxInFlight returns the peak number of concurrent content fetches
func (f *FakeSource) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// FakeSleeper records sleeps instead of sleeping
type FakeSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

// Sleep records d and returns ctx.Err()
func (s *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Sleeps returns every recorded duration in call order
func (s *FakeSleeper) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}
