package scan

import (
	"context"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/standardbeagle/themescan/internal/regexcache"
	"github.com/standardbeagle/themescan/internal/shopify"
	"github.com/standardbeagle/themescan/internal/types"
)

// Source is the remote half of a scan: the theme asset API plus the
// definition APIs that supply reference keys
type Source interface {
	FetchAssetsList(ctx context.Context, themeID int64) ([]types.Asset, error)
	FetchAssetContent(ctx context.Context, themeID int64, key string) string
	MetafieldDefinitions(ctx context.Context, ownerType string, limit int) ([]types.MetafieldDefinition, error)
	MetaobjectTypes(ctx context.Context, limit int) ([]string, error)
	Menus(ctx context.Context, limit int) ([]types.Menu, error)
}

// Theme files that can hold references: Liquid and JSON templates,
// section groups and settings_data.json
var contentPatterns = []string{"**/*.liquid", "**/*.json"}

// Theme scripts can read metafields, metaobject types and template suffixes
// from inline data. Menus are only rendered through Liquid and settings.
var scriptPatterns = []string{"**/*.js"}

// Translations are prose and never reference keys
var skipPatterns = []string{"locales/**"}

// Limits bound remote enumeration
type Limits struct {
	MaxDefinitions int
	MaxMenus       int
}

// Strategy parameterizes the shared pipeline for one reference type
type Strategy interface {
	Type() types.ScanType
	// Remote reports whether References calls the Source; local strategies
	// derive keys from the asset listing and run after it.
	Remote() bool
	// References enumerates candidate keys. Errors for a sub-part of the
	// enumeration are absorbed; only ctx errors are returned.
	References(ctx context.Context, src Source, assets []types.Asset, report func(step, steps int, message string)) ([]string, error)
	// Scannable selects the assets whose content is fetched
	Scannable(asset types.Asset) bool
	Matcher() MatcherFactory
}

// StrategyFor returns the strategy of a reference scan type. Sections are
// not a reference scan and have their own pipeline.
func StrategyFor(t types.ScanType, cache *regexcache.RegexCache, limits Limits, logger *zap.Logger) (Strategy, bool) {
	if cache == nil {
		cache = regexcache.Shared()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	switch t {
	case types.ScanMetafields:
		return &metafieldStrategy{cache: cache, limit: limits.MaxDefinitions, logger: logger}, true
	case types.ScanMetaobjects:
		return &metaobjectStrategy{cache: cache, limit: limits.MaxDefinitions, logger: logger}, true
	case types.ScanMenus:
		return &menuStrategy{cache: cache, limit: limits.MaxMenus, logger: logger}, true
	case types.ScanTemplates:
		return &templateStrategy{}, true
	default:
		return nil, false
	}
}

// defaultScannable is the content filter shared by the reference scans
func defaultScannable(asset types.Asset) bool {
	return templateScannable(asset) || matchesAny(scriptPatterns, asset.Key)
}

// templateScannable selects Liquid and JSON files only
func templateScannable(asset types.Asset) bool {
	return matchesAny(contentPatterns, asset.Key) && !matchesAny(skipPatterns, asset.Key)
}

func matchesAny(patterns []string, key string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, key); err == nil && ok {
			return true
		}
	}
	return false
}

type metafieldStrategy struct {
	cache  *regexcache.RegexCache
	limit  int
	logger *zap.Logger
}

func (s *metafieldStrategy) Type() types.ScanType         { return types.ScanMetafields }
func (s *metafieldStrategy) Remote() bool                 { return true }
func (s *metafieldStrategy) Scannable(a types.Asset) bool { return defaultScannable(a) }
func (s *metafieldStrategy) Matcher() MatcherFactory      { return MetafieldMatcher(s.cache) }

func (s *metafieldStrategy) References(ctx context.Context, src Source, _ []types.Asset, report func(int, int, string)) ([]string, error) {
	limit := s.limit
	if limit <= 0 {
		limit = types.DefaultMaxDefinitions
	}

	var keys []string
	for i, ownerType := range shopify.OwnerTypes {
		if err := ctx.Err(); err != nil {
			return dedupe(keys), err
		}
		remaining := limit - len(keys)
		if remaining <= 0 {
			s.logger.Warn("definition ceiling reached", zap.Int("limit", limit))
			break
		}

		report(i, len(shopify.OwnerTypes), "Fetching "+strings.ToLower(ownerType)+" metafield definitions")
		defs, err := src.MetafieldDefinitions(ctx, ownerType, remaining)
		if err != nil {
			if ctx.Err() != nil {
				return dedupe(keys), ctx.Err()
			}
			s.logger.Warn("metafield definitions unavailable",
				zap.String("owner_type", ownerType), zap.Error(err))
		}
		for _, d := range defs {
			keys = append(keys, d.FullKey())
		}
	}
	return dedupe(keys), nil
}

type metaobjectStrategy struct {
	cache  *regexcache.RegexCache
	limit  int
	logger *zap.Logger
}

func (s *metaobjectStrategy) Type() types.ScanType         { return types.ScanMetaobjects }
func (s *metaobjectStrategy) Remote() bool                 { return true }
func (s *metaobjectStrategy) Scannable(a types.Asset) bool { return defaultScannable(a) }
func (s *metaobjectStrategy) Matcher() MatcherFactory      { return MetaobjectMatcher(s.cache) }

func (s *metaobjectStrategy) References(ctx context.Context, src Source, _ []types.Asset, report func(int, int, string)) ([]string, error) {
	limit := s.limit
	if limit <= 0 {
		limit = types.DefaultMaxDefinitions
	}
	report(0, 1, "Fetching metaobject definitions")
	typesFound, err := src.MetaobjectTypes(ctx, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("metaobject definitions unavailable", zap.Error(err))
	}
	return dedupe(typesFound), nil
}

type menuStrategy struct {
	cache  *regexcache.RegexCache
	limit  int
	logger *zap.Logger
}

func (s *menuStrategy) Type() types.ScanType         { return types.ScanMenus }
func (s *menuStrategy) Remote() bool                 { return true }
func (s *menuStrategy) Scannable(a types.Asset) bool { return templateScannable(a) }
func (s *menuStrategy) Matcher() MatcherFactory      { return MenuMatcher(s.cache) }

func (s *menuStrategy) References(ctx context.Context, src Source, _ []types.Asset, report func(int, int, string)) ([]string, error) {
	limit := s.limit
	if limit <= 0 {
		limit = types.DefaultMaxMenus
	}
	report(0, 1, "Fetching menus")
	menus, err := src.Menus(ctx, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("menus unavailable", zap.Error(err))
	}
	handles := make([]string, 0, len(menus))
	for _, m := range menus {
		handles = append(handles, m.Handle)
	}
	return dedupe(handles), nil
}

type templateStrategy struct{}

func (s *templateStrategy) Type() types.ScanType         { return types.ScanTemplates }
func (s *templateStrategy) Remote() bool                 { return false }
func (s *templateStrategy) Scannable(a types.Asset) bool { return defaultScannable(a) }
func (s *templateStrategy) Matcher() MatcherFactory      { return TemplateSuffixMatcher }

func (s *templateStrategy) References(_ context.Context, _ Source, assets []types.Asset, report func(int, int, string)) ([]string, error) {
	report(0, 1, "Collecting template suffixes")
	var suffixes []string
	for _, a := range assets {
		if _, suffix, ok := TemplateSuffix(a.Key); ok {
			suffixes = append(suffixes, suffix)
		}
	}
	return dedupe(suffixes), nil
}

// TemplateSuffix parses templates/<type>.<suffix>.json (or .liquid, or a
// templates/customers/ file). ok is false for default templates.
func TemplateSuffix(key string) (templateType, suffix string, ok bool) {
	if !strings.HasPrefix(key, "templates/") {
		return "", "", false
	}
	ext := path.Ext(key)
	if ext != ".json" && ext != ".liquid" {
		return "", "", false
	}
	base := strings.TrimSuffix(path.Base(key), ext)
	templateType, suffix, found := strings.Cut(base, ".")
	if !found || templateType == "" || suffix == "" {
		return "", "", false
	}
	return templateType, suffix, true
}
