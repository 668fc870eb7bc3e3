package scan

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/standardbeagle/themescan/internal/regexcache"
	"github.com/standardbeagle/themescan/internal/types"
)

// KeyMatcher reports whether one reference key occurs in one asset
type KeyMatcher func(asset types.ScannedAsset) bool

// MatcherFactory builds the matcher for a reference key
type MatcherFactory func(key string) (KeyMatcher, error)

// menuSettingKeys are the JSON setting ids whose value is a menu handle
var menuSettingKeys = []string{"menu", "menu_secondary", "menu_main", "menu_footer", "link_list"}

func regexMatcher(re *regexp.Regexp) KeyMatcher {
	return func(asset types.ScannedAsset) bool {
		return re.MatchString(asset.Content)
	}
}

// MetafieldMatcher matches a namespace.key in any of the forms a theme can
// reference it: the quoted or bare full key, metafields.ns.key,
// metafields['ns.key'], a bare ['key'] subscript, metafields.get('ns.key'
// and a bare metafields.key.
func MetafieldMatcher(cache *regexcache.RegexCache) MatcherFactory {
	return func(fullKey string) (KeyMatcher, error) {
		key := fullKey
		if idx := strings.LastIndex(fullKey, "."); idx >= 0 {
			key = fullKey[idx+1:]
		}

		pattern := alternation(
			quoted(fullKey),
			identStart+Escape(fullKey)+identEnd,
			`metafields\.`+Escape(fullKey)+identEnd,
			`metafields`+subscript(fullKey),
			subscript(key),
			`metafields\.get\(\s*["']`+Escape(fullKey)+`["']`,
			`metafields\.`+Escape(key)+identEnd,
		)
		re, err := cache.Compile(pattern, true)
		if err != nil {
			return nil, err
		}
		return regexMatcher(re), nil
	}
}

// MetaobjectMatcher matches a metaobject type quoted, as a dotted access
// or as a bracket subscript
func MetaobjectMatcher(cache *regexcache.RegexCache) MatcherFactory {
	return func(typ string) (KeyMatcher, error) {
		pattern := alternation(
			quoted(typ),
			`\.`+Escape(typ)+identEnd,
			subscript(typ),
		)
		re, err := cache.Compile(pattern, true)
		if err != nil {
			return nil, err
		}
		return regexMatcher(re), nil
	}
}

// MenuMatcher only accepts Liquid linklists access, or in JSON files a menu
// setting whose entire value is the handle. A handle appearing in prose is
// not a reference.
func MenuMatcher(cache *regexcache.RegexCache) MatcherFactory {
	return func(handle string) (KeyMatcher, error) {
		liquid, err := cache.Compile(alternation(
			identStart+`linklists\.`+Escape(handle)+identEnd,
			identStart+`linklists`+subscript(handle),
		), true)
		if err != nil {
			return nil, err
		}

		settingKeys := make([]string, len(menuSettingKeys))
		for i, k := range menuSettingKeys {
			settingKeys[i] = Escape(k)
		}
		jsonSetting, err := cache.Compile(
			`"`+alternation(settingKeys...)+`"\s*:\s*"`+Escape(handle)+`"`, true)
		if err != nil {
			return nil, err
		}

		return func(asset types.ScannedAsset) bool {
			if liquid.MatchString(asset.Content) {
				return true
			}
			return asset.IsJSON() && jsonSetting.MatchString(asset.Content)
		}, nil
	}
}

// TemplateSuffixMatcher is a plain quoted-literal containment check
func TemplateSuffixMatcher(suffix string) (KeyMatcher, error) {
	lower := strings.ToLower(suffix)
	double := `"` + lower + `"`
	single := `'` + lower + `'`
	return func(asset types.ScannedAsset) bool {
		content := strings.ToLower(asset.Content)
		return strings.Contains(content, double) || strings.Contains(content, single)
	}, nil
}

// MatchReferences returns the keys of refs found in at least one asset, in
// refs order. A key stops being tested once found.
func MatchReferences(assets []types.ScannedAsset, refs []string, factory MatcherFactory, logger *zap.Logger) []string {
	refs = dedupe(refs)
	matchers := make([]KeyMatcher, len(refs))
	for i, ref := range refs {
		m, err := factory(ref)
		if err != nil {
			// Unreachable for escaped input; the key simply stays unmatched.
			logger.Warn("could not build matcher", zap.String("reference", ref), zap.Error(err))
			continue
		}
		matchers[i] = m
	}

	found := make([]bool, len(refs))
	remaining := len(refs)
	for _, asset := range assets {
		if remaining == 0 {
			break
		}
		for i, m := range matchers {
			if found[i] || m == nil {
				continue
			}
			if m(asset) {
				found[i] = true
				remaining--
			}
		}
	}

	out := make([]string, 0, len(refs)-remaining)
	for i, ref := range refs {
		if found[i] {
			out = append(out, ref)
		}
	}
	return out
}

// dedupe keeps the first occurrence of every non-empty key
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
