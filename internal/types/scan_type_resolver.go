package types

import (
	"fmt"
	"strings"

	"github.com/hbollon/go-edlib"
)

// scanTypeAliases maps accepted spellings onto canonical scan types
var scanTypeAliases = map[string]ScanType{
	"metafield":       ScanMetafields,
	"metafields":      ScanMetafields,
	"metaobject":      ScanMetaobjects,
	"metaobjects":     ScanMetaobjects,
	"menu":            ScanMenus,
	"menus":           ScanMenus,
	"linklist":        ScanMenus,
	"linklists":       ScanMenus,
	"template":        ScanTemplates,
	"templates":       ScanTemplates,
	"template-suffix": ScanTemplates,
	"template_suffix": ScanTemplates,
	"suffix":          ScanTemplates,
	"section":         ScanSections,
	"sections":        ScanSections,
}

// maxSuggestionDistance bounds how far a typo may be from an alias before we stop suggesting
const maxSuggestionDistance = 3

// ParseScanType resolves user input to a ScanType.
// Unknown input yields an error carrying the closest known spelling, if any.
func ParseScanType(input string) (ScanType, error) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", fmt.Errorf("scan type is required (one of %s)", scanTypeList())
	}
	if t, ok := scanTypeAliases[normalized]; ok {
		return t, nil
	}

	suggestion, distance := closestAlias(normalized)
	if suggestion != "" && distance <= maxSuggestionDistance {
		return "", fmt.Errorf("unknown scan type %q, did you mean %q?", input, suggestion)
	}
	return "", fmt.Errorf("unknown scan type %q (one of %s)", input, scanTypeList())
}

// closestAlias finds the alias with the smallest Levenshtein distance
func closestAlias(input string) (string, int) {
	best := ""
	bestDistance := 1000
	for alias := range scanTypeAliases {
		d := edlib.LevenshteinDistance(input, alias)
		// Map iteration order is random; break ties alphabetically for stable messages
		if d < bestDistance || (d == bestDistance && alias < best) {
			bestDistance = d
			best = alias
		}
	}
	return best, bestDistance
}

func scanTypeList() string {
	names := make([]string, len(AllScanTypes))
	for i, t := range AllScanTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
