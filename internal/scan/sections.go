package scan

import (
	"encoding/json"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/standardbeagle/themescan/internal/types"
)

var (
	schemaBlock = regexp.MustCompile(`(?s)\{%-?\s*schema\s*-?%\}(.*?)\{%-?\s*endschema\s*-?%\}`)

	// {% section 'x' %}, {% sections "x" %}, whitespace control allowed
	sectionTag = regexp.MustCompile(`(?i)\{%-?\s*sections?\s+["']([^"']+)["']\s*-?%\}`)

	// {% include 'sections/x' %} and {% render "sections/x", arg: 1 %}
	sectionInclude = regexp.MustCompile(`(?i)\{%-?\s*(?:include|render)\s+["']sections/([^"']+)["'][^%]*-?%\}`)
)

// IsSectionAsset reports whether key is a sections/<name>.liquid file
func IsSectionAsset(key string) bool {
	return path.Dir(key) == "sections" && strings.HasSuffix(strings.ToLower(key), ".liquid")
}

// SectionFileName returns the stem of a section asset: sections/hero.liquid -> hero
func SectionFileName(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}

// ParseSchemaName extracts "name" from the section's {% schema %} block.
// Missing or malformed schema JSON reports false.
func ParseSchemaName(content string) (string, bool) {
	m := schemaBlock.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	var schema struct {
		Name json.RawMessage `json:"name"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &schema); err != nil {
		return "", false
	}
	var name string
	if err := json.Unmarshal(schema.Name, &name); err != nil || strings.TrimSpace(name) == "" {
		return "", false
	}
	return name, true
}

// NewSectionDescriptors builds one descriptor per section asset with empty
// assignments. contents maps asset key to fetched source; a section whose
// source is missing or has no usable schema falls back to its file name.
func NewSectionDescriptors(sectionKeys []string, contents map[string]string) []*types.SectionDescriptor {
	seen := make(map[string]struct{}, len(sectionKeys))
	out := make([]*types.SectionDescriptor, 0, len(sectionKeys))
	for _, key := range sectionKeys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		fileName := SectionFileName(key)
		schemaName := fileName
		if name, ok := ParseSchemaName(contents[key]); ok {
			schemaName = name
		}
		out = append(out, &types.SectionDescriptor{
			ID:          fileName,
			FileName:    fileName,
			Key:         key,
			SchemaName:  schemaName,
			Assignments: []string{},
		})
	}
	return out
}

// SectionReferences returns the distinct section names asset refers to.
// JSON files contribute every string "type"/"block_type" value found within
// maxDepth; Liquid files contribute section tags and sections/ includes.
func SectionReferences(asset types.ScannedAsset, maxDepth int) []string {
	switch {
	case asset.IsJSON():
		doc, err := ParseJSON([]byte(asset.Content))
		if err != nil {
			return nil
		}
		return doc.StringFields(maxDepth, "type", "block_type")
	case asset.IsLiquid():
		var names []string
		for _, re := range []*regexp.Regexp{sectionTag, sectionInclude} {
			for _, m := range re.FindAllStringSubmatch(asset.Content, -1) {
				names = append(names, strings.TrimSuffix(m[1], ".liquid"))
			}
		}
		return dedupe(names)
	default:
		return nil
	}
}

// AssignSections records every asset that refers to a descriptor's section.
// Names compare case-insensitively. Applying the same assets twice leaves
// the descriptors unchanged.
func AssignSections(descriptors []*types.SectionDescriptor, assets []types.ScannedAsset, maxDepth int) {
	byName := make(map[string]*types.SectionDescriptor, len(descriptors))
	for _, d := range descriptors {
		byName[strings.ToLower(d.FileName)] = d
	}

	for _, asset := range assets {
		for _, name := range SectionReferences(asset, maxDepth) {
			if d, ok := byName[strings.ToLower(name)]; ok {
				d.AddAssignment(asset.Key)
			}
		}
	}

	for _, d := range descriptors {
		sort.Strings(d.Assignments)
	}
}

// flattenDescriptors copies descriptors into the result payload shape
func flattenDescriptors(descriptors []*types.SectionDescriptor) []types.SectionDescriptor {
	out := make([]types.SectionDescriptor, len(descriptors))
	for i, d := range descriptors {
		out[i] = *d
	}
	return out
}
