package types

import (
	"strings"
)

// Common system-wide constants
const (
	// Pagination ceilings for the definition APIs
	DefaultMaxDefinitions = 10000 // Maximum metafield/metaobject definitions per enumeration
	// Rationale: Guards against runaway pagination on malformed or
	// very large stores while covering every store seen in practice.

	DefaultMaxMenus = 500 // Maximum menus enumerated per scan

	DefaultPageSize = 250 // Largest page the Admin GraphQL API accepts

	// JSON walk guard
	DefaultMaxJSONDepth = 50 // Nesting bound for the section JSON visitor
	// Rationale: Theme JSON rarely exceeds depth 10; anything deeper is
	// pathological and must not be able to blow the stack.

	// Throughput controls
	DefaultBatchSize = 2   // Concurrent content fetches per batch
	DefaultDelayMs   = 200 // Pause between batches in milliseconds
)

// ScanType identifies one reference-key category
type ScanType string

const (
	ScanMetafields  ScanType = "metafields"
	ScanMetaobjects ScanType = "metaobjects"
	ScanMenus       ScanType = "menus"
	ScanTemplates   ScanType = "templates"
	ScanSections    ScanType = "sections"
)

// AllScanTypes lists every supported scan type in a stable order
var AllScanTypes = []ScanType{
	ScanMetafields,
	ScanMetaobjects,
	ScanMenus,
	ScanTemplates,
	ScanSections,
}

func (t ScanType) String() string {
	return string(t)
}

// Valid reports whether t is one of the supported scan types
func (t ScanType) Valid() bool {
	for _, known := range AllScanTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Asset identifies a file in the theme by its slash-separated key
type Asset struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Ext returns the lower-cased extension of the asset key including the dot
func (a Asset) Ext() string {
	idx := strings.LastIndex(a.Key, ".")
	if idx < 0 || strings.Contains(a.Key[idx:], "/") {
		return ""
	}
	return strings.ToLower(a.Key[idx:])
}

// ScannedAsset is an asset whose textual content was retrieved.
// Assets whose fetch failed never become ScannedAssets.
type ScannedAsset struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// IsJSON reports whether the asset should be treated as JSON content
func (s ScannedAsset) IsJSON() bool {
	return strings.HasSuffix(strings.ToLower(s.Key), ".json")
}

// IsLiquid reports whether the asset is a Liquid template
func (s ScannedAsset) IsLiquid() bool {
	return strings.HasSuffix(strings.ToLower(s.Key), ".liquid")
}

// MetafieldDefinition is one node of the metafieldDefinitions connection
type MetafieldDefinition struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	OwnerType string `json:"ownerType,omitempty"`
}

// FullKey returns the composite namespace.key reference
func (d MetafieldDefinition) FullKey() string {
	return d.Namespace + "." + d.Key
}

// Menu is one node of the menus connection
type Menu struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

// SectionDescriptor describes one sections/<name>.liquid file and the files that assign it
type SectionDescriptor struct {
	ID              string   `json:"id"`
	FileName        string   `json:"fileName"`
	Key             string   `json:"key"`
	SchemaName      string   `json:"schemaName"`
	AssignmentCount int      `json:"assignmentCount"`
	Assignments     []string `json:"assignments"`
}

// AddAssignment records assetKey as assigning this section. Returns false when already present.
func (s *SectionDescriptor) AddAssignment(assetKey string) bool {
	for _, existing := range s.Assignments {
		if existing == assetKey {
			return false
		}
	}
	s.Assignments = append(s.Assignments, assetKey)
	s.AssignmentCount = len(s.Assignments)
	return true
}
