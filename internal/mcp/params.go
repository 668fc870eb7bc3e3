package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
)

// UnknownField is an argument the tool does not understand. Unknown
// arguments are reported back as warnings instead of failing the call.
type UnknownField struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

func (u UnknownField) String() string {
	return fmt.Sprintf("unknown parameter %q ignored", u.Name)
}

// ScanReferencesParams for the metafield, metaobject, menu and template scans
type ScanReferencesParams struct {
	Type      string         `json:"type"`
	ThemeID   int64          `json:"theme_id,omitempty"`
	BatchSize int            `json:"batch_size,omitempty"` // 0 keeps the configured batch size
	DelayMs   *int           `json:"delay_ms,omitempty"`   // nil keeps the configured delay
	Warnings  []UnknownField `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling that accepts unknown fields
func (p *ScanReferencesParams) UnmarshalJSON(data []byte) error {
	type Alias ScanReferencesParams

	warnings, err := collectUnknownFields(data, "type", "theme_id", "batch_size", "delay_ms")
	if err != nil {
		return err
	}
	var alias Alias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = ScanReferencesParams(alias)
	p.Warnings = warnings
	return nil
}

// ScanSectionsParams for the section scan
type ScanSectionsParams struct {
	ThemeID   int64          `json:"theme_id,omitempty"`
	BatchSize int            `json:"batch_size,omitempty"`
	DelayMs   *int           `json:"delay_ms,omitempty"`
	Warnings  []UnknownField `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling that accepts unknown fields
func (p *ScanSectionsParams) UnmarshalJSON(data []byte) error {
	type Alias ScanSectionsParams

	warnings, err := collectUnknownFields(data, "theme_id", "batch_size", "delay_ms")
	if err != nil {
		return err
	}
	var alias Alias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = ScanSectionsParams(alias)
	p.Warnings = warnings
	return nil
}

type InfoParams struct {
	Tool     string         `json:"tool,omitempty"`
	Warnings []UnknownField `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling that accepts unknown fields
func (i *InfoParams) UnmarshalJSON(data []byte) error {
	type Alias InfoParams

	warnings, err := collectUnknownFields(data, "tool")
	if err != nil {
		return err
	}
	var alias Alias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*i = InfoParams(alias)
	i.Warnings = warnings
	return nil
}

// collectUnknownFields returns the top-level keys of data that are not in known,
// sorted by name
func collectUnknownFields(data []byte, known ...string) ([]UnknownField, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(known))
	for _, k := range known {
		allowed[k] = struct{}{}
	}

	var warnings []UnknownField
	for key, value := range raw {
		if _, ok := allowed[key]; ok {
			continue
		}
		warnings = append(warnings, decodeUnknownField(key, value))
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Name < warnings[j].Name })
	return warnings, nil
}

func decodeUnknownField(name string, data json.RawMessage) UnknownField {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		value = string(data)
	}
	return UnknownField{Name: name, Value: value}
}

func warningStrings(fields []UnknownField) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.String()
	}
	return out
}

// decodeArguments unmarshals tool arguments, treating a missing payload as {}
func decodeArguments(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	return json.Unmarshal(raw, v)
}
