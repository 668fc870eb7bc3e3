package scan

import (
	"encoding/json"
	"sort"
	"strings"
)

// Kind tags the variant held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a parsed JSON document as a tagged union
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	String string
	Array  []Value
	Object map[string]Value
}

// ParseJSON parses data into a Value. A leading /* ... */ block, which the
// theme editor writes at the top of JSON templates, is ignored.
func ParseJSON(data []byte) (Value, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(StripLeadingComment(string(data))), &raw); err != nil {
		return Value{}, err
	}
	return fromInterface(raw), nil
}

func fromInterface(raw interface{}) Value {
	switch v := raw.(type) {
	case nil:
		return Value{Kind: KindNull}
	case bool:
		return Value{Kind: KindBool, Bool: v}
	case float64:
		return Value{Kind: KindNumber, Number: v}
	case string:
		return Value{Kind: KindString, String: v}
	case []interface{}:
		arr := make([]Value, len(v))
		for i, item := range v {
			arr[i] = fromInterface(item)
		}
		return Value{Kind: KindArray, Array: arr}
	case map[string]interface{}:
		obj := make(map[string]Value, len(v))
		for k, item := range v {
			obj[k] = fromInterface(item)
		}
		return Value{Kind: KindObject, Object: obj}
	default:
		return Value{Kind: KindNull}
	}
}

// Visit calls fn for every object in v, depth-first, descending at most
// maxDepth levels. The root is depth 0. Keys are visited in sorted order.
func (v Value) Visit(maxDepth int, fn func(obj map[string]Value)) {
	v.visit(0, maxDepth, fn)
}

func (v Value) visit(depth, maxDepth int, fn func(obj map[string]Value)) {
	if depth > maxDepth {
		return
	}
	switch v.Kind {
	case KindArray:
		for _, item := range v.Array {
			item.visit(depth+1, maxDepth, fn)
		}
	case KindObject:
		fn(v.Object)
		keys := make([]string, 0, len(v.Object))
		for k := range v.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v.Object[k].visit(depth+1, maxDepth, fn)
		}
	}
}

// StringFields collects the string values stored under any of fields, in
// every object reachable within maxDepth. Duplicates are dropped.
func (v Value) StringFields(maxDepth int, fields ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	v.Visit(maxDepth, func(obj map[string]Value) {
		for _, f := range fields {
			item, ok := obj[f]
			if !ok || item.Kind != KindString || item.String == "" {
				continue
			}
			if _, dup := seen[item.String]; dup {
				continue
			}
			seen[item.String] = struct{}{}
			out = append(out, item.String)
		}
	})
	return out
}

// StripLeadingComment removes one /* ... */ block preceding the document
func StripLeadingComment(content string) string {
	trimmed := strings.TrimLeft(content, " \t\r\n\ufeff")
	if !strings.HasPrefix(trimmed, "/*") {
		return content
	}
	end := strings.Index(trimmed, "*/")
	if end < 0 {
		return content
	}
	return trimmed[end+2:]
}
