package payout

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Params is what could be learned about a tool's parameters.
type Params struct {
	Names    []string
	Required []string
	Types    map[string]string
}

// Has reports whether a parameter named name exists, ignoring case.
func (p Params) Has(name string) bool {
	_, ok := p.Declared(name)
	return ok
}

// Declared returns the parameter matching name, ignoring case, spelled the
// way the schema declares it.
func (p Params) Declared(name string) (string, bool) {
	for _, n := range p.Names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

var keyPattern = regexp.MustCompile(`"([a-zA-Z_][a-zA-Z0-9_]*)":`)

// Introspect reads parameter names from a typed-shape schema
// ({"_def":{"shape":{...}}} or {"shape":{...}}), a JSON Schema object with
// "properties", or as a last resort any object keys found in the schema.
func Introspect(schema any) Params {
	out := Params{Types: map[string]string{}}
	m, _ := schema.(map[string]any)
	if m == nil {
		return out
	}

	if shape := typedShape(m); shape != nil {
		out.Names = sortedKeys(shape)
		for _, name := range out.Names {
			if def, ok := nested(shape[name], "_def"); ok {
				if tn, ok := def["typeName"].(string); ok {
					out.Types[name] = tn
					continue
				}
			}
			out.Types[name] = "unknown"
		}
		return out
	}

	if props, ok := m["properties"].(map[string]any); ok {
		out.Names = sortedKeys(props)
		for _, name := range out.Names {
			typ := "unknown"
			if p, ok := props[name].(map[string]any); ok {
				if s, ok := p["type"].(string); ok {
					typ = s
				}
			}
			out.Types[name] = typ
		}
		if req, ok := m["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					out.Required = append(out.Required, s)
				}
			}
		}
		return out
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return out
	}
	seen := map[string]struct{}{}
	for _, match := range keyPattern.FindAllStringSubmatch(string(raw), -1) {
		if _, dup := seen[match[1]]; dup {
			continue
		}
		seen[match[1]] = struct{}{}
		out.Names = append(out.Names, match[1])
	}
	return out
}

func typedShape(m map[string]any) map[string]any {
	if def, ok := nested(m, "_def"); ok {
		if shape, ok := def["shape"].(map[string]any); ok {
			return shape
		}
	}
	if shape, ok := m["shape"].(map[string]any); ok {
		return shape
	}
	return nil
}

func nested(v any, key string) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	inner, ok := m[key].(map[string]any)
	return inner, ok
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
