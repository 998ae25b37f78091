package handlers

import (
	"regexp"
	"sort"

	"discoveryScope/internal/discovery"
	"discoveryScope/internal/model"
)

var referencePattern = regexp.MustCompile(`^\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}$`)

// reference returns the field name of a "{{ field }}" value.
func reference(value interface{}) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	m := referencePattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// references collects the field names referenced by values, looking into
// nested lists.
func references(values ...interface{}) []string {
	seen := make(map[string]struct{})
	var walk func(interface{})
	walk = func(v interface{}) {
		if name, ok := reference(v); ok {
			seen[name] = struct{}{}
			return
		}
		if list, ok := v.([]interface{}); ok {
			for _, item := range list {
				walk(item)
			}
		}
	}
	for _, v := range values {
		walk(v)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// resolve replaces a reference with the dependency value and returns
// literals unchanged.
func resolve(p discovery.Provider, value interface{}) (model.Value, error) {
	if name, ok := reference(value); ok {
		return p.Dependency(name)
	}
	return value, nil
}

func resolveAll(p discovery.Provider, values []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(values))
	for i, v := range values {
		resolved, err := resolve(p, v)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}
