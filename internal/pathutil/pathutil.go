// Package pathutil implements dotted-path lookup and recursive key
// enumeration over nested JSON-shaped maps (spec §4.2), grounded on
// original_source/backend/utils/utils.go's hierarchical_dict_lookup and
// hierarchical_keys.
package pathutil

import (
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/R3E-Network/resource-broker/internal/brokererr"
)

// Lookup resolves a dotted path ("a.b.c") against a nested map, descending
// one segment at a time. Returns brokererr.Validation if any segment is
// absent or an intermediate value is not a map — there is no MissingKey
// member in the closed taxonomy (§7), so a missing key is treated as the
// same malformed-input condition as any other lookup failure.
func Lookup(m map[string]interface{}, key string) (interface{}, error) {
	segments := strings.Split(key, ".")
	var cur interface{} = m
	for i, seg := range segments {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return nil, brokererr.New(brokererr.Validation, "%s not found in dictionary", key)
		}
		val, ok := asMap[seg]
		if !ok {
			return nil, brokererr.New(brokererr.Validation, "%s not found in dictionary", key)
		}
		cur = val
		_ = i
	}
	return cur, nil
}

// LookupFast resolves a dotted path using a jsonpath expression, for
// read-only query paths that do not need Lookup's precise
// segment-by-segment error reporting (DOMAIN STACK, SPEC_FULL.md §4.2).
func LookupFast(m map[string]interface{}, key string) (interface{}, error) {
	expr := "$." + key
	val, err := jsonpath.Get(expr, m)
	if err != nil {
		return nil, brokererr.New(brokererr.Validation, "%s not found in dictionary", key)
	}
	return val, nil
}

// AllKeys returns every dotted path reachable in the map, including
// interior keys (both "data" and "data.x" are present for a nested
// object at "data"). Iteration order is map order in the original, which
// Go does not guarantee; to honor the "deterministic across two calls"
// invariant this returns keys sorted lexicographically.
func AllKeys(m map[string]interface{}, prefix string) []string {
	var keys []string
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		current := k
		if prefix != "" {
			current = prefix + "." + k
		}
		if nested, ok := m[k].(map[string]interface{}); ok {
			keys = append(keys, AllKeys(nested, current)...)
		}
		keys = append(keys, current)
	}
	sort.Strings(keys)
	return keys
}
