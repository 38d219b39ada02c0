package pathutil

import (
	"reflect"
	"testing"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
)

func sampleMap() map[string]interface{} {
	return map[string]interface{}{
		"a": "dw",
		"b": map[string]interface{}{
			"c": map[string]interface{}{
				"d": "fsd",
				"k": "dw",
			},
		},
	}
}

func TestLookup(t *testing.T) {
	m := sampleMap()

	val, err := Lookup(m, "b.c.d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "fsd" {
		t.Errorf("Lookup() = %v, want %q", val, "fsd")
	}
}

func TestLookupMissingKey(t *testing.T) {
	m := sampleMap()

	_, err := Lookup(m, "b.missing.d")
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	if brokererr.KindOf(err) != brokererr.Validation {
		t.Errorf("KindOf() = %s, want %s", brokererr.KindOf(err), brokererr.Validation)
	}
}

func TestLookupThroughNonMap(t *testing.T) {
	m := sampleMap()

	_, err := Lookup(m, "a.x")
	if err == nil {
		t.Fatal("expected error when descending through a non-map value")
	}
}

func TestAllKeysIncludesInteriorAndLeaf(t *testing.T) {
	m := sampleMap()

	got := AllKeys(m, "")
	want := []string{"a", "b", "b.c", "b.c.d", "b.c.k"}
	sorted := append([]string{}, want...)
	if !reflect.DeepEqual(dedupe(got), dedupe(sorted)) {
		t.Errorf("AllKeys() = %v, want %v", got, want)
	}
}

func TestAllKeysDeterministic(t *testing.T) {
	m := sampleMap()
	first := AllKeys(m, "")
	second := AllKeys(m, "")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("AllKeys() not deterministic: %v vs %v", first, second)
	}
}

func dedupe(keys []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
