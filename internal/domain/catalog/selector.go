package catalog

import (
	"sort"
	"strings"
)

// Pair is one (facet, value) element of a SelectorKey.
type Pair struct {
	Facet string `json:"facet"`
	Value string `json:"value"`
}

// SelectorKey identifies a group by the concrete values of its group-by facets.
// It is always sorted by facet name so grouping order never changes the key.
type SelectorKey []Pair

// NewSelectorKey pairs facets with values and sorts the result by facet name.
func NewSelectorKey(facets, values []string) SelectorKey {
	key := make(SelectorKey, 0, len(facets))
	for i, facet := range facets {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		key = append(key, Pair{Facet: facet, Value: value})
	}
	sort.SliceStable(key, func(i, j int) bool { return key[i].Facet < key[j].Facet })
	return key
}

// String renders the key as comma separated facet=value pairs.
func (k SelectorKey) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = p.Facet + "=" + p.Value
	}
	return strings.Join(parts, ",")
}

// Map returns the key as a facet to value map.
func (k SelectorKey) Map() map[string]string {
	out := make(map[string]string, len(k))
	for _, p := range k {
		out[p.Facet] = p.Value
	}
	return out
}

// Equal compares two keys pair by pair.
func (k SelectorKey) Equal(other SelectorKey) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}
