package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// FacetFilter keeps (or, with Keep=false, removes) records whose value for every
// listed facet is one of the given values.
type FacetFilter struct {
	Facets map[string][]string
	Keep   bool
}

// Include builds a keeping filter.
func Include(facets map[string][]string) FacetFilter {
	return FacetFilter{Facets: facets, Keep: true}
}

// Exclude builds a removing filter.
func Exclude(facets map[string][]string) FacetFilter {
	return FacetFilter{Facets: facets, Keep: false}
}

// Matches reports whether the record satisfies the membership predicate, ignoring Keep.
func (f FacetFilter) Matches(r Record) bool {
	for facet, values := range f.Facets {
		v, ok := r.Value(facet)
		if !ok || !contains(values, v) {
			return false
		}
	}
	return true
}

// sortedFacets returns the facet names in lexical order.
func (f FacetFilter) sortedFacets() []string {
	out := make([]string, 0, len(f.Facets))
	for facet := range f.Facets {
		out = append(out, facet)
	}
	sort.Strings(out)
	return out
}

// String renders the filter deterministically, used when comparing requirements.
func (f FacetFilter) String() string {
	parts := make([]string, 0, len(f.Facets))
	for _, facet := range f.sortedFacets() {
		values := append([]string(nil), f.Facets[facet]...)
		sort.Strings(values)
		parts = append(parts, fmt.Sprintf("%s in [%s]", facet, strings.Join(values, ",")))
	}
	verb := "keep"
	if !f.Keep {
		verb = "drop"
	}
	return verb + "(" + strings.Join(parts, "; ") + ")"
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
