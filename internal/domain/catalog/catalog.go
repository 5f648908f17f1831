package catalog

import (
	"fmt"
	"sort"
	"strings"

	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

// Records is an ordered collection of dataset records.
type Records []Record

// Group is one partition produced by GroupBy.
type Group struct {
	Key     SelectorKey
	Records Records
}

// DataCatalog is the set of records of one source type for a single solve. It is
// built fresh from the store and never changed afterwards.
type DataCatalog struct {
	sourceType SourceType
	columns    map[string]struct{}
	records    Records
}

// New builds a catalog over records. The known facet set is the union of every
// record's facets plus the distinguished path and time facets and any extra columns.
func New(sourceType SourceType, records []Record, extraColumns ...string) *DataCatalog {
	columns := map[string]struct{}{
		FacetPath:      {},
		FacetStartTime: {},
		FacetEndTime:   {},
	}
	for _, c := range extraColumns {
		columns[c] = struct{}{}
	}
	for _, r := range records {
		for facet := range r.Facets {
			columns[facet] = struct{}{}
		}
	}
	return &DataCatalog{
		sourceType: sourceType,
		columns:    columns,
		records:    Records(records).Sorted(),
	}
}

// SourceType returns the catalog's source type.
func (c *DataCatalog) SourceType() SourceType { return c.sourceType }

// Len returns the number of records.
func (c *DataCatalog) Len() int { return len(c.records) }

// Records returns a copy of the catalog's records in canonical order.
func (c *DataCatalog) Records() Records {
	return append(Records(nil), c.records...)
}

// HasFacet reports whether facet is a known column of the catalog.
func (c *DataCatalog) HasFacet(facet string) bool {
	_, ok := c.columns[facet]
	return ok
}

// Columns returns the known facet names in lexical order.
func (c *DataCatalog) Columns() []string {
	out := make([]string, 0, len(c.columns))
	for col := range c.columns {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

// CheckFacets returns a ConfigurationError naming the first facet the catalog does not know.
func (c *DataCatalog) CheckFacets(field string, facets ...string) error {
	for _, facet := range facets {
		if !c.HasFacet(facet) {
			return referrors.NewConfigurationError(field,
				fmt.Sprintf("facet %q not present in %s catalog (known: %s)", facet, c.sourceType, strings.Join(c.Columns(), ", ")), nil)
		}
	}
	return nil
}

// Filter applies filters in order to the whole catalog. An unknown facet is a
// configuration error.
func (c *DataCatalog) Filter(filters ...FacetFilter) (Records, error) {
	records := c.Records()
	for i, f := range filters {
		if err := c.CheckFacets(fmt.Sprintf("filters[%d]", i), f.sortedFacets()...); err != nil {
			return nil, err
		}
		records = records.Apply(f)
	}
	return records, nil
}

// Select returns every catalog record matching all facet memberships.
func (c *DataCatalog) Select(facets map[string][]string) Records {
	return c.records.Apply(Include(facets))
}

// Apply runs a single facet filter over the records.
func (rs Records) Apply(f FacetFilter) Records {
	return rs.Where(func(r Record) bool { return f.Matches(r) == f.Keep })
}

// Where keeps the records for which pred is true.
func (rs Records) Where(pred func(Record) bool) Records {
	out := make(Records, 0, len(rs))
	for _, r := range rs {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// GroupBy partitions records by their exact values for facets. Records missing any of
// the facets belong to no group. Groups are returned ordered by their value tuple and
// each group keeps the canonical record order.
func (rs Records) GroupBy(facets []string) []Group {
	type bucket struct {
		values  []string
		records Records
	}
	buckets := map[string]*bucket{}
	var order []string

	for _, r := range rs {
		values := make([]string, len(facets))
		complete := true
		for i, facet := range facets {
			v, ok := r.Value(facet)
			if !ok {
				complete = false
				break
			}
			values[i] = v
		}
		if !complete {
			continue
		}
		id := strings.Join(values, "\x00")
		b, ok := buckets[id]
		if !ok {
			b = &bucket{values: values}
			buckets[id] = b
			order = append(order, id)
		}
		b.records = append(b.records, r)
	}

	sort.Slice(order, func(i, j int) bool {
		return lessTuple(buckets[order[i]].values, buckets[order[j]].values)
	})

	groups := make([]Group, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		groups = append(groups, Group{
			Key:     NewSelectorKey(facets, b.values),
			Records: b.records.Sorted(),
		})
	}
	return groups
}

// Unique returns the distinct values of facet, sorted.
func (rs Records) Unique(facet string) []string {
	seen := map[string]struct{}{}
	for _, r := range rs {
		if v, ok := r.Value(facet); ok {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Project returns the values of the given facets for each record.
func (rs Records) Project(facets ...string) []map[string]string {
	out := make([]map[string]string, 0, len(rs))
	for _, r := range rs {
		row := make(map[string]string, len(facets))
		for _, facet := range facets {
			if v, ok := r.Value(facet); ok {
				row[facet] = v
			}
		}
		out = append(out, row)
	}
	return out
}

// Union appends records not already present, comparing by identity, and returns the
// result in canonical order.
func (rs Records) Union(other Records) Records {
	seen := make(map[string]struct{}, len(rs)+len(other))
	out := make(Records, 0, len(rs)+len(other))
	for _, set := range []Records{rs, other} {
		for _, r := range set {
			id := r.Identity()
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, r)
		}
	}
	return out.Sorted()
}

// Dated keeps records with both time bounds.
func (rs Records) Dated() Records {
	return rs.Where(Record.Dated)
}

// Sorted returns a copy ordered by path then start time then remaining facets.
func (rs Records) Sorted() Records {
	out := append(Records(nil), rs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		si, sj := out[i].StartTime, out[j].StartTime
		switch {
		case si == nil && sj != nil:
			return true
		case si != nil && sj == nil:
			return false
		case si != nil && sj != nil && !si.Equal(*sj):
			return si.Before(*sj)
		}
		return out[i].Canonical() < out[j].Canonical()
	})
	return out
}

func lessTuple(a, b []string) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
