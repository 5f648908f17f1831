package catalog

import (
	"sort"
	"strings"
	"time"
)

// Distinguished facet names.
const (
	FacetPath      = "path"
	FacetStartTime = "start_time"
	FacetEndTime   = "end_time"
)

// SourceType names the kind of data a catalog holds.
type SourceType string

const (
	SourceCMIP6          SourceType = "cmip6"
	SourceObs4MIPs       SourceType = "obs4mips"
	SourcePMPClimatology SourceType = "pmp-climatology"
)

// Record is one immutable dataset row: a flat mapping of facet name to value plus
// the file path and optional time bounds. Records are never mutated once built;
// use NewRecord so the facet map is owned by the record.
type Record struct {
	Path      string            `json:"path"`
	StartTime *time.Time        `json:"start_time,omitempty"`
	EndTime   *time.Time        `json:"end_time,omitempty"`
	Facets    map[string]string `json:"facets"`
}

// NewRecord copies facets into a new Record.
func NewRecord(path string, facets map[string]string, start, end *time.Time) Record {
	owned := make(map[string]string, len(facets))
	for k, v := range facets {
		owned[k] = v
	}
	return Record{Path: path, StartTime: cloneTime(start), EndTime: cloneTime(end), Facets: owned}
}

// Value returns the value of a facet, including the distinguished path and time facets.
func (r Record) Value(facet string) (string, bool) {
	switch facet {
	case FacetPath:
		return r.Path, r.Path != ""
	case FacetStartTime:
		if r.StartTime == nil {
			return "", false
		}
		return r.StartTime.UTC().Format(time.RFC3339), true
	case FacetEndTime:
		if r.EndTime == nil {
			return "", false
		}
		return r.EndTime.UTC().Format(time.RFC3339), true
	}
	v, ok := r.Facets[facet]
	return v, ok
}

// Dated reports whether both time bounds are present.
func (r Record) Dated() bool {
	return r.StartTime != nil && r.EndTime != nil
}

// Identity is the (path, start_time) pair that is unique within one dataset instance.
func (r Record) Identity() string {
	start, _ := r.Value(FacetStartTime)
	return r.Path + "\x00" + start
}

// Canonical renders every facet of the record in sorted order. Two records with equal
// canonical forms are indistinguishable to the solver.
func (r Record) Canonical() string {
	keys := make([]string, 0, len(r.Facets))
	for k := range r.Facets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(FacetPath)
	b.WriteByte('=')
	b.WriteString(r.Path)
	for _, facet := range []string{FacetStartTime, FacetEndTime} {
		if v, ok := r.Value(facet); ok {
			b.WriteByte(';')
			b.WriteString(facet)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	for _, k := range keys {
		b.WriteByte(';')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.Facets[k])
	}
	return b.String()
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
