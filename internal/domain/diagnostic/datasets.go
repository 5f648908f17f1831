package diagnostic

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
)

// DatasetCollection is the group of records one requirement contributed to an
// execution.
type DatasetCollection struct {
	SourceType catalog.SourceType  `json:"source_type"`
	Selector   catalog.SelectorKey `json:"selector"`
	Records    catalog.Records     `json:"records"`
}

// ExecutionDatasets holds the contributing collection for each source type.
type ExecutionDatasets map[catalog.SourceType]DatasetCollection

// SourceTypes returns the source types present, in lexical order.
func (d ExecutionDatasets) SourceTypes() []catalog.SourceType {
	out := make([]catalog.SourceType, 0, len(d))
	for st := range d {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Key joins the per-source selectors, sources in lexical order, e.g.
// "cmip6[experiment_id=ssp119,variable_id=tas]+obs4mips[source_id=HadISST]".
func (d ExecutionDatasets) Key() string {
	parts := make([]string, 0, len(d))
	for _, st := range d.SourceTypes() {
		parts = append(parts, string(st)+"["+d[st].Selector.String()+"]")
	}
	return strings.Join(parts, "+")
}

// Selectors returns the per-source selectors as plain maps.
func (d ExecutionDatasets) Selectors() map[string]map[string]string {
	out := make(map[string]map[string]string, len(d))
	for st, c := range d {
		out[string(st)] = c.Selector.Map()
	}
	return out
}

// Hash is the sha256 of every facet, path and time bound of every contributing
// record. Sources and records are visited in canonical order, so the hash only
// changes when the contributing data changes.
func (d ExecutionDatasets) Hash() string {
	h := sha256.New()
	for _, st := range d.SourceTypes() {
		h.Write([]byte("source:" + string(st) + "\n"))
		for _, r := range d[st].Records.Sorted() {
			h.Write([]byte(r.Canonical()))
			h.Write([]byte{'\n'})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Paths returns every contributing file path, sorted.
func (d ExecutionDatasets) Paths() []string {
	var out []string
	for _, st := range d.SourceTypes() {
		out = append(out, d[st].Records.Unique(catalog.FacetPath)...)
	}
	sort.Strings(out)
	return out
}
