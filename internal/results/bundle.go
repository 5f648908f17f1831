package results

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cast"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
)

// attributesKey holds free-form attributes at any level of RESULTS.
const attributesKey = "attributes"

// MetricBundle is a CMEC metric bundle. RESULTS is nested one level per entry of
// DIMENSIONS.json_structure, with numeric leaves.
type MetricBundle struct {
	Structure  []string
	Dimensions map[string]map[string]interface{}
	Results    map[string]interface{}
	Provenance map[string]interface{}
}

type rawMetricBundle struct {
	Dimensions map[string]json.RawMessage `json:"DIMENSIONS"`
	Results    map[string]interface{}     `json:"RESULTS"`
	Provenance map[string]interface{}     `json:"PROVENANCE"`
}

// ReadMetricBundle parses the bundle at path.
func ReadMetricBundle(path string) (*MetricBundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMetricBundle(f)
}

// ParseMetricBundle decodes a bundle and checks its declared structure.
func ParseMetricBundle(r io.Reader) (*MetricBundle, error) {
	var raw rawMetricBundle
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode metric bundle: %w", err)
	}
	structureJSON, ok := raw.Dimensions["json_structure"]
	if !ok {
		return nil, fmt.Errorf("metric bundle has no DIMENSIONS.json_structure")
	}
	b := &MetricBundle{
		Dimensions: map[string]map[string]interface{}{},
		Results:    raw.Results,
		Provenance: raw.Provenance,
	}
	if err := json.Unmarshal(structureJSON, &b.Structure); err != nil {
		return nil, fmt.Errorf("decode json_structure: %w", err)
	}
	for _, dim := range b.Structure {
		declared := map[string]interface{}{}
		if msg, ok := raw.Dimensions[dim]; ok {
			if err := json.Unmarshal(msg, &declared); err != nil {
				return nil, fmt.Errorf("decode dimension %s: %w", dim, err)
			}
		}
		b.Dimensions[dim] = declared
	}
	return b, nil
}

// Scalars flattens RESULTS into one value per numeric leaf. Attributes declared
// on a level apply to every value below it. Non-numeric leaves are skipped.
func (b *MetricBundle) Scalars() ([]execution.MetricValue, error) {
	var out []execution.MetricValue
	var walk func(node map[string]interface{}, depth int, dims, attrs map[string]string) error
	walk = func(node map[string]interface{}, depth int, dims, attrs map[string]string) error {
		if a, ok := node[attributesKey].(map[string]interface{}); ok {
			attrs = merge(attrs, cast.ToStringMapString(a))
		}
		for _, key := range sortedKeys(node) {
			if key == attributesKey {
				continue
			}
			next := merge(dims, map[string]string{b.Structure[depth]: key})
			child := node[key]
			if depth == len(b.Structure)-1 {
				value, ok := child.(float64)
				if !ok {
					continue
				}
				out = append(out, execution.MetricValue{
					Kind:       execution.ValueScalar,
					Dimensions: next,
					Value:      value,
					Attributes: attrs,
				})
				continue
			}
			childMap, ok := child.(map[string]interface{})
			if !ok {
				return fmt.Errorf("RESULTS at %v: expected a mapping for dimension %s", next, b.Structure[depth+1])
			}
			if err := walk(childMap, depth+1, next, attrs); err != nil {
				return err
			}
		}
		return nil
	}
	if len(b.Structure) == 0 || len(b.Results) == 0 {
		return nil, nil
	}
	if err := walk(b.Results, 0, map[string]string{}, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// OutputEntry is one file listed in an output bundle.
type OutputEntry struct {
	Filename    string `json:"filename"`
	LongName    string `json:"long_name"`
	Description string `json:"description"`
}

// OutputBundle is a CMEC output bundle listing the plots, data and html an
// execution produced.
type OutputBundle struct {
	Index      string                 `json:"index"`
	Provenance map[string]interface{} `json:"provenance"`
	Data       map[string]OutputEntry `json:"data"`
	Plots      map[string]OutputEntry `json:"plots"`
	HTML       map[string]OutputEntry `json:"html"`
}

// ReadOutputBundle parses the output bundle at path.
func ReadOutputBundle(path string) (*OutputBundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var b OutputBundle
	if err := json.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode output bundle: %w", err)
	}
	return &b, nil
}

// Outputs lists every entry ordered by type then short name.
func (b *OutputBundle) Outputs() []execution.Output {
	var out []execution.Output
	for _, section := range []struct {
		kind    execution.OutputType
		entries map[string]OutputEntry
	}{
		{execution.OutputData, b.Data},
		{execution.OutputHTML, b.HTML},
		{execution.OutputPlot, b.Plots},
	} {
		names := make([]string, 0, len(section.entries))
		for name := range section.entries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			e := section.entries[name]
			out = append(out, execution.Output{
				Type:        section.kind,
				ShortName:   name,
				Filename:    e.Filename,
				LongName:    e.LongName,
				Description: e.Description,
			})
		}
	}
	return out
}

type seriesEntry struct {
	Dimensions map[string]interface{} `json:"dimensions"`
	Values     []float64              `json:"values"`
	Index      []interface{}          `json:"index"`
	IndexName  string                 `json:"index_name"`
	Attributes map[string]interface{} `json:"attributes"`
}

// ReadSeries parses a series file: a JSON list of
// {dimensions, values, index, index_name, attributes}. Index entries may be
// numbers or strings and are stored as strings.
func ReadSeries(path string) ([]execution.MetricValue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []seriesEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	out := make([]execution.MetricValue, 0, len(entries))
	for i, e := range entries {
		if len(e.Values) != len(e.Index) {
			return nil, fmt.Errorf("series[%d]: %d values for %d index entries", i, len(e.Values), len(e.Index))
		}
		index, err := cast.ToStringSliceE(e.Index)
		if err != nil {
			return nil, fmt.Errorf("series[%d] index: %w", i, err)
		}
		out = append(out, execution.MetricValue{
			Kind:       execution.ValueSeries,
			Dimensions: cast.ToStringMapString(e.Dimensions),
			Values:     e.Values,
			Index:      index,
			IndexName:  e.IndexName,
			Attributes: cast.ToStringMapString(e.Attributes),
		})
	}
	return out, nil
}

func merge(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
