package constraint

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
)

const (
	facetVersion    = "version"
	facetInstanceID = "instance_id"
)

// AddSupplementaryDataset adds the best matching supplementary records (cell areas,
// land fractions and the like) to a group.
//
// Candidates are catalog records matching SupplementaryFacets whose MatchingFacets
// values occur in the group. For every distinct combination of matching and
// optional facets in the group, the candidate sharing the most values wins; ties
// go to the highest version. Missing supplementary data is not an error.
type AddSupplementaryDataset struct {
	SupplementaryFacets    map[string][]string
	MatchingFacets         []string
	OptionalMatchingFacets []string
}

// FromDefaults returns the usual preset for attaching variable from sourceType.
func FromDefaults(variable string, sourceType catalog.SourceType) AddSupplementaryDataset {
	c := AddSupplementaryDataset{
		SupplementaryFacets: map[string][]string{"variable_id": {variable}},
		MatchingFacets:      []string{"source_id", "grid_label"},
	}
	if sourceType == catalog.SourceCMIP6 {
		c.OptionalMatchingFacets = []string{"table_id", "experiment_id", "member_id", facetVersion}
	}
	return c
}

func (AddSupplementaryDataset) isConstraint() {}

func (c AddSupplementaryDataset) String() string {
	return fmt.Sprintf("AddSupplementaryDataset(%s match %s optional %s)",
		catalog.Include(c.SupplementaryFacets).String(),
		strings.Join(c.MatchingFacets, ","),
		strings.Join(c.OptionalMatchingFacets, ","))
}

// Apply implements Operation.
func (c AddSupplementaryDataset) Apply(ctx context.Context, group catalog.Records, cat *catalog.DataCatalog) (catalog.Records, error) {
	supplementary := make([]string, 0, len(c.SupplementaryFacets))
	for facet := range c.SupplementaryFacets {
		supplementary = append(supplementary, facet)
	}
	sort.Strings(supplementary)
	if err := cat.CheckFacets("constraints.add_supplementary_dataset.supplementary_facets", supplementary...); err != nil {
		return nil, err
	}
	if err := cat.CheckFacets("constraints.add_supplementary_dataset.matching_facets", c.MatchingFacets...); err != nil {
		return nil, err
	}

	selector := make(map[string][]string, len(c.SupplementaryFacets)+len(c.MatchingFacets))
	for facet, values := range c.SupplementaryFacets {
		selector[facet] = values
	}
	for _, facet := range c.MatchingFacets {
		selector[facet] = group.Unique(facet)
	}
	candidates := cat.Select(selector)
	if len(candidates) == 0 {
		return group, nil
	}

	facets := append(append([]string(nil), c.MatchingFacets...), c.OptionalMatchingFacets...)
	var chosen catalog.Records
	for _, combo := range distinct(group, facets) {
		best := bestMatch(ctx, candidates, facets, combo)
		if best == nil {
			continue
		}
		chosen = append(chosen, expandInstance(candidates, *best)...)
	}
	return group.Union(chosen), nil
}

// distinct returns the unique value tuples of facets in records, in record order.
func distinct(records catalog.Records, facets []string) []map[string]string {
	seen := map[string]struct{}{}
	var out []map[string]string
	for _, row := range records.Project(facets...) {
		parts := make([]string, len(facets))
		for i, f := range facets {
			parts[i] = f + "=" + row[f]
		}
		id := strings.Join(parts, "\x00")
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, row)
	}
	return out
}

func bestMatch(ctx context.Context, candidates catalog.Records, facets []string, combo map[string]string) *catalog.Record {
	bestScore := -1
	var best catalog.Records
	for _, cand := range candidates {
		score := 0
		for _, f := range facets {
			want, ok := combo[f]
			if !ok {
				continue
			}
			if got, ok := cand.Value(f); ok && got == want {
				score++
			}
		}
		switch {
		case score > bestScore:
			bestScore = score
			best = catalog.Records{cand}
		case score == bestScore:
			best = append(best, cand)
		}
	}
	if len(best) == 0 {
		return nil
	}
	if len(best) == 1 {
		return &best[0]
	}

	versions := best.Unique(facetVersion)
	if len(versions) == 0 {
		// Candidates are canonically ordered so the first one is stable across runs.
		LoggerFrom(ctx).Warn(ctx, "ambiguous supplementary dataset match without a version facet",
			"candidates", len(best), "chosen", best[0].Path)
		return &best[0]
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if versionLess(latest, v) {
			latest = v
		}
	}
	for i := range best {
		if v, _ := best[i].Value(facetVersion); v == latest {
			return &best[i]
		}
	}
	return &best[0]
}

// expandInstance returns every candidate belonging to the same dataset instance as
// chosen, so multi-file supplementary datasets are kept whole.
func expandInstance(candidates catalog.Records, chosen catalog.Record) catalog.Records {
	id, ok := chosen.Value(facetInstanceID)
	if !ok {
		return catalog.Records{chosen}
	}
	return candidates.Where(func(r catalog.Record) bool {
		v, ok := r.Value(facetInstanceID)
		return ok && v == id
	})
}

// versionLess compares versions numerically after stripping a leading "v", and
// lexically when either side is not a number.
func versionLess(a, b string) bool {
	na, errA := strconv.ParseInt(strings.TrimPrefix(a, "v"), 10, 64)
	nb, errB := strconv.ParseInt(strings.TrimPrefix(b, "v"), 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
