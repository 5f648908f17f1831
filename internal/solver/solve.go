// Package solver decides which diagnostic executions a data catalog supports and
// which of them need to run.
package solver

import (
	"context"
	"fmt"
	"sort"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/constraint"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

// Candidate is one execution a diagnostic could run: the diagnostic plus the
// records each of its requirements selected.
type Candidate struct {
	Provider   diagnostic.Provider
	Diagnostic diagnostic.Diagnostic
	Datasets   diagnostic.ExecutionDatasets
}

// DiagnosticID is the provider-qualified diagnostic slug.
func (c Candidate) DiagnosticID() string {
	return diagnostic.FullSlug(c.Provider, c.Diagnostic)
}

// Key identifies the candidate's group within its diagnostic.
func (c Candidate) Key() string { return c.Datasets.Key() }

// Hash fingerprints the candidate's contributing records.
func (c Candidate) Hash() string { return c.Datasets.Hash() }

// DatasetSlugs lists the distinct dataset instances the candidate reads.
func (c Candidate) DatasetSlugs() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, st := range c.Datasets.SourceTypes() {
		for _, slug := range c.Datasets[st].Records.Unique("instance_id") {
			if _, ok := seen[slug]; ok {
				continue
			}
			seen[slug] = struct{}{}
			out = append(out, slug)
		}
	}
	sort.Strings(out)
	return out
}

// ExtractCoveredDatasets filters cat, groups the result and applies the
// requirement's constraints to every group. Groups that fail a constraint are
// omitted. The returned groups are ordered by key.
func ExtractCoveredDatasets(ctx context.Context, cat *catalog.DataCatalog, req diagnostic.DataRequirement) ([]catalog.Group, error) {
	if req.GroupBy != nil && len(req.GroupBy) == 0 {
		return nil, referrors.NewConfigurationError("group_by", "group_by must name at least one facet or be omitted", nil)
	}
	if cat == nil || cat.Len() == 0 {
		constraint.LoggerFrom(ctx).Debug(ctx, "empty data catalog", "source_type", string(req.SourceType))
		return nil, nil
	}

	filtered, err := cat.Filter(req.Filters...)
	if err != nil {
		return nil, err
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	var groups []catalog.Group
	if req.GroupBy == nil {
		groups = []catalog.Group{{Key: catalog.SelectorKey{}, Records: filtered.Sorted()}}
	} else {
		if err := cat.CheckFacets("group_by", req.GroupBy...); err != nil {
			return nil, err
		}
		groups = filtered.GroupBy(req.GroupBy)
	}

	covered := make([]catalog.Group, 0, len(groups))
	for _, g := range groups {
		records, ok := g.Records, true
		for _, c := range req.Constraints {
			records, ok, err = constraint.Apply(ctx, records, c, cat)
			if err != nil {
				return nil, fmt.Errorf("group %s: %w", g.Key, err)
			}
			if !ok {
				break
			}
		}
		if ok {
			covered = append(covered, catalog.Group{Key: g.Key, Records: records})
		}
	}
	return covered, nil
}

// SolveExecutions yields every candidate d supports given catalogs. Requirements
// declared with AllOf are joined: one candidate per combination of their groups.
// Alternatives declared with AnyOf are solved independently and concatenated.
func SolveExecutions(ctx context.Context, catalogs map[catalog.SourceType]*catalog.DataCatalog, d diagnostic.Diagnostic, provider diagnostic.Provider) ([]Candidate, error) {
	var out []Candidate
	for _, set := range d.DataRequirements().Sets() {
		candidates, err := solveSet(ctx, catalogs, set, d, provider)
		if err != nil {
			return nil, fmt.Errorf("diagnostic %s: %w", diagnostic.FullSlug(provider, d), err)
		}
		out = append(out, candidates...)
	}
	return out, nil
}

func solveSet(ctx context.Context, catalogs map[catalog.SourceType]*catalog.DataCatalog, set []diagnostic.DataRequirement, d diagnostic.Diagnostic, provider diagnostic.Provider) ([]Candidate, error) {
	if len(set) == 0 {
		return nil, nil
	}

	basis := make(map[catalog.SourceType][]catalog.Group, len(set))
	for i, req := range set {
		if _, dup := basis[req.SourceType]; dup {
			return nil, referrors.NewConfigurationError(fmt.Sprintf("data_requirements[%d]", i),
				fmt.Sprintf("source type %s required more than once in the same set", req.SourceType), nil)
		}
		groups, err := ExtractCoveredDatasets(ctx, catalogs[req.SourceType], req)
		if err != nil {
			return nil, fmt.Errorf("data_requirements[%d] (%s): %w", i, req.SourceType, err)
		}
		if len(groups) == 0 {
			return nil, nil
		}
		basis[req.SourceType] = groups
	}

	var out []Candidate
	for _, combo := range cartesian(basis) {
		datasets := make(diagnostic.ExecutionDatasets, len(combo))
		for st, g := range combo {
			datasets[st] = diagnostic.DatasetCollection{SourceType: st, Selector: g.Key, Records: g.Records}
		}
		out = append(out, Candidate{Provider: provider, Diagnostic: d, Datasets: datasets})
	}
	return out, nil
}

// cartesian picks one group per source type in every possible way. Source types
// are visited in lexical order so the output order is stable.
func cartesian(basis map[catalog.SourceType][]catalog.Group) []map[catalog.SourceType]catalog.Group {
	keys := make([]catalog.SourceType, 0, len(basis))
	for k, groups := range basis {
		if len(groups) == 0 {
			return nil
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	known := []map[catalog.SourceType]catalog.Group{{}}
	for _, k := range keys {
		next := make([]map[catalog.SourceType]catalog.Group, 0, len(known)*len(basis[k]))
		for _, partial := range known {
			for _, g := range basis[k] {
				clone := make(map[catalog.SourceType]catalog.Group, len(partial)+1)
				for pk, pv := range partial {
					clone[pk] = pv
				}
				clone[k] = g
				next = append(next, clone)
			}
		}
		known = next
	}
	return known
}
