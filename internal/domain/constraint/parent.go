package constraint

import (
	"context"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
)

const facetParentExperiment = "parent_experiment_id"

// parentMatchingFacets must agree between a group and its parent experiment data.
var parentMatchingFacets = []string{"source_id", "variable_id", "grid_label", "table_id"}

// SelectParentExperiment adds the records of the experiment the group was branched
// from. Groups without any parent data are not satisfiable.
type SelectParentExperiment struct{}

func (SelectParentExperiment) isConstraint() {}

func (SelectParentExperiment) String() string { return "SelectParentExperiment()" }

// Apply implements Operation.
func (SelectParentExperiment) Apply(_ context.Context, group catalog.Records, cat *catalog.DataCatalog) (catalog.Records, error) {
	if err := cat.CheckFacets("constraints.select_parent_experiment", facetParentExperiment); err != nil {
		return nil, err
	}
	parents := group.Unique(facetParentExperiment)
	if len(parents) == 0 {
		return nil, ErrNotSatisfiable
	}

	selector := map[string][]string{"experiment_id": parents}
	for _, facet := range parentMatchingFacets {
		if !cat.HasFacet(facet) {
			continue
		}
		if values := group.Unique(facet); len(values) > 0 {
			selector[facet] = values
		}
	}
	parentRecords := cat.Select(selector)
	if len(parentRecords) == 0 {
		return nil, ErrNotSatisfiable
	}
	return group.Union(parentRecords), nil
}
