package diagnostic

import (
	"fmt"
	"strings"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/constraint"
)

// DataRequirement declares which records of one source type a diagnostic needs
// and how they are split into execution groups.
//
// Filters run before grouping. A nil GroupBy produces a single group holding every
// filtered record; a non-nil empty GroupBy is rejected. Constraints are applied to
// each group in order.
type DataRequirement struct {
	SourceType  catalog.SourceType
	Filters     []catalog.FacetFilter
	GroupBy     []string
	Constraints []constraint.Constraint
}

// String renders the requirement deterministically. Two requirements with equal
// strings select the same groups.
func (r DataRequirement) String() string {
	filters := make([]string, len(r.Filters))
	for i, f := range r.Filters {
		filters[i] = f.String()
	}
	constraints := make([]string, len(r.Constraints))
	for i, c := range r.Constraints {
		constraints[i] = c.String()
	}
	groupBy := "none"
	if r.GroupBy != nil {
		groupBy = "(" + strings.Join(r.GroupBy, ",") + ")"
	}
	return fmt.Sprintf("%s filters=[%s] group_by=%s constraints=[%s]",
		r.SourceType, strings.Join(filters, " "), groupBy, strings.Join(constraints, " "))
}

// Equal compares requirements by value.
func (r DataRequirement) Equal(other DataRequirement) bool {
	return r.String() == other.String()
}

// Requirements is either a single set of requirements that must all hold together,
// or a list of alternative sets solved independently.
type Requirements struct {
	sets         [][]DataRequirement
	alternatives bool
}

// AllOf combines requirements whose groups are joined into one execution.
func AllOf(reqs ...DataRequirement) Requirements {
	return Requirements{sets: [][]DataRequirement{reqs}}
}

// AnyOf lists alternative requirement sets. Each set yields its own executions.
func AnyOf(sets ...[]DataRequirement) Requirements {
	return Requirements{sets: sets, alternatives: true}
}

// Sets returns the requirement sets to solve. AllOf yields exactly one.
func (r Requirements) Sets() [][]DataRequirement {
	return r.sets
}

// Alternatives reports whether the requirements were declared with AnyOf.
func (r Requirements) Alternatives() bool {
	return r.alternatives
}

// SourceTypes returns every source type referenced, without duplicates.
func (r Requirements) SourceTypes() []catalog.SourceType {
	seen := map[catalog.SourceType]struct{}{}
	var out []catalog.SourceType
	for _, set := range r.sets {
		for _, req := range set {
			if _, ok := seen[req.SourceType]; ok {
				continue
			}
			seen[req.SourceType] = struct{}{}
			out = append(out, req.SourceType)
		}
	}
	return out
}
