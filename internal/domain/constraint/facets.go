package constraint

import (
	"context"
	"fmt"
	"strings"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

// Operator selects how RequireFacets combines its required values.
type Operator string

const (
	OperatorAll Operator = "all"
	OperatorAny Operator = "any"
)

// RequireFacets keeps the partitions of a group whose Dimension values include
// all (or any) of Values. Partitions are formed by GroupBy; with no GroupBy the
// whole group is a single partition.
type RequireFacets struct {
	Dimension string
	Values    []string
	Operator  Operator
	GroupBy   []string
}

func (RequireFacets) isConstraint() {}

func (c RequireFacets) String() string {
	op := c.Operator
	if op == "" {
		op = OperatorAll
	}
	s := fmt.Sprintf("RequireFacets(%s %s [%s]", c.Dimension, op, strings.Join(c.Values, ","))
	if len(c.GroupBy) > 0 {
		s += " by " + strings.Join(c.GroupBy, ",")
	}
	return s + ")"
}

// Apply implements Operation.
func (c RequireFacets) Apply(_ context.Context, group catalog.Records, cat *catalog.DataCatalog) (catalog.Records, error) {
	if err := cat.CheckFacets("constraints.require_facets.dimension", c.Dimension); err != nil {
		return nil, err
	}
	if err := cat.CheckFacets("constraints.require_facets.group_by", c.GroupBy...); err != nil {
		return nil, err
	}
	switch c.Operator {
	case "", OperatorAll, OperatorAny:
	default:
		return nil, referrors.NewConfigurationError("constraints.require_facets.operator",
			fmt.Sprintf("unknown operator %q", c.Operator), nil)
	}

	var kept catalog.Records
	for _, part := range subgroups(group, c.GroupBy) {
		if c.check(part) {
			kept = append(kept, part...)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNotSatisfiable
	}
	return kept.Sorted(), nil
}

func (c RequireFacets) check(part catalog.Records) bool {
	present := map[string]struct{}{}
	for _, v := range part.Unique(c.Dimension) {
		present[v] = struct{}{}
	}
	for _, required := range c.Values {
		_, ok := present[required]
		if c.Operator == OperatorAny && ok {
			return true
		}
		if c.Operator != OperatorAny && !ok {
			return false
		}
	}
	return c.Operator != OperatorAny
}
