package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

func decodeRequirements(t *testing.T, doc string) (RequirementsConfig, error) {
	t.Helper()
	var out struct {
		Reqs RequirementsConfig `yaml:"data_requirements"`
	}
	err := yaml.Unmarshal([]byte(doc), &out)
	return out.Reqs, err
}

func TestRequirementsSequenceOfMappingsIsAllOf(t *testing.T) {
	t.Parallel()

	reqs, err := decodeRequirements(t, `
data_requirements:
  - source_type: cmip6
    group_by: [source_id]
  - source_type: obs4mips
`)
	require.NoError(t, err)
	assert.False(t, reqs.Alternatives)
	require.Len(t, reqs.Sets, 1)
	require.Len(t, reqs.Sets[0], 2)
	assert.Nil(t, reqs.Sets[0][1].GroupBy)
}

func TestRequirementsSequenceOfSequencesIsAnyOf(t *testing.T) {
	t.Parallel()

	reqs, err := decodeRequirements(t, `
data_requirements:
  - - source_type: cmip6
  - - source_type: obs4mips
    - source_type: cmip6
`)
	require.NoError(t, err)
	assert.True(t, reqs.Alternatives)
	require.Len(t, reqs.Sets, 2)
	assert.Len(t, reqs.Sets[1], 2)
}

func TestRequirementsKeepEmptyGroupBy(t *testing.T) {
	t.Parallel()

	reqs, err := decodeRequirements(t, `
data_requirements:
  - source_type: cmip6
    group_by: []
`)
	require.NoError(t, err)
	require.NotNil(t, reqs.Sets[0][0].GroupBy)
	assert.Empty(t, reqs.Sets[0][0].GroupBy)

	err = validateRequirements(reqs, "data_requirements")
	assert.True(t, referrors.IsConfiguration(err))
}

func TestRequirementsRejectMalformedShapes(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"mapping":      "data_requirements:\n  source_type: cmip6\n",
		"scalars":      "data_requirements: [cmip6, obs4mips]\n",
		"mixed":        "data_requirements:\n  - - source_type: cmip6\n  - source_type: obs4mips\n",
		"nested value": "data_requirements:\n  - - [cmip6]\n",
	} {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := decodeRequirements(t, doc)
			require.Error(t, err)
			assert.True(t, referrors.IsConfiguration(err))
			assert.Contains(t, err.Error(), "malformed data_requirements")
		})
	}
}

func TestValidateConstraints(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		constraint ConstraintConfig
		wantErr    bool
	}{
		"facets":               {ConstraintConfig{Type: "require_facets", Dimension: "variable_id", Values: FacetValues{"tas"}}, false},
		"facets without value": {ConstraintConfig{Type: "require_facets", Dimension: "variable_id"}, true},
		"timerange":            {ConstraintConfig{Type: "require_timerange", Start: "2000-01"}, false},
		"bad timerange":        {ConstraintConfig{Type: "require_timerange", Start: "spring"}, true},
		"empty timerange":      {ConstraintConfig{Type: "require_timerange"}, true},
		"contiguous":           {ConstraintConfig{Type: "require_contiguous_timerange", GroupBy: []string{"instance_id"}}, false},
		"contiguous no group":  {ConstraintConfig{Type: "require_contiguous_timerange"}, true},
		"supplementary":        {ConstraintConfig{Type: "add_supplementary_dataset", Variable: "sftlf"}, false},
		"supplementary empty":  {ConstraintConfig{Type: "add_supplementary_dataset"}, true},
		"parent":               {ConstraintConfig{Type: "select_parent_experiment"}, false},
		"unknown":              {ConstraintConfig{Type: "require_magic"}, true},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			reqs := RequirementsConfig{Sets: [][]RequirementConfig{{{
				SourceType:  "cmip6",
				Constraints: []ConstraintConfig{tc.constraint},
			}}}}
			err := validateRequirements(reqs, "data_requirements")
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
