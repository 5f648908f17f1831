package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

const requirementsField = "data_requirements"

// UnmarshalYAML accepts a sequence of requirement mappings, which must all hold
// together, or a sequence of sequences, each an alternative. Anything else is a
// configuration error.
func (r *RequirementsConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return malformedRequirements(node, "expected a sequence")
	}
	*r = RequirementsConfig{}
	if len(node.Content) == 0 {
		r.Sets = [][]RequirementConfig{{}}
		return nil
	}

	switch node.Content[0].Kind {
	case yaml.MappingNode:
		set, err := decodeRequirementSet(node)
		if err != nil {
			return err
		}
		r.Sets = [][]RequirementConfig{set}
	case yaml.SequenceNode:
		r.Alternatives = true
		for _, child := range node.Content {
			if child.Kind != yaml.SequenceNode {
				return malformedRequirements(child, "alternatives must all be sequences")
			}
			set, err := decodeRequirementSet(child)
			if err != nil {
				return err
			}
			r.Sets = append(r.Sets, set)
		}
	default:
		return malformedRequirements(node.Content[0], "entries must be mappings or sequences of mappings")
	}
	return nil
}

func decodeRequirementSet(node *yaml.Node) ([]RequirementConfig, error) {
	set := make([]RequirementConfig, 0, len(node.Content))
	for _, child := range node.Content {
		if child.Kind != yaml.MappingNode {
			return nil, malformedRequirements(child, "requirements must be mappings")
		}
		var req RequirementConfig
		if err := child.Decode(&req); err != nil {
			return nil, referrors.NewConfigurationError(requirementsField, "malformed data_requirements", err)
		}
		set = append(set, req)
	}
	return set, nil
}

func malformedRequirements(node *yaml.Node, reason string) error {
	return referrors.NewConfigurationError(requirementsField,
		fmt.Sprintf("malformed data_requirements at line %d: %s", node.Line, reason), nil)
}
