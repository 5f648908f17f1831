package results

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
)

// Dimension is one controlled dimension and its allowed values.
type Dimension struct {
	Name             string   `yaml:"name"`
	LongName         string   `yaml:"long_name"`
	Description      string   `yaml:"description"`
	AllowExtraValues bool     `yaml:"allow_extra_values"`
	Required         bool     `yaml:"required"`
	Values           []string `yaml:"-"`
}

type dimensionValue struct {
	Name     string `yaml:"name"`
	LongName string `yaml:"long_name"`
}

// UnmarshalYAML accepts values as plain strings or as {name, long_name} mappings.
func (d *Dimension) UnmarshalYAML(node *yaml.Node) error {
	type plain Dimension
	var raw struct {
		plain  `yaml:",inline"`
		Values []yaml.Node `yaml:"values"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*d = Dimension(raw.plain)
	for _, v := range raw.Values {
		if v.Kind == yaml.ScalarNode {
			d.Values = append(d.Values, v.Value)
			continue
		}
		var entry dimensionValue
		if err := v.Decode(&entry); err != nil {
			return fmt.Errorf("dimension %s: %w", d.Name, err)
		}
		d.Values = append(d.Values, entry.Name)
	}
	return nil
}

// Vocabulary is the controlled vocabulary metric values are checked against.
type Vocabulary struct {
	Dimensions []Dimension `yaml:"dimensions"`

	byName map[string]*Dimension
}

// LoadVocabulary reads a vocabulary YAML file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes a vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode controlled vocabulary: %w", err)
	}
	v.byName = make(map[string]*Dimension, len(v.Dimensions))
	for i := range v.Dimensions {
		d := &v.Dimensions[i]
		if d.Name == "" {
			return nil, fmt.Errorf("controlled vocabulary dimension %d has no name", i)
		}
		if _, dup := v.byName[d.Name]; dup {
			return nil, fmt.Errorf("controlled vocabulary dimension %s declared twice", d.Name)
		}
		v.byName[d.Name] = d
	}
	return &v, nil
}

// ValidateBundle checks the bundle's structure and every dimension value used in
// RESULTS. All problems are reported together.
func (v *Vocabulary) ValidateBundle(b *MetricBundle) error {
	var errs []error
	for _, name := range b.Structure {
		if _, ok := v.byName[name]; !ok {
			errs = append(errs, fmt.Errorf("unknown dimension %q", name))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, d := range v.Dimensions {
		if d.Required && !contains(b.Structure, d.Name) {
			errs = append(errs, fmt.Errorf("missing required dimension %q", d.Name))
		}
	}
	scalars, err := b.Scalars()
	if err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, v.validateValues(scalars)...)
	return errors.Join(errs...)
}

// ValidateValues checks the dimensions of already extracted values, such as series.
func (v *Vocabulary) ValidateValues(values []execution.MetricValue) error {
	return errors.Join(v.validateValues(values)...)
}

func (v *Vocabulary) validateValues(values []execution.MetricValue) []error {
	seen := map[string]struct{}{}
	var errs []error
	for _, mv := range values {
		for _, name := range sortedStringKeys(mv.Dimensions) {
			value := mv.Dimensions[name]
			d, ok := v.byName[name]
			key := name + "\x00" + value
			if !ok {
				key = name
			}
			if _, done := seen[key]; done {
				continue
			}
			seen[key] = struct{}{}
			if !ok {
				errs = append(errs, fmt.Errorf("unknown dimension %q", name))
				continue
			}
			if !d.AllowExtraValues && !contains(d.Values, value) {
				errs = append(errs, fmt.Errorf("dimension %q: value %q is not in the controlled vocabulary", name, value))
			}
		}
	}
	return errs
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
