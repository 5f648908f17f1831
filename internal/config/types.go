package config

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the ref configuration document.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Paths     PathsConfig      `yaml:"paths"`
	DB        DBConfig         `yaml:"db"`
	Executor  ExecutorConfig   `yaml:"executor"`
	Artifacts ArtifactsConfig  `yaml:"artifacts"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	CVPath    string           `yaml:"cv_path,omitempty"`
	Providers []ProviderConfig `yaml:"providers" validate:"omitempty,dive"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level         string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	HumanReadable bool   `yaml:"human_readable,omitempty"`
}

// PathsConfig holds the scratch and results roots.
type PathsConfig struct {
	Scratch string `yaml:"scratch" validate:"required"`
	Results string `yaml:"results" validate:"required"`
}

// DBConfig selects the state database.
type DBConfig struct {
	DatabaseURL string `yaml:"database_url" validate:"required,db_url"`
}

// ExecutorConfig selects how jobs run.
type ExecutorConfig struct {
	Kind    string        `yaml:"kind" validate:"oneof=local synchronous"`
	N       int           `yaml:"n,omitempty" validate:"omitempty,min=1,max=1024"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ArtifactsConfig selects where relocated results are stored.
type ArtifactsConfig struct {
	Kind  string       `yaml:"kind" validate:"oneof=local minio"`
	Minio *MinioConfig `yaml:"minio,omitempty" validate:"required_if=Kind minio,omitempty"`
}

// MinioConfig addresses an S3 compatible bucket.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" validate:"required,hostname_port"`
	AccessKey string `yaml:"access_key" validate:"required"`
	SecretKey string `yaml:"secret_key" validate:"required"`
	Region    string `yaml:"region,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
	Bucket    string `yaml:"bucket" validate:"required,min=3,max=63"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// MetricsConfig enables the Prometheus textfile written after each CLI run.
type MetricsConfig struct {
	Textfile  string `yaml:"textfile,omitempty"`
	Namespace string `yaml:"namespace,omitempty" validate:"omitempty,facet_name"`
}

// ProviderConfig declares a provider and the command diagnostics it offers.
type ProviderConfig struct {
	Slug        string             `yaml:"slug" validate:"required,slug"`
	Version     string             `yaml:"version" validate:"required,semver"`
	Diagnostics []DiagnosticConfig `yaml:"diagnostics" validate:"required,min=1,dive"`
}

// DiagnosticConfig declares a diagnostic that runs an external command.
type DiagnosticConfig struct {
	Slug             string             `yaml:"slug" validate:"required,slug"`
	Name             string             `yaml:"name,omitempty"`
	Command          []string           `yaml:"command" validate:"required,min=1,dive,required"`
	Env              map[string]string  `yaml:"env,omitempty"`
	WorkDir          string             `yaml:"workdir,omitempty"`
	MetricBundle     string             `yaml:"metric_bundle,omitempty"`
	OutputBundle     string             `yaml:"output_bundle,omitempty"`
	Series           string             `yaml:"series,omitempty"`
	DataRequirements RequirementsConfig `yaml:"data_requirements" validate:"-"`
}

// RequirementsConfig is either one list of requirements (all of them together)
// or a list of alternative lists.
type RequirementsConfig struct {
	Sets         [][]RequirementConfig
	Alternatives bool
}

// RequirementConfig declares one data requirement.
type RequirementConfig struct {
	SourceType  string             `yaml:"source_type" validate:"required,source_type"`
	Filters     []FilterConfig     `yaml:"filters,omitempty" validate:"dive"`
	GroupBy     []string           `yaml:"group_by" validate:"omitempty,dive,facet_name"`
	Constraints []ConstraintConfig `yaml:"constraints,omitempty" validate:"dive"`
}

// FilterConfig keeps (or with exclude set, drops) records matching facets.
type FilterConfig struct {
	Facets  map[string]FacetValues `yaml:"facets" validate:"required,min=1,dive,keys,facet_name,endkeys,min=1"`
	Exclude bool                   `yaml:"exclude,omitempty"`
}

// ConstraintConfig declares one constraint. Only the fields of its type apply.
type ConstraintConfig struct {
	Type      string      `yaml:"type" validate:"required,oneof=require_facets require_timerange require_contiguous_timerange require_overlapping_timerange add_supplementary_dataset select_parent_experiment"`
	GroupBy   []string    `yaml:"group_by,omitempty" validate:"omitempty,dive,facet_name"`
	Dimension string      `yaml:"dimension,omitempty" validate:"required_if=Type require_facets,omitempty,facet_name"`
	Values    FacetValues `yaml:"values,omitempty" validate:"required_if=Type require_facets"`
	Operator  string      `yaml:"operator,omitempty" validate:"omitempty,oneof=all any"`
	Start     string      `yaml:"start,omitempty"`
	End       string      `yaml:"end,omitempty"`

	Variable               string                 `yaml:"variable,omitempty"`
	SourceType             string                 `yaml:"source_type,omitempty" validate:"omitempty,source_type"`
	SupplementaryFacets    map[string]FacetValues `yaml:"supplementary_facets,omitempty"`
	MatchingFacets         []string               `yaml:"matching_facets,omitempty"`
	OptionalMatchingFacets []string               `yaml:"optional_matching_facets,omitempty"`
}

// FacetValues accepts a single scalar or a sequence of scalars.
type FacetValues []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *FacetValues) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*v = FacetValues{node.Value}
		return nil
	}
	var values []string
	if err := node.Decode(&values); err != nil {
		return err
	}
	*v = values
	return nil
}

// UnmarshalYAML keeps a present but empty group_by distinct from an absent one.
func (r *RequirementConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain RequirementConfig
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*r = RequirementConfig(raw)
	if r.GroupBy == nil && hasYAMLKey(node, "group_by") {
		r.GroupBy = []string{}
	}
	return nil
}

func hasYAMLKey(node *yaml.Node, key string) bool {
	if node == nil || node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		k := node.Content[i]
		if strings.EqualFold(k.Value, key) {
			return true
		}
	}
	return false
}
