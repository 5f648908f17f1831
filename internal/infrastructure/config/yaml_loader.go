package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	cfgpkg "github.com/skoriche/Climate-REF4CMIP-sub000/internal/config"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/diagnostics/command"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/constraint"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/logging"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/registry"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

// YAMLLoader reads the ref configuration file and turns its declarative
// providers into registered diagnostics.
type YAMLLoader struct {
	logger ports.Logger
	lookup cfgpkg.LookupFunc
}

// Option configures a YAMLLoader.
type Option func(*YAMLLoader)

// WithLookup replaces the environment lookup used for REF_* overrides.
func WithLookup(lookup cfgpkg.LookupFunc) Option {
	return func(l *YAMLLoader) {
		l.lookup = lookup
	}
}

func NewYAMLLoader(logger ports.Logger, opts ...Option) *YAMLLoader {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	l := &YAMLLoader{logger: logger, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load parses and validates the configuration at path.
func (l *YAMLLoader) Load(ctx context.Context, path string) (*cfgpkg.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.logDebug(ctx, "loading configuration", map[string]interface{}{"path": path})

	cfg, err := cfgpkg.ParseConfigWithEnv(path, l.lookup)
	if err != nil {
		l.logError(ctx, "failed to load configuration", err, map[string]interface{}{"path": path})
		return nil, convertError(err, path)
	}

	l.logInfo(ctx, "configuration loaded", map[string]interface{}{
		"path":      path,
		"providers": len(cfg.Providers),
		"executor":  cfg.Executor.Kind,
	})
	return cfg, nil
}

// Providers builds a registry holding one provider per configured provider, each
// with its command diagnostics.
func (l *YAMLLoader) Providers(ctx context.Context, cfg *cfgpkg.Config) (*registry.ProviderRegistry, error) {
	reg := registry.NewProviderRegistry()
	for i, pc := range cfg.Providers {
		diagnostics := make([]diagnostic.Diagnostic, 0, len(pc.Diagnostics))
		for j, dc := range pc.Diagnostics {
			field := fmt.Sprintf("providers[%d].diagnostics[%d]", i, j)
			reqs, err := BuildRequirements(dc.DataRequirements, field+".data_requirements")
			if err != nil {
				return nil, err
			}
			d, err := command.New(command.Spec{
				Slug:         dc.Slug,
				Name:         dc.Name,
				Command:      dc.Command,
				Env:          dc.Env,
				WorkDir:      dc.WorkDir,
				MetricBundle: dc.MetricBundle,
				OutputBundle: dc.OutputBundle,
				Series:       dc.Series,
				Requirements: reqs,
			})
			if err != nil {
				return nil, referrors.NewConfigurationError(field, err.Error(), err)
			}
			diagnostics = append(diagnostics, d)
		}

		p, err := diagnostic.NewProvider(pc.Slug, pc.Version, diagnostics...)
		if err != nil {
			return nil, referrors.NewConfigurationError(fmt.Sprintf("providers[%d]", i), err.Error(), err)
		}
		if err := reg.Register(p); err != nil {
			return nil, referrors.NewConfigurationError(fmt.Sprintf("providers[%d].slug", i), err.Error(), err)
		}
		l.logDebug(ctx, "registered provider", map[string]interface{}{
			"provider":    pc.Slug,
			"version":     pc.Version,
			"diagnostics": len(diagnostics),
		})
	}
	return reg, nil
}

// BuildRequirements maps configured requirements onto the domain model.
func BuildRequirements(rc cfgpkg.RequirementsConfig, field string) (diagnostic.Requirements, error) {
	sets := make([][]diagnostic.DataRequirement, len(rc.Sets))
	for s, set := range rc.Sets {
		for r, req := range set {
			built, err := buildRequirement(req, fmt.Sprintf("%s[%d][%d]", field, s, r))
			if err != nil {
				return diagnostic.Requirements{}, err
			}
			sets[s] = append(sets[s], built)
		}
	}
	if rc.Alternatives {
		return diagnostic.AnyOf(sets...), nil
	}
	if len(sets) != 1 {
		return diagnostic.Requirements{}, referrors.NewConfigurationError(field, "malformed data_requirements", nil)
	}
	return diagnostic.AllOf(sets[0]...), nil
}

func buildRequirement(rc cfgpkg.RequirementConfig, field string) (diagnostic.DataRequirement, error) {
	req := diagnostic.DataRequirement{
		SourceType: catalog.SourceType(rc.SourceType),
		GroupBy:    cloneStrings(rc.GroupBy),
	}
	for _, f := range rc.Filters {
		facets := facetMap(f.Facets)
		if f.Exclude {
			req.Filters = append(req.Filters, catalog.Exclude(facets))
		} else {
			req.Filters = append(req.Filters, catalog.Include(facets))
		}
	}
	for i, cc := range rc.Constraints {
		c, err := buildConstraint(cc, catalog.SourceType(rc.SourceType))
		if err != nil {
			return diagnostic.DataRequirement{}, referrors.NewConfigurationError(
				fmt.Sprintf("%s.constraints[%d]", field, i), err.Error(), err)
		}
		req.Constraints = append(req.Constraints, c)
	}
	return req, nil
}

func buildConstraint(cc cfgpkg.ConstraintConfig, sourceType catalog.SourceType) (constraint.Constraint, error) {
	switch cc.Type {
	case "require_facets":
		return constraint.RequireFacets{
			Dimension: cc.Dimension,
			Values:    cloneStrings(cc.Values),
			Operator:  constraint.Operator(cc.Operator),
			GroupBy:   cloneStrings(cc.GroupBy),
		}, nil
	case "require_timerange":
		c := constraint.RequireTimerange{GroupBy: cloneStrings(cc.GroupBy)}
		var err error
		if c.Start, err = partialTime(cc.Start); err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		if c.End, err = partialTime(cc.End); err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		return c, nil
	case "require_contiguous_timerange":
		return constraint.RequireContiguousTimerange{GroupBy: cloneStrings(cc.GroupBy)}, nil
	case "require_overlapping_timerange":
		return constraint.RequireOverlappingTimerange{GroupBy: cloneStrings(cc.GroupBy)}, nil
	case "add_supplementary_dataset":
		st := sourceType
		if cc.SourceType != "" {
			st = catalog.SourceType(cc.SourceType)
		}
		c := constraint.AddSupplementaryDataset{}
		if cc.Variable != "" {
			c = constraint.FromDefaults(cc.Variable, st)
		}
		if len(cc.SupplementaryFacets) > 0 {
			c.SupplementaryFacets = facetMap(cc.SupplementaryFacets)
		}
		if cc.MatchingFacets != nil {
			c.MatchingFacets = cloneStrings(cc.MatchingFacets)
		}
		if cc.OptionalMatchingFacets != nil {
			c.OptionalMatchingFacets = cloneStrings(cc.OptionalMatchingFacets)
		}
		return c, nil
	case "select_parent_experiment":
		return constraint.SelectParentExperiment{}, nil
	default:
		return nil, fmt.Errorf("unknown constraint type %q", cc.Type)
	}
}

func partialTime(s string) (*catalog.PartialTime, error) {
	if s == "" {
		return nil, nil
	}
	p, err := catalog.ParsePartialTime(s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func facetMap(in map[string]cfgpkg.FacetValues) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = cloneStrings(v)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

// convertError keeps parse errors (they carry path and line) and reports
// everything else as a configuration error.
func convertError(err error, path string) error {
	if err == nil {
		return nil
	}
	var parseErr *referrors.ParseError
	if errors.As(err, &parseErr) {
		return err
	}
	var cfgErr *referrors.ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	var valErr *referrors.ValidationError
	if errors.As(err, &valErr) {
		return referrors.NewConfigurationError(valErr.Field, valErr.Message, err)
	}
	return referrors.NewConfigurationError("config", fmt.Sprintf("load %s", path), err)
}

func (l *YAMLLoader) logDebug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger.Debug(ctx, msg, flattenFields(fields)...)
}

func (l *YAMLLoader) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger.Info(ctx, msg, flattenFields(fields)...)
}

func (l *YAMLLoader) logError(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["error"] = err
	l.logger.Error(ctx, msg, flattenFields(payload)...)
}

func flattenFields(fields map[string]interface{}) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}
