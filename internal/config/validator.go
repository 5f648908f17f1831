package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/catalog"
	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern    = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	slugPattern      = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	facetNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)
	sourceTypes      = map[catalog.SourceType]struct{}{
		catalog.SourceCMIP6:          {},
		catalog.SourceObs4MIPs:       {},
		catalog.SourcePMPClimatology: {},
	}
	dbSchemes = []string{"sqlite://", "postgres://", "postgresql://"}
)

// validatorInstance configures and returns the shared validator instance used across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" || name == "" {
				return strings.ToLower(f.Name)
			}
			return name
		})

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slugPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("facet_name", func(fl validator.FieldLevel) bool {
			return facetNamePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("source_type", func(fl validator.FieldLevel) bool {
			_, ok := sourceTypes[catalog.SourceType(fl.Field().String())]
			return ok
		})

		_ = v.RegisterValidation("db_url", func(fl validator.FieldLevel) bool {
			url := fl.Field().String()
			for _, scheme := range dbSchemes {
				if strings.HasPrefix(url, scheme) {
					return true
				}
			}
			return false
		})

		validateInst = v
	})

	return validateInst
}

// GetValidator returns a configured validator instance for use outside the config package.
func GetValidator() *validator.Validate {
	return validatorInstance()
}

// ValidateConfig performs schema and cross-field validation on the configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return referrors.NewValidationError("config", "configuration is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	providers := make(map[string]int, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if prev, exists := providers[p.Slug]; exists {
			return referrors.NewValidationError(fieldForProvider(i, "slug"),
				fmt.Sprintf("duplicate provider %q (first declared at providers[%d])", p.Slug, prev), nil)
		}
		providers[p.Slug] = i

		diagnostics := make(map[string]struct{}, len(p.Diagnostics))
		for j, d := range p.Diagnostics {
			if _, exists := diagnostics[d.Slug]; exists {
				return referrors.NewValidationError(fieldForDiagnostic(i, j, "slug"),
					fmt.Sprintf("duplicate diagnostic %q in provider %q", d.Slug, p.Slug), nil)
			}
			diagnostics[d.Slug] = struct{}{}

			if err := validateRequirements(d.DataRequirements, fieldForDiagnostic(i, j, requirementsField)); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateRequirements(reqs RequirementsConfig, field string) error {
	if len(reqs.Sets) == 0 {
		return referrors.NewValidationError(field, field+" is required", nil)
	}
	v := validatorInstance()
	for s, set := range reqs.Sets {
		if len(set) == 0 {
			return referrors.NewValidationError(field, fmt.Sprintf("%s set %d is empty", field, s), nil)
		}
		for r, req := range set {
			reqField := fmt.Sprintf("%s[%d][%d]", field, s, r)
			if err := v.Struct(req); err != nil {
				return prefixValidationError(reqField, err)
			}
			if req.GroupBy != nil && len(req.GroupBy) == 0 {
				return referrors.NewConfigurationError(reqField+".group_by",
					"group_by must list at least one facet; omit it to use a single group", nil)
			}
			for c, cons := range req.Constraints {
				if err := validateConstraint(cons, fmt.Sprintf("%s.constraints[%d]", reqField, c)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateConstraint(c ConstraintConfig, field string) error {
	switch c.Type {
	case "require_timerange":
		if c.Start == "" && c.End == "" {
			return referrors.NewValidationError(field, "start or end is required", nil)
		}
		for name, value := range map[string]string{"start": c.Start, "end": c.End} {
			if value == "" {
				continue
			}
			if _, err := catalog.ParsePartialTime(value); err != nil {
				return referrors.NewValidationError(field+"."+name, err.Error(), err)
			}
		}
	case "require_contiguous_timerange", "require_overlapping_timerange":
		if len(c.GroupBy) == 0 {
			return referrors.NewValidationError(field+".group_by", "group_by is required", nil)
		}
	case "add_supplementary_dataset":
		if c.Variable == "" && len(c.SupplementaryFacets) == 0 {
			return referrors.NewValidationError(field, "variable or supplementary_facets is required", nil)
		}
	}
	return nil
}
