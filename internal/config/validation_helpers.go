package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	referrors "github.com/skoriche/Climate-REF4CMIP-sub000/pkg/errors"
)

// convertValidationError normalizes validator errors into ref validation errors.
func convertValidationError(err error) error {
	return prefixValidationError("", err)
}

func prefixValidationError(prefix string, err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		ve := ves[0]
		field := yamlishFieldName(ve)
		if prefix != "" {
			field = prefix + "." + field
		}
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return referrors.NewValidationError(field, msg, err)
	}

	return referrors.NewValidationError("config", err.Error(), err)
}

// yamlishFieldName renders the failing field with its YAML names, without the
// root struct.
func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldForProvider(index int, field string) string {
	return fmt.Sprintf("providers[%d].%s", index, field)
}

func fieldForDiagnostic(provider, index int, field string) string {
	return fmt.Sprintf("providers[%d].diagnostics[%d].%s", provider, index, field)
}
