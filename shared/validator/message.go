package validator

import (
	"errors"
	"strings"

	val "github.com/go-playground/validator/v10"
)

var templates = map[string]string{
	"required":    "{field} is required",
	"required_if": "{field} is required",
	"gte":         "{field} must be at least {param}",
	"lte":         "{field} must be at most {param}",
	"min":         "{field} must be at least {param}",
	"max":         "{field} must be at most {param}",
	"oneof":       "{field} must be one of [{param}]",
	"email":       "{field} must be a valid email address",
	"uuid":        "{field} must be a valid identifier",
	"hour":        "{field} must be a whole hour between 00:00 and 24:00",
	"date":        "{field} must use the YYYY-MM-DD format",
}

// describe renders every field error, in struct order, as one sentence each.
func describe(err error) string {
	return describeAs(err, "")
}

// describeAs overrides the field name, which is empty for single-value checks.
func describeAs(err error, name string) string {
	var fieldErrs val.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		field := fieldErr.Field()
		if name != "" {
			field = name
		}

		tmpl, ok := templates[fieldErr.Tag()]
		if !ok {
			parts = append(parts, field+" failed "+fieldErr.Tag())

			continue
		}

		parts = append(parts, strings.NewReplacer("{field}", field, "{param}", fieldErr.Param()).Replace(tmpl))
	}

	return strings.Join(parts, "; ")
}
