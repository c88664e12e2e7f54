// Package validator decodes request bodies and checks their validate tags. Failures come back as 400s.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"roomkey/shared/failure"
	"roomkey/shared/slot"

	val "github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *val.Validate {
	v := val.New(val.WithRequiredStructEnabled())

	// Messages name fields the way clients send them.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}

		return name
	})

	mustRegister(v, "hour", stringRule(func(s string) error {
		_, err := slot.ParseHour(s)

		return err
	}))
	mustRegister(v, "date", stringRule(func(s string) error {
		_, err := slot.ParseDate(s)

		return err
	}))

	return v
}

func mustRegister(v *val.Validate, tag string, fn val.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

func stringRule(parse func(string) error) val.Func {
	return func(field val.FieldLevel) bool {
		value, ok := field.Field().Interface().(string)

		return ok && parse(value) == nil
	}
}

// Validate decodes a single JSON object from r into data and validates it.
func Validate[T any](r io.Reader, data *T) error {
	decoder := json.NewDecoder(r)

	if err := decoder.Decode(data); err != nil {
		return failure.BadRequest(fmt.Errorf("failed to decode request body: %w", err))
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return failure.BadRequestFromString("request body must contain a single JSON object")
	}

	return ValidateStruct(data)
}

func ValidateStruct[T any](data *T) error {
	if err := validate.Struct(data); err != nil {
		return failure.BadRequestFromString(describe(err))
	}

	return nil
}

// ValidateParam checks a single query or path value; name labels it in the message.
func ValidateParam(name string, value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return failure.BadRequestFromString(describeAs(err, name))
	}

	return nil
}
