// Package validator wraps go-playground/validator with the custom rules and
// the short error messages used by the bot.
package validator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Messages returned for failed rules.
const (
	ErrFieldRequired      = "is required"
	ErrFieldExceedsMaxLen = "is too long"
	ErrFieldBelowMinLen   = "is too short"
	ErrFieldBelowMinVal   = "must be positive"
	ErrFieldAboveMaxVal   = "is too large"
	ErrInvalidDate        = "must be a date in YYYY-MM-DD format"
	ErrUnknownValidation  = "is invalid"
)

// Error is a failed validation of a single field.
type Error struct {
	Field   string
	Tag     string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// New creates a validator with the bot's custom rules registered.
// Field names in errors come from the `label` struct tag when present.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if label := fld.Tag.Get("label"); label != "" {
			return label
		}
		return strings.ToLower(fld.Name)
	})
	_ = v.RegisterValidation("notblank", validateNotBlank)
	return v
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Struct validates s and returns the first failure as *Error.
func Struct(ctx context.Context, v *validator.Validate, s any) error {
	return firstError(v.StructCtx(ctx, s), "")
}

// Var validates a single value against tag, naming it field in the error.
func Var(ctx context.Context, v *validator.Validate, field string, value any, tag string) error {
	return firstError(v.VarCtx(ctx, value, tag), field)
}

func firstError(err error, field string) error {
	if err == nil {
		return nil
	}

	var vErrors validator.ValidationErrors
	if !errors.As(err, &vErrors) || len(vErrors) == 0 {
		return err
	}

	fe := vErrors[0]
	name := field
	if name == "" {
		name = fe.Field()
	}

	var msg string
	switch fe.Tag() {
	case "required", "notblank":
		msg = ErrFieldRequired
	case "max", "lte", "lt":
		msg = ErrFieldExceedsMaxLen
		if isNumeric(fe.Kind()) {
			msg = ErrFieldAboveMaxVal
		}
	case "min":
		msg = ErrFieldBelowMinLen
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "datetime":
		msg = ErrInvalidDate
	default:
		msg = ErrUnknownValidation
	}

	return &Error{Field: name, Tag: fe.Tag(), Message: msg}
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
