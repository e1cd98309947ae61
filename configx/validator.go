// Package configx provides configuration validation.
package configx

import (
	"github.com/go-playground/validator/v10"

	"go.eggybyte.com/usagemon/core/errors"
)

// ValidatorOption configures the validator.
type ValidatorOption func(*validator.Validate)

// NewValidator creates a new validator instance.
func NewValidator(opts ...ValidatorOption) *validator.Validate {
	v := validator.New()
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateStruct validates a struct using validate tags. Failures carry
// CodeInvalidArgument and list the offending fields as details.
func ValidateStruct(v *validator.Validate, target any) error {
	if v == nil {
		v = validator.New()
	}

	err := v.Struct(target)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make([]any, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, fe.Namespace())
		}
		return errors.Build(errors.CodeInvalidArgument).
			WithOp("configx.validate").
			WithErr(err).
			WithMsg("validation failed").
			WithDetails(details...).
			Err()
	}
	return errors.Wrap(errors.CodeInvalidArgument, "configx.validate", err)
}
