package core

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"resilience/internal/types"
)

// resourceIDPattern accepts the opaque IDs used for projects, snapshots,
// assessments and plans (UUIDs or gateway-issued slugs).
var resourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// tagCodes maps a failed validation tag to the error code reported to the
// client. Unlisted tags report validation_invalid_json.
var tagCodes = map[string]types.ErrorCode{
	"required":      types.ErrCodeValidationMissingField,
	"required_with": types.ErrCodeValidationMissingLocation,
	"latitude":      types.ErrCodeValidationInvalidLat,
	"longitude":     types.ErrCodeValidationInvalidLon,
	"min":           types.ErrCodeValidationScoreRange,
	"max":           types.ErrCodeValidationScoreRange,
	"oneof":         types.ErrCodeValidationInvalidStatus,
	"resource_id":   types.ErrCodeValidationInvalidID,
}

// Validator wraps go-playground/validator with the service's custom tags and
// maps failures onto AppErrors.
type Validator struct {
	v *validator.Validate
}

// NewValidator registers the custom tags and reports fields by their JSON
// names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("resource_id", func(fl validator.FieldLevel) bool {
		return resourceIDPattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// ValidateStruct validates s and returns the first failure as an AppError.
func (v *Validator) ValidateStruct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}
	fe := fieldErrs[0]
	code, ok := tagCodes[fe.Tag()]
	if !ok {
		code = types.ErrCodeValidationInvalidJSON
	}
	return types.NewAppErrorWithDetails(code, fieldMessage(fe), nil, map[string]any{
		"field": fe.Field(),
		"rule":  fe.Tag(),
	})
}

// ResourceID validates a path identifier. code distinguishes project IDs
// from other resource IDs in the error.
func (v *Validator) ResourceID(id string, code types.ErrorCode) error {
	if err := v.v.Var(id, "required,resource_id"); err != nil {
		return types.NewAppErrorWithDetails(code, "invalid identifier", nil, map[string]any{"id": id})
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_with":
		return fe.Field() + " is required when coordinates are given"
	case "latitude":
		return fe.Field() + " must be between -90 and 90"
	case "longitude":
		return fe.Field() + " must be between -180 and 180"
	case "min", "max":
		return fe.Field() + " must be between 0 and 100"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
