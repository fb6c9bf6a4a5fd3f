package common

import (
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs struct tag validation on v. Failures are returned as a
// VALIDATION_ERROR whose details map field names to the violated rule.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationError("invalid request payload")
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fieldName(fe)] = ruleMessage(fe)
	}
	return &AppError{
		Code:       CodeValidation,
		Message:    "invalid request payload",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return "payload"
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed rule " + fe.Tag()
	}
}
