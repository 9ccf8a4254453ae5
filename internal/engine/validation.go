package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"contentline/internal/domain"
)

const complianceFlags = "medical_claims before_after testimonials hipaa_sensitive prescription other"

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func (e Engine) validator() *validator.Validate {
	if e.validate != nil {
		return e.validate
	}
	return newValidator()
}

// checkStruct converts the first validator failure into a ValidationError.
func (e Engine) checkStruct(s any) error {
	err := e.validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldError(verrs[0])
	}
	return err
}

func fieldError(fe validator.FieldError) ValidationError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return ValidationError{Field: field, Message: "is required"}
	case "oneof":
		return ValidationError{Field: field, Message: fmt.Sprintf("must be one of: %s", fe.Param())}
	case "min":
		return ValidationError{Field: field, Message: fmt.Sprintf("must be at least %s", fe.Param())}
	default:
		return ValidationError{Field: field, Message: fmt.Sprintf("failed %s check", fe.Tag())}
	}
}

func (e Engine) checkFlags(flags []string) error {
	for _, f := range flags {
		if err := e.validator().Var(f, "oneof="+complianceFlags); err != nil {
			return ValidationError{Field: "compliance_flags", Message: fmt.Sprintf("unknown flag %q", f)}
		}
	}
	return nil
}

// normalizeDue parses an RFC3339 due date and returns it in stored form.
func normalizeDue(raw string) (string, error) {
	t, err := domain.ParseTime(strings.TrimSpace(raw))
	if err != nil {
		return "", ValidationError{Field: "due_at", Message: "must be an RFC3339 timestamp"}
	}
	return domain.FormatTime(t), nil
}
