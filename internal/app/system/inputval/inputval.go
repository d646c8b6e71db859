// Package inputval validates small request inputs (sign-in email, invitation)
// using waffle/pantry/validate and turns failures into readable messages.
//
//	type InviteInput struct {
//	    Email string `json:"email" validate:"required,email,max=254" label:"Email"`
//	}
//
//	if res := inputval.Validate(in); res.HasErrors() {
//	    jsonutil.BadRequest(w, "invalid_input", res.First())
//	    return
//	}
package inputval

import (
	"net/mail"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/validate"
)

// Result holds validation results with user-friendly messages.
type Result struct {
	Errors []FieldError
}

// FieldError represents a validation error for a single field.
type FieldError struct {
	Field   string
	Label   string
	Message string
}

// HasErrors returns true if there are any validation errors.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// First returns the first error message, or empty string if no errors.
func (r *Result) First() string {
	if len(r.Errors) > 0 {
		return r.Errors[0].Message
	}
	return ""
}

// Fields returns field → message, suitable for jsonutil.ValidationError.
func (r *Result) Fields() map[string]string {
	out := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		out[e.Field] = e.Message
	}
	return out
}

var (
	customValidator *validate.Validator
	validatorOnce   sync.Once
)

func getValidator() *validate.Validator {
	validatorOnce.Do(func() {
		customValidator = validate.New(validate.WithStopOnFirstError())

		customValidator.RegisterRuleFunc("role", func(value any) bool {
			s, ok := value.(string)
			return ok && models.IsValidRole(s)
		}, "role")

		customValidator.RegisterRuleFunc("bareemail", func(value any) bool {
			s, ok := value.(string)
			return ok && IsValidEmail(s)
		}, "bareemail")
	})
	return customValidator
}

// Validate validates a struct carrying `validate` and optional `label` tags.
//
// Rules from pantry/validate: required, email, oneof, min, max, timezone.
// Rules registered here:
//   - role: USER or ADMIN
//   - bareemail: a single address without a display name
func Validate(s any) *Result {
	result := &Result{}

	err := getValidator().Struct(s)
	if err == nil {
		return result
	}

	labels := fieldLabels(s)
	if errs, ok := err.(validate.Errors); ok {
		for _, e := range errs {
			label := labels[e.Field]
			if label == "" {
				label = e.Field
			}
			result.Errors = append(result.Errors, FieldError{
				Field:   e.Field,
				Label:   label,
				Message: formatMessage(label, e.Rule, e.Param),
			})
		}
	}
	return result
}

func fieldLabels(s any) map[string]string {
	labels := make(map[string]string)

	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return labels
	}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name := field.Name
		if jsonName, _, _ := strings.Cut(field.Tag.Get("json"), ","); jsonName != "" && jsonName != "-" {
			name = jsonName
		}
		if label := field.Tag.Get("label"); label != "" {
			labels[name] = label
		}
	}
	return labels
}

func formatMessage(label, rule, param string) string {
	switch rule {
	case "required":
		return label + " is required."
	case "email", "bareemail":
		return "A valid email address is required."
	case "oneof":
		return label + " must be one of: " + strings.ReplaceAll(param, " ", ", ") + "."
	case "min":
		return label + " must be at least " + param + " characters."
	case "max":
		return label + " must be at most " + param + " characters."
	case "role":
		return label + " must be one of: " + strings.Join(models.AllRoles, ", ") + "."
	default:
		return label + " is invalid."
	}
}

// IsValidEmail reports whether email is a single RFC 5322 address with no
// display name.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}
