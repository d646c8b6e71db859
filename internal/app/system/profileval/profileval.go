// Package profileval validates profile and onboarding input and reports
// failures as stable error codes ("not_empty", "required_length_8", …) that
// clients translate.
//
// Codes are built from the failing rule and its parameter:
// `required_length=8` fails as "required_length_8", `min_length=2` as
// "min_length_2". Rules without a parameter report their own name.
package profileval

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	_ "time/tzdata" // timezone rule must not depend on the host zoneinfo
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var digitsRE = regexp.MustCompile(`^\d+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})

		mustRegister(v, "not_empty", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		mustRegister(v, "not_number", func(fl validator.FieldLevel) bool {
			return digitsRE.MatchString(fl.Field().String())
		})
		mustRegister(v, "required_length", func(fl validator.FieldLevel) bool {
			n, err := strconv.Atoi(fl.Param())
			if err != nil {
				return false
			}
			return utf8.RuneCountInString(fl.Field().String()) == n
		})
		mustRegister(v, "min_length", func(fl validator.FieldLevel) bool {
			n, err := strconv.Atoi(fl.Param())
			if err != nil {
				return false
			}
			return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= n
		})
		mustRegister(v, "theme", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "", "light", "dark":
				return true
			}
			return false
		})
		mustRegister(v, "hexcolor6", func(fl validator.FieldLevel) bool {
			return hexColorRE.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

var hexColorRE = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("profileval: register " + tag + ": " + err.Error())
	}
}

// Errors maps a JSON field name to the code of its first failing rule.
type Errors map[string]string

// Error implements error.
func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for f, c := range e {
		parts = append(parts, f+": "+c)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Code builds the error code for a rule and its parameter.
func Code(tag, param string) string {
	if param == "" {
		return tag
	}
	return tag + "_" + strings.ReplaceAll(param, " ", "_")
}

// Struct validates s and returns nil or Errors.
func Struct(s any) error {
	err := instance().Struct(s)
	return toErrors(err)
}

// Var validates a single value against tag and returns the error code,
// or "" when the value passes.
func Var(value any, tag string) string {
	err := instance().Var(value, tag)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return Code(verrs[0].Tag(), verrs[0].Param())
	}
	return "invalid"
}

func toErrors(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(Errors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = Code(fe.Tag(), fe.Param())
	}
	return out
}

// DNI rule set for an 8-digit Peruvian identity document number.
const DNIRules = "not_empty,not_number,required_length=8"

// ValidateDNI returns the error code for a DNI, or "".
func ValidateDNI(dni string) string {
	return Var(dni, DNIRules)
}
