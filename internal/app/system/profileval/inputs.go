package profileval

import (
	"strings"

	"github.com/dalemusser/stratabook/internal/app/system/normalize"
)

// ProfileInput is a partial profile update. Nil fields are left unchanged.
type ProfileInput struct {
	Username             *string `json:"username" validate:"omitempty,min_length=4"`
	Name                 *string `json:"name" validate:"omitempty,min_length=5"`
	FirstName            *string `json:"firstName" validate:"omitempty,min_length=2"`
	LastName             *string `json:"lastName" validate:"omitempty,min_length=2"`
	Email                *string `json:"email" validate:"omitempty,email"`
	PhoneNumber          *string `json:"phoneNumber" validate:"omitempty,not_empty,not_number,required_length=9"`
	DNI                  *string `json:"DNI" validate:"omitempty,not_empty,not_number,required_length=8"`
	Bio                  *string `json:"bio" validate:"omitempty,max=1000"`
	Avatar               *string `json:"avatar" validate:"omitempty,max=2000000"`
	TimeZone             *string `json:"timeZone" validate:"omitempty,timezone"`
	WeekStart            *string `json:"weekStart" validate:"omitempty,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	TimeFormat           *int    `json:"timeFormat" validate:"omitempty,oneof=12 24"`
	Locale               *string `json:"locale" validate:"omitempty,max=10"`
	Theme                *string `json:"theme" validate:"omitempty,theme"`
	BrandColor           *string `json:"brandColor" validate:"omitempty,hexcolor6"`
	DarkBrandColor       *string `json:"darkBrandColor" validate:"omitempty,hexcolor6"`
	HideBranding         *bool   `json:"hideBranding"`
	AllowDynamicBooking  *bool   `json:"allowDynamicBooking"`
	DisableImpersonation *bool   `json:"disableImpersonation"`
	CompletedOnboarding  *bool   `json:"completedOnboarding"`
}

// Normalize trims and canonicalizes the set fields in place.
func (in *ProfileInput) Normalize() {
	trim := func(p *string, fn func(string) string) {
		if p != nil {
			*p = fn(*p)
		}
	}
	trim(in.Username, strings.TrimSpace)
	trim(in.Name, normalize.Name)
	trim(in.FirstName, normalize.Name)
	trim(in.LastName, normalize.Name)
	trim(in.Email, normalize.Email)
	trim(in.PhoneNumber, normalize.Phone)
	trim(in.DNI, normalize.DNI)
	trim(in.TimeZone, strings.TrimSpace)
	trim(in.Locale, strings.TrimSpace)
	trim(in.Theme, strings.TrimSpace)
}

// Validate normalizes and validates in.
func (in *ProfileInput) Validate() error {
	in.Normalize()
	return Struct(in)
}

// CountryPeru is the country whose users must register a DNI.
const CountryPeru = "pe"

// Peruvian phone numbers are 9 digits; with the 51 country prefix, 11.
const peruPhoneRules = "not_empty,not_number,required_length=11"

// OnboardingInput is the first onboarding step ("user-settings").
type OnboardingInput struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Username    string `json:"username"`
	TimeZone    string `json:"timeZone"`
	Country     string `json:"country"`
	PhoneNumber string `json:"phoneNumber"`
	DNI         string `json:"DNI"`
}

// FullName joins first and last name.
func (in *OnboardingInput) FullName() string {
	return normalize.Name(in.FirstName + " " + in.LastName)
}

// Validate checks the onboarding input. The rules depend on the country:
// Peruvian users must supply a valid DNI and an 11-digit phone number that
// includes the country prefix. Username is validated only when
// requireUsername is set (doctors pick their public handle here).
func (in *OnboardingInput) Validate(requireUsername bool) error {
	in.FirstName = normalize.Name(in.FirstName)
	in.LastName = normalize.Name(in.LastName)
	in.Username = strings.TrimSpace(in.Username)
	in.TimeZone = strings.TrimSpace(in.TimeZone)
	in.Country = normalize.Country(in.Country)
	in.PhoneNumber = normalize.Phone(in.PhoneNumber)
	in.DNI = normalize.DNI(in.DNI)

	errs := Errors{}
	check := func(field string, value any, rules string) {
		if code := Var(value, rules); code != "" {
			errs[field] = code
		}
	}

	check("firstName", in.FirstName, "min_length=2")
	check("lastName", in.LastName, "min_length=2")
	if requireUsername {
		check("username", in.Username, "min_length=4")
	}
	if in.TimeZone != "" {
		check("timeZone", in.TimeZone, "timezone")
	}
	if in.Country == CountryPeru {
		check("DNI", in.DNI, DNIRules)
		if in.PhoneNumber != "" {
			check("phoneNumber", in.PhoneNumber, peruPhoneRules)
		}
	} else if in.PhoneNumber != "" {
		check("phoneNumber", in.PhoneNumber, "not_number,max=15")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequiresDNI reports whether the input's country mandates a DNI.
func (in *OnboardingInput) RequiresDNI() bool {
	return in.Country == CountryPeru
}
