package profileval

import (
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestValidateDNI(t *testing.T) {
	tests := []struct {
		dni  string
		want string
	}{
		{"76097512", ""},
		{"01234567", ""},
		{"", "not_empty"},
		{"   ", "not_empty"},
		{"7609751a", "not_number"},
		{"7609-751", "not_number"},
		{"7609751", "required_length_8"},
		{"760975123", "required_length_8"},
	}

	for _, tt := range tests {
		t.Run(tt.dni, func(t *testing.T) {
			if got := ValidateDNI(tt.dni); got != tt.want {
				t.Errorf("ValidateDNI(%q) = %q, want %q", tt.dni, got, tt.want)
			}
		})
	}
}

func TestCode(t *testing.T) {
	if got := Code("required_length", "8"); got != "required_length_8" {
		t.Errorf("Code() = %q", got)
	}
	if got := Code("email", ""); got != "email" {
		t.Errorf("Code() = %q", got)
	}
	if got := Code("oneof", "12 24"); got != "oneof_12_24" {
		t.Errorf("Code() = %q", got)
	}
}

func TestProfileInputValidate(t *testing.T) {
	tests := []struct {
		name  string
		input ProfileInput
		want  map[string]string
	}{
		{
			name:  "empty update is valid",
			input: ProfileInput{},
		},
		{
			name: "valid full update",
			input: ProfileInput{
				Username:    strPtr("ana-torres"),
				Name:        strPtr("Ana Torres"),
				FirstName:   strPtr("Ana"),
				LastName:    strPtr("Torres"),
				Email:       strPtr("ANA@example.com"),
				PhoneNumber: strPtr("987 654 321"),
				DNI:         strPtr("76097512"),
				TimeZone:    strPtr("America/Lima"),
				WeekStart:   strPtr("Monday"),
				TimeFormat:  intPtr(24),
				Theme:       strPtr("dark"),
				BrandColor:  strPtr("#112233"),
			},
		},
		{
			name:  "clearing theme is valid",
			input: ProfileInput{Theme: strPtr("")},
		},
		{
			name: "field codes",
			input: ProfileInput{
				Username:    strPtr("ab"),
				Name:        strPtr("Ana"),
				FirstName:   strPtr("A"),
				PhoneNumber: strPtr("98765"),
				DNI:         strPtr(""),
				TimeFormat:  intPtr(13),
				Theme:       strPtr("blue"),
				BrandColor:  strPtr("red"),
			},
			want: map[string]string{
				"username":    "min_length_4",
				"name":        "min_length_5",
				"firstName":   "min_length_2",
				"phoneNumber": "required_length_9",
				"DNI":         "not_empty",
				"timeFormat":  "oneof_12_24",
				"theme":       "theme",
				"brandColor":  "hexcolor6",
			},
		},
		{
			name:  "phone with letters",
			input: ProfileInput{PhoneNumber: strPtr("98765432x")},
			want:  map[string]string{"phoneNumber": "not_number"},
		},
		{
			name:  "bad email",
			input: ProfileInput{Email: strPtr("not-an-email")},
			want:  map[string]string{"email": "email"},
		},
		{
			name:  "bad time zone",
			input: ProfileInput{TimeZone: strPtr("Mars/Olympus")},
			want:  map[string]string{"timeZone": "timezone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			err := in.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var verrs Errors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error = %v, want Errors", err)
			}
			for field, code := range tt.want {
				if verrs[field] != code {
					t.Errorf("field %s = %q, want %q", field, verrs[field], code)
				}
			}
			if len(verrs) != len(tt.want) {
				t.Errorf("got %d field errors %v, want %d", len(verrs), verrs, len(tt.want))
			}
		})
	}
}

func TestProfileInputNormalize(t *testing.T) {
	in := ProfileInput{
		Email:       strPtr(" Ana@Example.COM "),
		PhoneNumber: strPtr("+51 987-654-321"),
		Name:        strPtr("  Ana   Torres "),
	}
	in.Normalize()

	if *in.Email != "ana@example.com" {
		t.Errorf("Email = %q", *in.Email)
	}
	if *in.PhoneNumber != "51987654321" {
		t.Errorf("PhoneNumber = %q", *in.PhoneNumber)
	}
	if *in.Name != "Ana Torres" {
		t.Errorf("Name = %q", *in.Name)
	}
}

func TestOnboardingInputValidate(t *testing.T) {
	tests := []struct {
		name            string
		input           OnboardingInput
		requireUsername bool
		want            map[string]string
	}{
		{
			name: "peru valid",
			input: OnboardingInput{
				FirstName: "Ana", LastName: "Torres", Country: "PE",
				PhoneNumber: "+51 987 654 321", DNI: "76097512", TimeZone: "America/Lima",
			},
		},
		{
			name: "peru missing dni",
			input: OnboardingInput{
				FirstName: "Ana", LastName: "Torres", Country: "pe",
			},
			want: map[string]string{"DNI": "not_empty"},
		},
		{
			name: "peru phone without prefix",
			input: OnboardingInput{
				FirstName: "Ana", LastName: "Torres", Country: "pe",
				PhoneNumber: "987654321", DNI: "76097512",
			},
			want: map[string]string{"phoneNumber": "required_length_11"},
		},
		{
			name: "other country needs no dni",
			input: OnboardingInput{
				FirstName: "John", LastName: "Smith", Country: "us", PhoneNumber: "12025550123",
			},
		},
		{
			name: "doctor must choose username",
			input: OnboardingInput{
				FirstName: "Ana", LastName: "Torres", Country: "us", Username: "an",
			},
			requireUsername: true,
			want:            map[string]string{"username": "min_length_4"},
		},
		{
			name:  "short names",
			input: OnboardingInput{FirstName: "A", LastName: "", Country: "us"},
			want:  map[string]string{"firstName": "min_length_2", "lastName": "min_length_2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			err := in.Validate(tt.requireUsername)
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var verrs Errors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error = %v, want Errors", err)
			}
			for field, code := range tt.want {
				if verrs[field] != code {
					t.Errorf("field %s = %q, want %q", field, verrs[field], code)
				}
			}
			if len(verrs) != len(tt.want) {
				t.Errorf("got field errors %v, want %v", verrs, tt.want)
			}
		})
	}
}

func TestOnboardingFullName(t *testing.T) {
	in := OnboardingInput{FirstName: " Ana ", LastName: "Torres"}
	if got := in.FullName(); got != "Ana Torres" {
		t.Errorf("FullName() = %q, want %q", got, "Ana Torres")
	}
}
