package normalize

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user@example.com", "user@example.com"},
		{"USER@EXAMPLE.COM", "user@example.com"},
		{"  user@example.com  ", "user@example.com"},
		{"\tuser@example.com\n", "user@example.com"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Email(tt.input); got != tt.want {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Ana Torres", "Ana Torres"},
		{"  Ana   Torres  ", "Ana Torres"},
		{"\tAna\nTorres", "Ana Torres"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Name(tt.input); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRole(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"admin", "ADMIN"},
		{" User ", "USER"},
		{"ADMIN", "ADMIN"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Role(tt.input); got != tt.want {
			t.Errorf("Role(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"+51 987 654 321", "51987654321"},
		{"(01) 234-5678", "012345678"},
		{"987.654.321", "987654321"},
		{"  987654321 ", "987654321"},
		{"98a7", "98a7"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Phone(tt.input); got != tt.want {
			t.Errorf("Phone(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCountryAndProvider(t *testing.T) {
	if got := Country(" PE "); got != "pe" {
		t.Errorf("Country() = %q, want %q", got, "pe")
	}
	if got := Provider("Google"); got != "google" {
		t.Errorf("Provider() = %q, want %q", got, "google")
	}
	if got := DNI(" 76097512 "); got != "76097512" {
		t.Errorf("DNI() = %q, want %q", got, "76097512")
	}
}
