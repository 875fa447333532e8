package domain

import "testing"

func TestNormalizeIdentity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-4567", "15551234567"},
		{"15551234567", "15551234567"},
		{"94-77 123 4567", "94771234567"},
		{"123@s.whatsapp.net", "123"},
		{"", ""},
		{"abc", ""},
		{"٣٤٥", ""}, // non-ASCII digits are not accepted
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeIdentity(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeIdentity(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := NormalizeIdentity(got); again != got {
				t.Errorf("normalization not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity("+1 (555) 123-4567")
	if err != nil {
		t.Fatalf("ParseIdentity() error = %v", err)
	}
	if id != "15551234567" {
		t.Errorf("ParseIdentity() = %q", id)
	}

	if _, err := ParseIdentity("n/a"); !IsDomainError(err, ErrInvalidIdentity.Code) {
		t.Errorf("expected ErrInvalidIdentity, got %v", err)
	}
}
