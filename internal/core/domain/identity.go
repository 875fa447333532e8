package domain

import "strings"

// NormalizeIdentity strips every non-digit rune from s.
//
// "+1 (555) 123-4567" and "15551234567" both normalize to "15551234567".
// Applying it to an already normalized identity is a no-op.
func NormalizeIdentity(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseIdentity normalizes s and rejects values with no digits.
func ParseIdentity(s string) (string, error) {
	id := NormalizeIdentity(s)
	if id == "" {
		return "", ErrInvalidIdentity.WithDetails("identity must contain digits")
	}
	return id, nil
}
