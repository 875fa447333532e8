package storage

import (
	"fmt"
	"strings"
)

// Backend kinds.
const (
	KindBadger = "badger"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// DSN is a parsed store connection string.
type DSN struct {
	Kind string
	Path string
}

// ParseDSN parses a store connection string.
//
// A value without a scheme is treated as a Badger directory.
func ParseDSN(raw string) (DSN, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DSN{}, fmt.Errorf("storage: dsn is required")
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return DSN{Kind: KindBadger, Path: raw}, nil
	}

	switch strings.ToLower(scheme) {
	case KindBadger, KindSQLite:
		if rest == "" {
			return DSN{}, fmt.Errorf("storage: %s dsn requires a path", scheme)
		}
		return DSN{Kind: strings.ToLower(scheme), Path: rest}, nil
	case KindMemory:
		return DSN{Kind: KindMemory}, nil
	default:
		return DSN{}, fmt.Errorf("storage: unsupported dsn scheme %q", scheme)
	}
}

// String returns the DSN in canonical form.
func (d DSN) String() string {
	return d.Kind + "://" + d.Path
}
