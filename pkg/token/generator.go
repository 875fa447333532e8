package token

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID string. IDs generated by one process sort in
// generation order, including within the same millisecond.
func New() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// WithPrefix returns prefix followed by a new ID, or prefix+"unknown" if
// the random source fails.
func WithPrefix(prefix string) string {
	id, err := New()
	if err != nil {
		return prefix + "unknown"
	}
	return prefix + id
}

// Time reports when id was generated. The prefix, if any, must already be
// stripped.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
