package storage

import (
	"context"
	"errors"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrClosed   = errors.New("backend closed")
)

// UpdateFunc computes the next version of a record from the current one.
// cur is nil when no record exists. Returning a nil record skips the write.
type UpdateFunc func(cur *domain.CredentialRecord) (*domain.CredentialRecord, error)

// Backend is an embedded document store keyed by identity.
//
// Implementations must run Update as a single transaction so a
// read-modify-write on one identity is atomic.
type Backend interface {
	// Get returns the record for identity or ErrNotFound.
	Get(ctx context.Context, identity string) (*domain.CredentialRecord, error)

	// Update applies fn to the record for identity atomically.
	Update(ctx context.Context, identity string, fn UpdateFunc) error

	// Delete removes the record. Missing records are not an error.
	Delete(ctx context.Context, identity string) error

	// ActiveIdentities returns the identities of all active records.
	ActiveIdentities(ctx context.Context) ([]string, error)

	// Close releases the backend.
	Close() error
}
