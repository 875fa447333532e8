package service

import "context"

// CredentialStore is the durable per-identity credential store.
//
// Every method is keyed by a normalized identity. Failures are reported as
// domain storage errors and are never fatal to a connection.
type CredentialStore interface {
	// Upsert saves blob as the live credentials and returns the new
	// session ID.
	Upsert(ctx context.Context, identity string, blob []byte) (string, error)

	// FetchActive returns the live credentials, if any.
	FetchActive(ctx context.Context, identity string) (blob []byte, found bool, err error)

	// Deactivate retires the live credentials after a logout.
	Deactivate(ctx context.Context, identity string) error

	// Purge deletes everything stored for identity. It is idempotent.
	Purge(ctx context.Context, identity string) error

	// ListActive returns identities with restorable credentials.
	ListActive(ctx context.Context) ([]string, error)
}
