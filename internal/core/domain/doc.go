// Package domain defines the core domain models for pairmesh.
//
// Domain models are pure value objects without IO dependencies or
// framework coupling. This package contains:
//
//   - Identity: normalization of tenant numbers into store/registry keys
//   - CredentialRecord: the durable per-identity authentication document
//   - StartStatus: coarse outcomes reported to control callers
//   - Errors: structured domain error definitions
package domain
