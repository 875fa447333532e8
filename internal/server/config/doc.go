// Package config defines the pairmesh-server configuration.
//
// The layout mirrors the YAML file: spec.go holds the structs, default.go the
// defaults, verify.go the validation and sanitize.go masking for logs.
// Loading is done by internal/infra/confloader.
package config
