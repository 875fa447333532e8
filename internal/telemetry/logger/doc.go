// Package logger provides structured logging for pairmesh.
//
// It configures the standard library log/slog with:
//
//   - JSON (default) or text output
//   - a process-wide level that can be changed at runtime (SetLevel)
//   - automatic redaction of credential material and secrets
//   - request ID propagation through context.Context
//
// Components receive a *slog.Logger; nothing in the tree logs through
// package-level globals other than the level variable.
package logger
