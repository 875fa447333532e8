package logger

import (
	"log/slog"
	"strings"
)

// sealedPrefix marks credential blobs sealed by the storage layer.
const sealedPrefix = "enc:v1:"

// Key fragments whose string values are never logged.
var sensitiveKeyPatterns = []string{
	"creds",
	"credential",
	"password",
	"secret",
	"token",
	"encryption_key",
	"auth",
	"bearer",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if strings.HasPrefix(v, sealedPrefix) {
			return slog.String(a.Key, sealedPrefix+"***")
		}
		if v != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindAny:
		if _, ok := a.Value.Any().([]byte); ok && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}
