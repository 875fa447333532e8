package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked,
// suitable for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Storage.EncryptionKey != "" {
		sanitized.Storage.EncryptionKey = maskSecret(sanitized.Storage.EncryptionKey)
	}
	if sanitized.Process.RestartCommand != "" {
		sanitized.Process.RestartCommand = maskSecret(sanitized.Process.RestartCommand)
	}

	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
