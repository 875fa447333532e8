package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys shared across components so log queries stay uniform.
const (
	KeyComponent = "component"
	KeyIdentity  = "identity"
	KeyRequestID = "request_id"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is json (default) or text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// AddSource adds source file information to log entries.
	AddSource bool
}

// globalLevel is shared by every logger built with New so SetLevel applies
// to all of them.
var globalLevel = new(slog.LevelVar)

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds a logger and sets the process-wide level from cfg.
func New(cfg Config) *slog.Logger {
	globalLevel.Set(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     globalLevel,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ForComponent tags l with the component name.
func ForComponent(l *slog.Logger, name string) *slog.Logger {
	return l.With(KeyComponent, name)
}

// ForIdentity tags l with a session identity.
func ForIdentity(l *slog.Logger, identity string) *slog.Logger {
	return l.With(KeyIdentity, identity)
}

// SetLevel changes the level of every logger built with New.
func SetLevel(level string) {
	globalLevel.Set(ParseLevel(level))
}

// GetLevel returns the current level name.
func GetLevel() string {
	switch globalLevel.Level() {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return slog.LevelInfo
}
