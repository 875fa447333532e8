package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/yndnr/pairmesh-go/internal/storage"
	"github.com/yndnr/pairmesh-go/pkg/crypto/adaptive"
)

// Verify validates the configuration. It normalizes list values in place
// and creates the session base directory.
func Verify(cfg *ServerConfig) error {
	cfg.Command.Disabled = splitList(cfg.Command.Disabled)
	cfg.Broadcast.IgnoreChannels = splitList(cfg.Broadcast.IgnoreChannels)

	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifySession(&cfg.Session),
		verifyCommand(&cfg.Command),
		verifyTransport(&cfg.Transport),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and server.http.tls_key_file must be set together")
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.http tls file: %w", err)
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DSN == "" {
		return errors.New("storage.dsn is required")
	}
	if _, err := storage.ParseDSN(cfg.DSN); err != nil {
		return fmt.Errorf("storage.dsn: %w", err)
	}
	if cfg.EncryptionKey != "" {
		if _, err := adaptive.ParseHexKey(cfg.EncryptionKey); err != nil {
			return fmt.Errorf("storage.encryption_key: %w", err)
		}
	}
	return nil
}

func verifySession(cfg *SessionSection) error {
	if cfg.BaseDir == "" {
		return errors.New("session.base_dir is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o700); err != nil {
		return errors.New("cannot create session base directory: " + err.Error())
	}
	if cfg.RecoveryConcurrency < 1 {
		return errors.New("session.recovery_concurrency must be at least 1")
	}

	r := cfg.Reconnect
	switch {
	case r.InitialInterval <= 0:
		return errors.New("session.reconnect.initial_interval must be positive")
	case r.MaxInterval < r.InitialInterval:
		return errors.New("session.reconnect.max_interval must not be below initial_interval")
	case r.Multiplier < 1:
		return errors.New("session.reconnect.multiplier must be at least 1")
	case r.RandomizationFactor < 0 || r.RandomizationFactor > 1:
		return errors.New("session.reconnect.randomization_factor must be within [0, 1]")
	case r.MaxAttempts < 0:
		return errors.New("session.reconnect.max_attempts must not be negative")
	}
	return nil
}

func verifyCommand(cfg *CommandSection) error {
	if strings.TrimSpace(cfg.Prefix) == "" {
		return errors.New("command.prefix is required")
	}
	return nil
}

func verifyTransport(cfg *TransportSection) error {
	u, err := url.Parse(cfg.GatewayURL)
	if err != nil {
		return fmt.Errorf("transport.gateway_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("transport.gateway_url: unsupported scheme %q", u.Scheme)
	}
	if cfg.HandshakeTimeout <= 0 {
		return errors.New("transport.handshake_timeout must be positive")
	}
	if cfg.CAFile != "" {
		if _, err := os.Stat(cfg.CAFile); err != nil {
			return fmt.Errorf("transport.ca_file: %w", err)
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
	return nil
}
