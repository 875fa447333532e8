package config

import (
	"reflect"
	"strings"
	"time"
)

// ServerConfig is the root configuration for pairmesh-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Storage   StorageSection   `koanf:"storage"`
	Session   SessionSection   `koanf:"session"`
	Command   CommandSection   `koanf:"command"`
	Broadcast BroadcastSection `koanf:"broadcast"`
	Transport TransportSection `koanf:"transport"`
	Process   ProcessSection   `koanf:"process"`
	Log       LogSection       `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP control surface.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// RateLimit is the per-client request rate in requests per second.
	// Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
}

// StorageSection configures the credential store.
type StorageSection struct {
	// DSN selects the backend: badger://<dir>, sqlite://<file> or memory://.
	DSN string `koanf:"dsn"`

	// EncryptionKey is a hex encoded AES key. When set, credential blobs are
	// sealed before they reach the backend.
	EncryptionKey string `koanf:"encryption_key"`
}

// SessionSection configures session supervision.
type SessionSection struct {
	BaseDir             string          `koanf:"base_dir"`
	SendConnectMessage  bool            `koanf:"send_connect_message"`
	ConnectMessage      string          `koanf:"connect_message"`
	RecoveryConcurrency int             `koanf:"recovery_concurrency"`
	Reconnect           ReconnectConfig `koanf:"reconnect"`
}

// ReconnectConfig configures the backoff between transient closes.
type ReconnectConfig struct {
	InitialInterval     time.Duration `koanf:"initial_interval"`
	MaxInterval         time.Duration `koanf:"max_interval"`
	Multiplier          float64       `koanf:"multiplier"`
	RandomizationFactor float64       `koanf:"randomization_factor"`

	// MaxAttempts caps consecutive reconnects. Zero means no cap.
	MaxAttempts int `koanf:"max_attempts"`
}

// CommandSection configures the chat command router.
type CommandSection struct {
	Prefix   string   `koanf:"prefix"`
	Disabled []string `koanf:"disabled"`
}

// BroadcastSection lists channels whose messages are ignored.
type BroadcastSection struct {
	IgnoreChannels []string `koanf:"ignore_channels"`
}

// TransportSection configures the messaging gateway.
type TransportSection struct {
	GatewayURL       string        `koanf:"gateway_url"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	BrowserName      string        `koanf:"browser_name"`
	BrowserPlatform  string        `koanf:"browser_platform"`

	// CAFile adds trusted roots for a wss gateway.
	CAFile string `koanf:"ca_file"`
}

// ProcessSection configures the process fault policy.
type ProcessSection struct {
	// RestartCommand is run through the shell when a session task faults.
	// The server exits afterwards either way.
	RestartCommand string `koanf:"restart_command"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Keys returns every dotted leaf key of ServerConfig, e.g.
// "session.reconnect.max_attempts".
func Keys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(ServerConfig{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if tag == "" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			collectKeys(f.Type, key, keys)
			continue
		}
		*keys = append(*keys, key)
	}
}

// splitList expands comma separated entries, as produced by environment
// variables, and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
