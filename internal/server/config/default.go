package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr  = "0.0.0.0:5000"
	DefaultRateLimit = 20

	DefaultStorageDSN = "badger:///var/lib/pairmesh/store"
	DefaultBaseDir    = "/var/lib/pairmesh/sessions"

	DefaultConnectMessage      = "Connected Successfully!\nNumber: {number}"
	DefaultRecoveryConcurrency = 4

	DefaultReconnectInitial    = time.Second
	DefaultReconnectMax        = 2 * time.Minute
	DefaultReconnectMultiplier = 2.0
	DefaultReconnectJitter     = 0.2

	DefaultCommandPrefix = "."

	DefaultGatewayURL       = "ws://127.0.0.1:5050/gateway"
	DefaultHandshakeTimeout = 20 * time.Second
	DefaultBrowserName      = "Chrome"
	DefaultBrowserPlatform  = "Ubuntu"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultIgnoreChannels are the channels skipped by the command router.
var DefaultIgnoreChannels = []string{"status@broadcast"}

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:      DefaultHTTPAddr,
				RateLimit: DefaultRateLimit,
			},
		},
		Storage: StorageSection{
			DSN: DefaultStorageDSN,
		},
		Session: SessionSection{
			BaseDir:             DefaultBaseDir,
			SendConnectMessage:  true,
			ConnectMessage:      DefaultConnectMessage,
			RecoveryConcurrency: DefaultRecoveryConcurrency,
			Reconnect: ReconnectConfig{
				InitialInterval:     DefaultReconnectInitial,
				MaxInterval:         DefaultReconnectMax,
				Multiplier:          DefaultReconnectMultiplier,
				RandomizationFactor: DefaultReconnectJitter,
			},
		},
		Command: CommandSection{
			Prefix: DefaultCommandPrefix,
		},
		Broadcast: BroadcastSection{
			IgnoreChannels: append([]string(nil), DefaultIgnoreChannels...),
		},
		Transport: TransportSection{
			GatewayURL:       DefaultGatewayURL,
			HandshakeTimeout: DefaultHandshakeTimeout,
			BrowserName:      DefaultBrowserName,
			BrowserPlatform:  DefaultBrowserPlatform,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
