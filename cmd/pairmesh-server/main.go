// Command pairmesh-server supervises one messaging connection per paired
// identity and serves the HTTP control API.
//
// On start it restores every identity with an active stored session. A
// panic inside a connection's event loop runs process.restart_command, if
// set, and the process exits non-zero so an external supervisor restarts it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/pairmesh-go/internal/authstate"
	"github.com/yndnr/pairmesh-go/internal/command"
	"github.com/yndnr/pairmesh-go/internal/core/service"
	"github.com/yndnr/pairmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/pairmesh-go/internal/infra/confloader"
	"github.com/yndnr/pairmesh-go/internal/infra/shutdown"
	"github.com/yndnr/pairmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/pairmesh-go/internal/server/config"
	"github.com/yndnr/pairmesh-go/internal/server/httpserver"
	"github.com/yndnr/pairmesh-go/internal/storage"
	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
	"github.com/yndnr/pairmesh-go/internal/telemetry/metric"
	"github.com/yndnr/pairmesh-go/internal/transport"
	"github.com/yndnr/pairmesh-go/internal/transport/wsgateway"
)

const (
	shutdownTimeout       = 30 * time.Second
	restartCommandTimeout = 30 * time.Second
)

func main() {
	app := &cli.App{
		Name:    "pairmesh-server",
		Usage:   "Multi-tenant messaging connection manager",
		Version: buildinfo.Get().String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"PAIRMESH_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.String("config"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, loader, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	slog.SetDefault(log)

	log.Info("starting pairmesh-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	metrics := metric.NewRegistry()
	shutdownHandler := shutdown.NewHandler(shutdownTimeout, log)

	// Hooks run in reverse order of registration.
	store, err := storage.New(storage.Options{
		DSN:           cfg.Storage.DSN,
		EncryptionKey: cfg.Storage.EncryptionKey,
		Badger:        storage.DefaultBadgerConfig(),
		Logger:        log,
		Metrics:       metrics,
	})
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	shutdownHandler.OnShutdown("storage", func(ctx context.Context) error {
		return store.Close()
	})

	var faulted atomic.Bool
	supervisor, err := newSupervisor(cfg, store, metrics, log, func(identity string, recovered any) {
		if !faulted.CompareAndSwap(false, true) {
			return
		}
		log.Error("session task fault, restarting process", "identity", identity, "panic", fmt.Sprint(recovered))
		runRestartCommand(cfg.Process.RestartCommand, log)
		shutdownHandler.Trigger("fault")
	})
	if err != nil {
		return fmt.Errorf("init supervisor: %w", err)
	}
	shutdownHandler.OnShutdown("supervisor", supervisor.Close)

	control := service.NewControlService(supervisor, store, authstate.New(cfg.Session.BaseDir), log)

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Control:     control,
		Ready:       store,
		Metrics:     metrics,
		Logger:      log,
		RateLimit:   cfg.Server.HTTP.RateLimit,
		EnableAudit: true,
	})
	httpServer := httpserver.New(cfg.Server.HTTP.Addr, router, log)
	shutdownHandler.OnShutdown("http", httpServer.Shutdown)

	var serveFailed atomic.Bool
	go func() {
		if err := httpServer.ListenAndServe(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile); err != nil {
			log.Error("http server error", "error", err)
			serveFailed.Store(true)
			shutdownHandler.Trigger("http server failed")
		}
	}()

	if configFile != "" {
		watcher, err := watchLogLevel(configFile, loader, log)
		if err != nil {
			log.Warn("config watch disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	recoverCtx, cancelRecover := context.WithCancel(context.Background())
	shutdownHandler.OnShutdown("recovery", func(context.Context) error {
		cancelRecover()
		return nil
	})
	go func() {
		if _, err := supervisor.RecoverAll(recoverCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("session recovery failed", "error", err)
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	waitErr := shutdownHandler.Wait()

	switch {
	case faulted.Load():
		return errors.New("stopped after a session task fault")
	case serveFailed.Load():
		return errors.New("http server stopped unexpectedly")
	case waitErr != nil:
		return waitErr
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig applies defaults, then the file, then PAIRMESH_* variables.
func loadConfig(configFile string) (*config.ServerConfig, *confloader.Loader, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithKnownKeys(config.Keys()...)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

func newSupervisor(cfg *config.ServerConfig, store *storage.Store, metrics *metric.Registry, log *slog.Logger, onFault service.FaultFunc) (*service.Supervisor, error) {
	gatewayTLS, err := tlsroots.GatewayClientConfig(cfg.Transport.CAFile)
	if err != nil {
		return nil, err
	}
	factory, err := wsgateway.NewFactory(wsgateway.Config{
		URL:              cfg.Transport.GatewayURL,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		TLS:              gatewayTLS,
	})
	if err != nil {
		return nil, err
	}

	commands, err := command.NewTable(cfg.Command.Disabled, command.Builtins(buildinfo.Version)...)
	if err != nil {
		return nil, err
	}
	log.Info("command table built", "commands", commands.Len())

	r := cfg.Session.Reconnect
	return service.NewSupervisor(service.SupervisorConfig{
		Store:              store,
		Dirs:               authstate.New(cfg.Session.BaseDir),
		Factory:            factory,
		Commands:           commands,
		Metrics:            metrics,
		Logger:             log,
		CommandPrefix:      cfg.Command.Prefix,
		IgnoreChannels:     cfg.Broadcast.IgnoreChannels,
		SendConnectMessage: cfg.Session.SendConnectMessage,
		ConnectMessage:     cfg.Session.ConnectMessage,
		Browser: transport.Browser{
			Name:     cfg.Transport.BrowserName,
			Platform: cfg.Transport.BrowserPlatform,
		},
		Reconnect: service.ReconnectPolicy{
			InitialInterval:     r.InitialInterval,
			MaxInterval:         r.MaxInterval,
			Multiplier:          r.Multiplier,
			RandomizationFactor: r.RandomizationFactor,
			MaxAttempts:         r.MaxAttempts,
		},
		RecoveryConcurrency: cfg.Session.RecoveryConcurrency,
		OnFault:             onFault,
	})
}

// watchLogLevel re-applies log.level whenever the config file changes. No
// other key is reloaded at runtime.
func watchLogLevel(path string, loader *confloader.Loader, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(string) {
		if err := loader.Reload(); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		level := loader.GetString("log.level")
		if level == "" || level == logger.GetLevel() {
			return
		}
		logger.SetLevel(level)
		log.Info("log level changed", "level", level)
	})
	watcher.StartAsync()
	return watcher, nil
}

// runRestartCommand runs the operator's restart hook through the shell.
func runRestartCommand(command string, log *slog.Logger) {
	if command == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restartCommandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil {
		log.Error("restart command failed", "error", err, "output", string(out))
		return
	}
	log.Info("restart command finished")
}
