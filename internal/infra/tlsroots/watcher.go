package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// KeyPair serves a certificate/key pair that is reloaded when either file
// changes on disk. A failed reload keeps the previous pair.
type KeyPair struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	mu   sync.RWMutex
	cert *tls.Certificate

	reloadMu   sync.Mutex
	lastReload time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// KeyPairOption configures a KeyPair.
type KeyPairOption func(*KeyPair)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) KeyPairOption {
	return func(k *KeyPair) {
		k.logger = logger
	}
}

// WithDebounce sets the minimum interval between reloads.
func WithDebounce(d time.Duration) KeyPairOption {
	return func(k *KeyPair) {
		k.debounce = d
	}
}

// LoadKeyPair loads the pair once. Call Watch to follow later changes.
func LoadKeyPair(certFile, keyFile string, opts ...KeyPairOption) (*KeyPair, error) {
	k := &KeyPair{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}

	if err := k.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return k, nil
}

// ServerConfig returns a server TLS config that always presents the
// current pair.
func (k *KeyPair) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: k.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// GetCertificate implements tls.Config.GetCertificate.
func (k *KeyPair) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cert, nil
}

// Watch follows the certificate and key directories until Stop. Directories
// are watched rather than files so rename-into-place updates are seen.
func (k *KeyPair) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer w.Close()

	certDir := filepath.Dir(k.certFile)
	keyDir := filepath.Dir(k.keyFile)
	if err := w.Add(certDir); err != nil {
		return fmt.Errorf("tlsroots: watch %s: %w", certDir, err)
	}
	if keyDir != certDir {
		if err := w.Add(keyDir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", keyDir, err)
		}
	}

	certBase := filepath.Base(k.certFile)
	keyBase := filepath.Base(k.keyFile)

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if name != certBase && name != keyBase {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := k.debouncedReload(); err != nil {
				k.logger.Error("certificate reload failed", "error", err, "cert_file", k.certFile)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			k.logger.Error("certificate watcher error", "error", err)

		case <-k.done:
			return nil
		}
	}
}

// WatchAsync runs Watch in a goroutine.
func (k *KeyPair) WatchAsync() {
	go func() {
		if err := k.Watch(); err != nil {
			k.logger.Error("certificate watcher stopped", "error", err)
		}
	}()
}

// Stop ends Watch. It is safe to call more than once.
func (k *KeyPair) Stop() {
	k.stopOnce.Do(func() { close(k.done) })
}

func (k *KeyPair) debouncedReload() error {
	k.reloadMu.Lock()
	defer k.reloadMu.Unlock()

	now := time.Now()
	if now.Sub(k.lastReload) < k.debounce {
		return nil
	}
	k.lastReload = now

	// Give the writer a moment to finish both files.
	time.Sleep(100 * time.Millisecond)
	return k.reload()
}

func (k *KeyPair) reload() error {
	cert, err := tls.LoadX509KeyPair(k.certFile, k.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}

	k.mu.Lock()
	k.cert = &cert
	k.mu.Unlock()

	k.logger.Info("certificate loaded", "cert_file", k.certFile)
	return nil
}
