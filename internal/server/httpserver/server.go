package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yndnr/pairmesh-go/internal/infra/tlsroots"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	mu      sync.Mutex
	keyPair *tlsroots.KeyPair
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger: logger,
	}
}

// ListenAndServe starts the HTTP server, or HTTPS when certFile and keyFile
// are set. It returns nil after Shutdown.
func (s *Server) ListenAndServe(certFile, keyFile string) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln, certFile, keyFile)
}

// Serve accepts connections on ln. With TLS the key pair is reloaded when
// its files change.
func (s *Server) Serve(ln net.Listener, certFile, keyFile string) error {
	useTLS := certFile != "" && keyFile != ""
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "tls", useTLS)

	var err error
	if useTLS {
		kp, loadErr := tlsroots.LoadKeyPair(certFile, keyFile, tlsroots.WithLogger(s.logger))
		if loadErr != nil {
			ln.Close()
			return loadErr
		}
		s.mu.Lock()
		s.keyPair = kp
		s.mu.Unlock()
		kp.WatchAsync()
		defer kp.Stop()

		s.httpServer.TLSConfig = kp.ServerConfig()
		err = s.httpServer.ServeTLS(ln, "", "")
	} else {
		err = s.httpServer.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.keyPair != nil {
		s.keyPair.Stop()
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}
