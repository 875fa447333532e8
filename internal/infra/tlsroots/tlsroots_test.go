package tlsroots

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeKeyPair writes a self-signed certificate for 127.0.0.1 and returns
// its PEM encoding.
func writeKeyPair(t *testing.T, certFile, keyFile, cn string) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return certPEM
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddCertPEM(t *testing.T) {
	dir := t.TempDir()
	certPEM := writeKeyPair(t, filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key"), "a")

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"single", certPEM, nil},
		{"skips other blocks", append(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1}}), certPEM...), nil},
		{"no certificate", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1}}), ErrNoCertsFound},
		{"garbage", []byte("not pem"), ErrNoCertsFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewPool().AddCertPEM(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddCertPEM() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGatewayClientConfig(t *testing.T) {
	t.Run("empty means defaults", func(t *testing.T) {
		cfg, err := GatewayClientConfig("")
		if err != nil || cfg != nil {
			t.Errorf("GatewayClientConfig(\"\") = %v, %v; want nil, nil", cfg, err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := GatewayClientConfig(filepath.Join(t.TempDir(), "none.pem")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("trusts the added CA", func(t *testing.T) {
		dir := t.TempDir()
		certFile := filepath.Join(dir, "ca.crt")
		keyFile := filepath.Join(dir, "ca.key")
		writeKeyPair(t, certFile, keyFile, "gateway")

		pair, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			t.Fatal(err)
		}
		srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		srv.TLS = &tls.Config{Certificates: []tls.Certificate{pair}}
		srv.StartTLS()
		defer srv.Close()

		cfg, err := GatewayClientConfig(certFile)
		if err != nil {
			t.Fatalf("GatewayClientConfig() error = %v", err)
		}
		client := &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}}
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}

func TestLoadKeyPair(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	if _, err := LoadKeyPair(certFile, keyFile); err == nil {
		t.Error("expected error for missing files")
	}

	writeKeyPair(t, certFile, keyFile, "first")
	kp, err := LoadKeyPair(certFile, keyFile, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("LoadKeyPair() error = %v", err)
	}
	defer kp.Stop()

	cert, err := kp.ServerConfig().GetCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
}

func TestKeyPairReload(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	writeKeyPair(t, certFile, keyFile, "first")

	kp, err := LoadKeyPair(certFile, keyFile, WithLogger(quietLogger()), WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer kp.Stop()

	first, _ := kp.GetCertificate(nil)
	kp.WatchAsync()

	// The watcher registers asynchronously; rewrite until a change is seen.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		writeKeyPair(t, certFile, keyFile, "second")
		time.Sleep(300 * time.Millisecond)

		cur, _ := kp.GetCertificate(nil)
		if !bytes.Equal(cur.Certificate[0], first.Certificate[0]) {
			return
		}
	}
	t.Fatal("certificate was not reloaded")
}

func TestKeyPairStopTwice(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	writeKeyPair(t, certFile, keyFile, "x")

	kp, err := LoadKeyPair(certFile, keyFile, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- kp.Watch() }()

	kp.Stop()
	kp.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after Stop")
	}
}
