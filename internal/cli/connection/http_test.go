package connection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func writeEnvelope(w http.ResponseWriter, status int, code, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":       code,
		"message":    message,
		"request_id": "req-1",
		"timestamp":  time.Now().UnixMilli(),
		"data":       data,
	})
}

func TestNewHTTPClient_BaseURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"localhost:5000", "http://localhost:5000"},
		{"http://localhost:5000/", "http://localhost:5000"},
		{"https://pm.example.com", "https://pm.example.com"},
	}
	for _, tt := range tests {
		if got := NewHTTPClient(tt.server, 0).BaseURL(); got != tt.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tt.server, got, tt.want)
		}
	}
}

func TestHTTPClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/active" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "pairmesh-cli/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		writeEnvelope(w, http.StatusOK, "OK", "Success", map[string]any{"count": 2})
	}))
	defer srv.Close()

	var out struct {
		Count int `json:"count"`
	}
	if err := NewHTTPClient(srv.URL, time.Second).Get(context.Background(), "/active", &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 2 {
		t.Errorf("count = %d", out.Count)
	}
}

func TestHTTPClient_PostAndDelete(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, r.Method+" "+r.URL.EscapedPath()+" "+string(body))
		writeEnvelope(w, http.StatusOK, "OK", "Success", nil)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	if err := c.Post(context.Background(), "/sessions", map[string]any{"identity": "1"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(context.Background(), IdentityPath("+1 555"), nil); err != nil {
		t.Fatal(err)
	}

	want := []string{
		`POST /sessions {"identity":"1"}`,
		`DELETE /sessions/+1%20555 `,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHTTPClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, "PM-SESS-4040", "session not found", nil)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, time.Second).Get(context.Background(), "/sessions/1", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "PM-SESS-4040" || apiErr.RequestID != "req-1" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if apiErr.Error() != "[PM-SESS-4040] session not found" {
		t.Errorf("Error() = %q", apiErr.Error())
	}
}

func TestHTTPClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, time.Second).Get(context.Background(), "/", nil)
	if err == nil || err.Error() != "request failed with status 502" {
		t.Errorf("err = %v", err)
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := NewHTTPClient(url, time.Second).Get(context.Background(), "/", nil); err == nil {
		t.Error("expected connection error")
	}
}
