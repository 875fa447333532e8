package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})

	l.Info("saved",
		"identity", "15551234567",
		"creds", `{"noiseKey":"private"}`,
		"encryption_key", "00112233",
		"blob", "enc:v1:QUJDREVG",
		"raw_creds", []byte("private"),
	)

	out := buf.String()
	if strings.Contains(out, "private") {
		t.Errorf("credential material leaked: %s", out)
	}
	if strings.Contains(out, "00112233") {
		t.Errorf("encryption key leaked: %s", out)
	}
	if strings.Contains(out, "QUJDREVG") {
		t.Errorf("sealed blob leaked: %s", out)
	}
	if !strings.Contains(out, "15551234567") {
		t.Errorf("identity should not be redacted: %s", out)
	}
}

func TestRedaction_Groups(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})

	l.Info("nested", "record", map[string]string{"ok": "yes"})
	l.WithGroup("store").Info("x", "secret", "hunter2")

	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("grouped secret leaked: %s", buf.String())
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := map[string]bool{
		"creds":          true,
		"Credentials":    true,
		"api_token":      true,
		"encryption_key": true,
		"identity":       false,
		"session_id":     false,
		"status_code":    false,
	}
	for key, want := range tests {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}
