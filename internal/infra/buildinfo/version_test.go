package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "v1.2.3"

	info := Get()
	if info.Version != "v1.2.3" {
		t.Errorf("Version = %q", info.Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
	if s := info.String(); !strings.HasPrefix(s, "v1.2.3 (") {
		t.Errorf("String() = %q", s)
	}
}

func TestUserAgent(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "v0.9.0"

	if got := UserAgent("pairmesh-cli"); got != "pairmesh-cli/v0.9.0" {
		t.Errorf("UserAgent() = %q", got)
	}
}
