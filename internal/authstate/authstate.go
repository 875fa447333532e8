// Package authstate manages the per-identity local working directories that
// hold materialized authentication state while a connection is live.
package authstate

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// CredsFile is the credential file name inside a working directory.
const CredsFile = "creds.json"

const dirPrefix = "session_"

// Dirs roots the working directories under one base directory.
type Dirs struct {
	base string
}

// New returns a Dirs rooted at base.
func New(base string) *Dirs {
	return &Dirs{base: filepath.Clean(base)}
}

// Base returns the base directory.
func (d *Dirs) Base() string {
	return d.base
}

// Path returns the working directory of identity.
func (d *Dirs) Path(identity string) string {
	return filepath.Join(d.base, dirPrefix+identity)
}

// Ensure creates the working directory of identity if needed.
func (d *Dirs) Ensure(identity string) (string, error) {
	if identity == "" {
		return "", errors.New("authstate: empty identity")
	}
	dir := d.Path(identity)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("authstate: create %s: %w", dir, err)
	}
	return dir, nil
}

// WriteCreds atomically replaces creds.json for identity.
func (d *Dirs) WriteCreds(identity string, blob []byte) error {
	dir, err := d.Ensure(identity)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, CredsFile)
	if err := atomic.WriteFile(path, bytes.NewReader(blob)); err != nil {
		return fmt.Errorf("authstate: write %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// ReadCreds returns creds.json for identity. A missing file reports
// found=false.
func (d *Dirs) ReadCreds(identity string) ([]byte, bool, error) {
	blob, err := os.ReadFile(filepath.Join(d.Path(identity), CredsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("authstate: read: %w", err)
	}
	return blob, true, nil
}

// DeleteCreds removes creds.json for identity so the next connection starts
// unauthenticated. A missing file is not an error.
func (d *Dirs) DeleteCreds(identity string) error {
	if identity == "" {
		return errors.New("authstate: empty identity")
	}
	err := os.Remove(filepath.Join(d.Path(identity), CredsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("authstate: delete creds: %w", err)
	}
	return nil
}

// Remove deletes the working directory of identity.
func (d *Dirs) Remove(identity string) error {
	if identity == "" {
		return errors.New("authstate: empty identity")
	}
	if err := os.RemoveAll(d.Path(identity)); err != nil {
		return fmt.Errorf("authstate: remove: %w", err)
	}
	return nil
}

// Clear removes every working directory under the base directory and
// leaves the base itself in place. Unrelated entries are kept.
func (d *Dirs) Clear() error {
	entries, err := os.ReadDir(d.base)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("authstate: list base: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(d.base, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
