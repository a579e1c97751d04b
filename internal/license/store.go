package license

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File is the installed license as stored on disk: either a signed token or a
// legacy shared-secret license.
type File struct {
	Token  string
	Legacy *LegacyLicense

	// Raw holds the bytes read from or written to disk.
	Raw []byte
}

// Signed reports whether the file carries a signed token. A token always
// takes precedence over legacy fields in the same file.
func (f *File) Signed() bool {
	return f != nil && f.Token != ""
}

// Kind names the license path the file belongs to.
func (f *File) Kind() string {
	switch {
	case f.Signed():
		return SourceSigned
	case f != nil && f.Legacy != nil:
		return SourceLegacy
	default:
		return SourceNone
	}
}

// ParseFile decodes a license file of either kind.
func ParseFile(raw []byte) (*File, error) {
	var probe struct {
		Token *string `json:"token"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, malformed("license file is not a JSON object: %v", err)
	}

	if probe.Token != nil && strings.TrimSpace(*probe.Token) != "" {
		return &File{Token: strings.TrimSpace(*probe.Token), Raw: raw}, nil
	}

	legacy, err := ParseLegacy(raw)
	if err != nil {
		return nil, err
	}
	return &File{Legacy: legacy, Raw: raw}, nil
}

// Encode returns the bytes Save writes: Raw when present, otherwise an
// indented JSON rendering.
func (f *File) Encode() ([]byte, error) {
	if len(f.Raw) > 0 {
		return f.Raw, nil
	}

	var v any
	switch {
	case f.Signed():
		v = map[string]string{"token": f.Token}
	case f.Legacy != nil:
		v = f.Legacy
	default:
		return nil, malformed("license file is empty")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode license file: %w", err)
	}
	return buf.Bytes(), nil
}

// Store persists the installed license. Every Load re-reads disk so a file
// replaced behind the application's back takes effect on the next read.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads and parses the license file. A missing file yields ErrNotFound.
func (s *Store) Load() (*File, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	return ParseFile(raw)
}

// Save replaces the license file atomically: the content is written and
// synced to a temporary file in the same directory, which is then renamed
// over the destination.
func (s *Store) Save(f *File) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "create temp", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()

	fail := func(op string, err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return &IOError{Op: op, Path: tmpPath, Err: err}
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "chmod", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "rename", Path: s.path, Err: err}
	}

	f.Raw = data
	return nil
}

// Remove deletes the installed license. Removing an absent file yields
// ErrNotFound.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return &IOError{Op: "remove", Path: s.path, Err: err}
	}
	return nil
}
