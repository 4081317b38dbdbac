// Package storage writes exported certificates and downloaded artifacts to
// a local directory. Writes are atomic: a file is either complete or absent.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type FSStore struct{ base string }

func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./certificates"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base}, nil
}

// Dir is the store's base directory.
func (s *FSStore) Dir() string { return s.base }

// Save writes data under name and returns the final path.
func (s *FSStore) Save(name string, data []byte) (string, error) {
	return s.Put(name, bytes.NewReader(data))
}

// Put copies r into name.
func (s *FSStore) Put(name string, r io.Reader) (string, error) {
	return s.WriteWith(name, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// WriteWith streams write's output into a temp file next to the target and
// renames it into place once write and the flush succeeded.
func (s *FSStore) WriteWith(name string, write func(w io.Writer) error) (string, error) {
	dst, err := s.path(name)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.base, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", err
	}
	committed = true
	return dst, nil
}

// path keeps every file directly inside the base directory.
func (s *FSStore) path(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "." || base == "/" {
		return "", errors.New("empty file name")
	}
	if strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("hidden file name %q", name)
	}
	return filepath.Join(s.base, base), nil
}
