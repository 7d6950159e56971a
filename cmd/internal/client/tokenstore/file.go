package tokenstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fileMode fs.FileMode = 0o600

// LoadFile returns a Memory store seeded from path. A missing file yields an
// empty store.
func LoadFile(path string) (*Memory, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("tokenstore: empty path")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewMemory(), nil
		}
		return nil, fmt.Errorf("tokenstore: read %s: %w", path, err)
	}
	return NewMemoryWith(strings.TrimSpace(string(b))), nil
}

// SaveFile writes the current token of src to path with owner-only
// permissions. When src holds no token the file is removed.
func SaveFile(path string, src Source) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("tokenstore: empty path")
	}

	tok, ok := src.Get()
	if !ok {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("tokenstore: remove %s: %w", path, err)
		}
		return nil
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("tokenstore: mkdir %s: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(tok+"\n"), fileMode); err != nil {
		return fmt.Errorf("tokenstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("tokenstore: rename %s: %w", path, err)
	}
	return nil
}
