// Package photos is a filename-addressed blob store for record photo
// attachments, backed by a local directory (typically on the NAS share).
package photos

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes uploaded photos under dir and serves them by name.
type Store struct {
	dir string
}

// NewStore prepares the photo directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir exposes the storage directory for static serving.
func (s *Store) Dir() string { return s.dir }

// Upload stores the photo under a fresh uuid name, keeping the original
// extension, and returns the serving URL.
func (s *Store) Upload(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		return "", fmt.Errorf("unsupported photo type %q", ext)
	}
	name := uuid.NewString() + ext
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write photo: %w", err)
	}
	return "/photos/" + name, nil
}

// Delete removes a photo by its serving URL or bare name. Reports whether a
// file was actually removed.
func (s *Store) Delete(ref string) bool {
	name := filepath.Base(strings.TrimPrefix(ref, "/photos/"))
	if name == "" || name == "." || name == "/" {
		return false
	}
	return os.Remove(filepath.Join(s.dir, name)) == nil
}
