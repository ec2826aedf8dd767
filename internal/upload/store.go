package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

var ErrBadFilename = errors.New("upload: unusable filename")

// Store persists uploaded product images under a single directory that is
// also served statically. Filenames come from the upload, sanitized;
// a colliding name overwrites the previous file.
type Store struct {
	Dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create dir %s: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

// SanitizeFilename strips any path components and reduces the name to a
// safe character set.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if strings.Trim(out, "._") == "" {
		return ""
	}
	return out
}

func (s *Store) Save(file *multipart.FileHeader) (string, error) {
	name := SanitizeFilename(file.Filename)
	if name == "" {
		return "", ErrBadFilename
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("upload: open %s: %w", file.Filename, err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return "", fmt.Errorf("upload: create %s: %w", name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("upload: write %s: %w", name, err)
	}
	return name, nil
}

// Remove deletes a stored image. Missing files are not an error: callers
// treat removal as best-effort.
func (s *Store) Remove(name string) error {
	if name == "" {
		return nil
	}
	clean := SanitizeFilename(name)
	if clean == "" {
		return ErrBadFilename
	}
	if err := os.Remove(filepath.Join(s.Dir, clean)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
