package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrTooLarge = errors.New("attachment too large")

// Store keeps uploaded attachments on local disk under a single directory.
// Stored names are generated (uuid + original extension) so client-supplied
// names never touch the filesystem.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save streams r to disk under a fresh generated name and returns the
// stored name and byte size. maxBytes > 0 caps the accepted size; an
// oversized upload is removed and rejected.
func (s *Store) Save(r io.Reader, originalName string, maxBytes int64) (string, int64, error) {
	stored := uuid.NewString() + sanitizeExt(originalName)
	dst, err := os.Create(filepath.Join(s.dir, stored))
	if err != nil {
		return "", 0, err
	}
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, stored))
		return "", 0, err
	}
	return stored, n, nil
}

func (s *Store) Remove(stored string) error {
	err := os.Remove(s.Path(stored))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Path maps a stored name to its on-disk location. The base guard keeps
// path separators smuggled into a name from escaping the upload dir.
func (s *Store) Path(stored string) string {
	return filepath.Join(s.dir, filepath.Base(stored))
}

func (s *Store) Exists(stored string) bool {
	_, err := os.Stat(s.Path(stored))
	return err == nil
}

func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 12 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	for _, r := range ext {
		if r != '.' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
