// Package artifact persists run records: on the local filesystem and,
// optionally, mirrored to an S3-compatible object store.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Store writes an immutable blob under a slash-separated key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
}

// FS stores blobs below a root directory.
type FS struct {
	Root string
}

// NewFS returns a filesystem store rooted at root.
func NewFS(root string) *FS {
	return &FS{Root: root}
}

// Path returns the file path of key.
func (s *FS) Path(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

// Put writes data to <root>/<key>, creating parent directories.
func (s *FS) Put(_ context.Context, key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	p := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", key, err)
	}
	return nil
}

// Mirrored writes to Primary and then best-effort to every mirror. Mirror
// failures are logged, never returned.
type Mirrored struct {
	Primary Store
	Mirrors []Store
}

// Put implements Store.
func (m *Mirrored) Put(ctx context.Context, key string, data []byte) error {
	if err := m.Primary.Put(ctx, key, data); err != nil {
		return err
	}
	for _, mirror := range m.Mirrors {
		if err := mirror.Put(ctx, key, data); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("artifact mirror failed")
		}
	}
	return nil
}

func validKey(key string) error {
	if key == "" {
		return errors.New("artifact key is empty")
	}
	clean := path.Clean(key)
	if clean != key || strings.HasPrefix(clean, "/") || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	return nil
}
