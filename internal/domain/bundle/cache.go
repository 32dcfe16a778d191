package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vitrinehq/vitrine/internal/shared/utils"
)

// Cache stores verified bundles on disk, addressed by digest. Entries are
// re-verified on read, so a corrupted file behaves like a miss.
type Cache struct {
	dir string
}

// NewCache opens a cache rooted at dir, creating it if needed
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Get returns the cached payload for a digest, or ok=false on miss
func (c *Cache) Get(digest utils.Digest) ([]byte, bool) {
	data, err := os.ReadFile(c.path(digest))
	if err != nil {
		return nil, false
	}
	if !digest.Verify(data) {
		// Corrupted entry; drop it
		_ = os.Remove(c.path(digest))
		return nil, false
	}
	return data, true
}

// Put stores a payload under its digest. The write is atomic so concurrent
// readers never observe a partial entry.
func (c *Cache) Put(digest utils.Digest, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, "bundle-*")
	if err != nil {
		return fmt.Errorf("failed to stage bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path(digest)); err != nil {
		return fmt.Errorf("failed to commit bundle: %w", err)
	}
	return nil
}

func (c *Cache) path(digest utils.Digest) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.js", digest.Algorithm, digest.Hex))
}
