package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/labstack/gommon/log"
)

// Cached keeps a copy of a remote payload on disk so a restart does not
// refetch it. Entries are keyed by the xxhash64 of the source URL. The
// loader calls Invalidate when a payload fails to decode, so the next
// Reload fetches a fresh copy.
type Cached struct {
	src  Source
	path string
}

// NewCached wraps src with a cache file under dir.
func NewCached(src Source, dir string) (*Cached, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	name := strconv.FormatUint(xxhash.Sum64String(src.URL()), 16) + ".bin"
	return &Cached{src: src, path: filepath.Join(dir, name)}, nil
}

func (c *Cached) URL() string { return c.src.URL() }

// Path is the cache file location.
func (c *Cached) Path() string { return c.path }

func (c *Cached) Fetch(ctx context.Context) ([]byte, error) {
	if data, err := os.ReadFile(c.path); err == nil && len(data) > 0 {
		log.Infof("source: %s served from cache %s", c.src.URL(), c.path)
		return data, nil
	}

	data, err := c.src.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	// Write to a temp file and rename so a crash never leaves a partial entry.
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Warnf("source: cannot write cache %s: %v", tmp, err)
		return data, nil
	}
	if err := os.Rename(tmp, c.path); err != nil {
		log.Warnf("source: cannot publish cache %s: %v", c.path, err)
		os.Remove(tmp)
	}
	return data, nil
}

// Invalidate removes the cache entry. A missing entry is not an error.
func (c *Cached) Invalidate() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}
