// Package cache stores fetched API pages on disk so a retried collection does
// not re-request pages it already holds.
package cache

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// PageCache is a file-based cache of raw response bodies keyed by request URL.
// A disabled cache never hits and silently drops writes.
type PageCache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// entry is the on-disk form of one cached page.
type entry struct {
	URL       string          `json:"url"`
	Digest    string          `json:"digest"`
	FetchedAt time.Time       `json:"fetched_at"`
	Body      json.RawMessage `json:"body"`
}

// New creates a page cache rooted at dir.
func New(dir string, ttl time.Duration, enabled bool) (*PageCache, error) {
	if !enabled {
		return &PageCache{enabled: false, now: time.Now}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &PageCache{dir: dir, ttl: ttl, enabled: true, now: time.Now}, nil
}

// Disabled returns a cache that never stores anything.
func Disabled() *PageCache {
	return &PageCache{now: time.Now}
}

// Digest returns the hex BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached body for url if present, intact and younger than the TTL.
func (c *PageCache) Get(url string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	path := c.keyPath(url)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.URL != url {
		return nil, false
	}
	if Digest(e.Body) != e.Digest {
		os.Remove(path)
		return nil, false
	}
	if c.now().Sub(e.FetchedAt) > c.ttl {
		os.Remove(path)
		return nil, false
	}
	return e.Body, true
}

// Put stores body under url. body must be valid JSON.
func (c *PageCache) Put(url string, body []byte) error {
	if !c.enabled {
		return nil
	}
	// Entries are stored compacted, so the digest is taken over the compact form.
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return fmt.Errorf("cache: body is not valid JSON: %w", err)
	}

	raw, err := json.Marshal(entry{
		URL:       url,
		Digest:    Digest(compact.Bytes()),
		FetchedAt: c.now(),
		Body:      compact.Bytes(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(c.keyPath(url), raw, 0600)
}

// Clear removes all cached pages.
func (c *PageCache) Clear() error {
	if !c.enabled {
		return nil
	}
	return os.RemoveAll(c.dir)
}

func (c *PageCache) keyPath(url string) string {
	return filepath.Join(c.dir, Digest([]byte(url))+".json")
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries   int   `json:"entries"`
	TotalSize int64 `json:"total_size"`
}

// GetStats walks the cache directory.
func (c *PageCache) GetStats() (*Stats, error) {
	if !c.enabled {
		return &Stats{}, nil
	}

	stats := &Stats{}
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.Entries++
		stats.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
