// Package cache keeps raw provider responses for a short time so repeated
// runs inside one window do not spend API quota.
package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
)

func init() {
	gob.Register([]byte(nil))
}

// ResponseCache stores response bodies by request key. A nil or disabled
// cache never hits. Keys are hashed since request URLs carry credentials.
type ResponseCache struct {
	store   *cache.Cache
	ttl     time.Duration
	path    string
	enabled bool
}

// New creates an in-memory cache whose entries live for ttl. A zero ttl
// disables it.
func New(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		return &ResponseCache{}
	}
	return &ResponseCache{
		store:   cache.New(ttl, ttl*2),
		ttl:     ttl,
		enabled: true,
	}
}

// Open creates a cache backed by the file at path. Entries saved by an
// earlier process that have not yet expired are loaded; a missing or
// unreadable file starts empty. Save writes the cache back.
func Open(ttl time.Duration, path string) *ResponseCache {
	if ttl <= 0 {
		return &ResponseCache{}
	}
	if path == "" {
		return New(ttl)
	}

	items, err := load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Ignoring unreadable response cache", "path", path, "error", err)
	}
	return &ResponseCache{
		store:   cache.NewFrom(ttl, ttl*2, items),
		ttl:     ttl,
		path:    path,
		enabled: true,
	}
}

// Disabled returns a cache that never stores anything.
func Disabled() *ResponseCache {
	return &ResponseCache{}
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (c *ResponseCache) Get(key string) ([]byte, bool) {
	if c == nil || !c.enabled {
		return nil, false
	}
	v, ok := c.store.Get(hashKey(key))
	if !ok {
		return nil, false
	}
	body, ok := v.([]byte)
	return body, ok
}

func (c *ResponseCache) Set(key string, body []byte) {
	if c == nil || !c.enabled {
		return
	}
	c.store.SetDefault(hashKey(key), body)
}

// Enabled reports whether the cache stores responses.
func (c *ResponseCache) Enabled() bool {
	return c != nil && c.enabled
}

// Len is the number of unexpired entries.
func (c *ResponseCache) Len() int {
	if c == nil || !c.enabled {
		return 0
	}
	return len(c.store.Items())
}

// Save writes the unexpired entries to the backing file. It is a no-op for
// caches without one.
func (c *ResponseCache) Save() error {
	if c == nil || !c.enabled || c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".responses-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(c.store.Items()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode response cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write response cache: %w", err)
	}
	return os.Rename(tmp.Name(), c.path)
}

// load reads the items written by Save, dropping the expired ones.
func load(path string) (map[string]cache.Item, error) {
	items := map[string]cache.Item{}
	f, err := os.Open(path)
	if err != nil {
		return items, err
	}
	defer f.Close()

	var saved map[string]cache.Item
	if err := gob.NewDecoder(f).Decode(&saved); err != nil {
		return items, err
	}
	for k, it := range saved {
		if !it.Expired() {
			items[k] = it
		}
	}
	return items, nil
}

// DefaultPath is the response cache file under the user cache directory,
// or the temp directory when there is none.
func DefaultPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "flightsync", "responses.gob")
}
