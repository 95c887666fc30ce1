package source

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Cache stores small JSON payloads (tab listings) on disk with a TTL.
// Rows are never cached: every run must see the sheet as it is now.
type Cache struct {
	dir string
	ttl time.Duration
	mu  sync.RWMutex
}

type cacheEntry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewCache returns a cache under dir. A zero ttl disables it.
func NewCache(dir string, ttl time.Duration) *Cache {
	if dir == "" {
		dir = filepath.Join("cache", "tabs")
	}
	return &Cache{dir: dir, ttl: ttl}
}

// Get decodes the entry for key into v. Expired entries are removed.
func (c *Cache) Get(key string, v any) bool {
	if c == nil || c.ttl <= 0 {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := c.path(key)
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > c.ttl {
		os.Remove(p)
		return false
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		return false
	}
	return json.Unmarshal(entry.Data, v) == nil
}

// Set stores v under key.
func (c *Cache) Set(key string, v any) error {
	if c == nil || c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	entry, err := json.Marshal(cacheEntry{Key: key, Data: data, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path(key), entry, 0o644)
}

// CleanupExpired removes every expired entry.
func (c *Cache) CleanupExpired() error {
	if c == nil || c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > c.ttl {
			os.Remove(filepath.Join(c.dir, e.Name()))
		}
	}
	return nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%x.json", md5.Sum([]byte(key))))
}

// MakeKey joins key parts.
func MakeKey(parts ...string) string {
	return strings.Join(parts, "|")
}
