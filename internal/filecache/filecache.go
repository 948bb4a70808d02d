// Package filecache is an expiring key/value cache persisted as one JSON
// document per key inside a single directory.
package filecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"portfolio/internal/apperr"
)

// DefaultTTL is how long an entry stays valid after it was written.
const DefaultTTL = 24 * time.Hour

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrInvalidKey is returned for keys outside [A-Za-z0-9_-].
var ErrInvalidKey = apperr.Validation("invalid identifier")

// ValidKey reports whether key may be used as a cache key.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// entry is the on-disk shape of a cached value.
type entry struct {
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
	Data      json.RawMessage `json:"data"`
}

// Cache reads and writes entries under dir. It is safe for concurrent use:
// every write replaces the whole file with a rename, so readers see either
// the old or the new entry. Concurrent writers for the same key race and the
// last rename wins.
type Cache struct {
	dir    string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used to report corrupt entries.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New constructs a Cache rooted at dir. A non-positive ttl selects DefaultTTL.
// The directory is created on first write.
func New(dir string, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		dir:    filepath.Clean(dir),
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Path maps a validated key to its file inside the cache directory.
func (c *Cache) Path(key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("cache key %q: %w", key, ErrInvalidKey)
	}
	return filepath.Join(c.dir, key+".json"), nil
}

// Get decodes the payload stored under key into dst and reports whether a
// valid entry was found. Missing, unreadable, malformed and expired entries
// are all reported as a miss; the only error is an invalid key.
func (c *Cache) Get(key string, dst any) (bool, error) {
	path, err := c.Path(key)
	if err != nil {
		return false, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("cache entry unreadable", "key", key, "error", err)
		}
		return false, nil
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || len(e.Data) == 0 {
		c.logger.Warn("cache entry malformed", "key", key, "error", err)
		return false, nil
	}

	age := c.now().Sub(time.UnixMilli(e.Timestamp))
	if age >= c.ttl {
		c.logger.Debug("cache entry expired", "key", key, "age", age)
		return false, nil
	}

	if err := json.Unmarshal(e.Data, dst); err != nil {
		c.logger.Warn("cache payload does not decode", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// Put stores value under key stamped with the current time, replacing any
// previous entry.
func (c *Cache) Put(key string, value any) error {
	path, err := c.Path(key)
	if err != nil {
		return err
	}
	if err := c.ensureDir(); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache payload %q: %w", key, err)
	}
	raw, err := json.MarshalIndent(entry{Timestamp: c.now().UnixMilli(), Data: data}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}

	return WriteFileAtomic(path, raw)
}

func (c *Cache) ensureDir() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it into
// place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
