package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MetadataCache is a TTL'd read-through cache over the metadata_cache table.
//
// Get returns the cached value when a live row exists, otherwise runs
// compute, stores the JSON-encoded result, and returns it. Values survive
// process restarts, which is what makes repeated ingests cheap.
type MetadataCache struct {
	db  *sql.DB
	ttl time.Duration

	mu sync.Mutex

	hits   int64
	misses int64

	now func() time.Time // test seam
}

// NewMetadataCache creates a cache with the given entry lifetime.
func NewMetadataCache(db *sql.DB, ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MetadataCache{db: db, ttl: ttl, now: time.Now}
}

// Get implements the pipeline Cache interface. The computed value round-trips
// through JSON, so cached reads return map/slice/primitive shapes rather than
// the original concrete type.
func (c *MetadataCache) Get(key string, compute func() (any, error)) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var raw string
	err := c.db.QueryRow(
		`SELECT value FROM metadata_cache WHERE key = ? AND expires_at > ?`,
		key, c.now(),
	).Scan(&raw)

	switch {
	case err == nil:
		c.hits++
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("failed to decode cached value for %s: %w", key, err)
		}
		return value, nil
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	c.misses++
	value, err := compute()
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value for %s: %w", key, err)
	}

	_, err = c.db.Exec(
		`INSERT INTO metadata_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(encoded), c.now().Add(c.ttl),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store cache entry: %w", err)
	}

	return value, nil
}

// Lookup reports whether a live entry exists for key, without computing
// anything on a miss. Batch callers use this to split ids into cached and
// to-fetch sets before one grouped remote request.
func (c *MetadataCache) Lookup(key string) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var raw string
	err := c.db.QueryRow(
		`SELECT value FROM metadata_cache WHERE key = ? AND expires_at > ?`,
		key, c.now(),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		c.misses++
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	c.hits++
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached value for %s: %w", key, err)
	}
	return value, true, nil
}

// Store writes a value for key with the configured TTL.
func (c *MetadataCache) Store(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}

	_, err = c.db.Exec(
		`INSERT INTO metadata_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(encoded), c.now().Add(c.ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Invalidate removes a single entry.
func (c *MetadataCache) Invalidate(key string) error {
	_, err := c.db.Exec(`DELETE FROM metadata_cache WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}

// Prune deletes expired rows and returns how many were removed.
func (c *MetadataCache) Prune() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.Exec(`DELETE FROM metadata_cache WHERE expires_at <= ?`, c.now())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(removed), nil
}

// Stats reports hit and miss counts since construction.
func (c *MetadataCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
