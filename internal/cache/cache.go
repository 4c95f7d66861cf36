// Package cache is a small bbolt-backed key/value cache of JSON values.
// Cache failures are logged and treated as misses; they never fail a run.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
)

type envelope[T any] struct {
	StoredAt time.Time `json:"stored_at"`
	Value    T         `json:"value"`
}

// DataCache stores values of type T in a single bbolt bucket.
type DataCache[T any] struct {
	db     *bbolt.DB
	bucket []byte
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a DataCache.
type Option func(*options)

type options struct {
	ttl    time.Duration
	logger zerolog.Logger
}

// WithTTL expires entries older than d. Zero keeps entries forever.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithLogger sets the logger for cache diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New opens (or creates) the cache file at path and ensures bucket exists.
func New[T any](bucket, path string, opts ...Option) (*DataCache[T], error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With().Str("bucket", bucket).Logger()

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache bucket %q: %w", bucket, err)
	}

	logger.Debug().Str("path", path).Msg("cache initialized")
	return &DataCache[T]{
		db:     db,
		bucket: []byte(bucket),
		ttl:    o.ttl,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close releases the underlying database file.
func (c *DataCache[T]) Close() error {
	return c.db.Close()
}

// Lookup returns the cached value for key, or nil on a miss, an expired
// entry or a read error.
func (c *DataCache[T]) Lookup(key string) *T {
	var entry *envelope[T]
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(c.bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		entry = new(envelope[T])
		if err := json.Unmarshal(data, entry); err != nil {
			return fmt.Errorf("parsing cache data: %w", err)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil
	}
	if entry == nil {
		c.logger.Debug().Str("key", key).Msg("cache miss")
		return nil
	}
	if c.ttl > 0 && c.now().Sub(entry.StoredAt) > c.ttl {
		c.logger.Debug().Str("key", key).Time("stored_at", entry.StoredAt).Msg("cache entry expired")
		return nil
	}

	c.logger.Debug().Str("key", key).Msg("cache hit")
	return &entry.Value
}

// Update stores value under key, replacing any previous entry.
func (c *DataCache[T]) Update(key string, value T) {
	data, err := json.Marshal(envelope[T]{StoredAt: c.now().UTC(), Value: value})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache update failed: serializing value")
		return
	}

	if err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(c.bucket).Put([]byte(key), data)
	}); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache update failed")
		return
	}
	c.logger.Debug().Str("key", key).Msg("cache updated")
}

// Len reports the number of stored entries, expired ones included.
func (c *DataCache[T]) Len() int {
	n := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(c.bucket).Stats().KeyN
		return nil
	})
	return n
}
