package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/rlmcore/docstore"
	"github.com/smallnest/rlmcore/rlmlog"
)

// SearchFunc is the underlying Store.Search call this cache wraps.
type SearchFunc func(ctx context.Context, docID, needle string) ([]docstore.SearchHit, error)

// Cache memoizes Search results in Redis.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    rlmlog.Logger
}

// Options configures New.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // default "rlmcore:"
	TTL      time.Duration // default 5 minutes
	Logger   rlmlog.Logger
}

// New creates a Cache. It does not itself verify connectivity; a
// misconfigured or unreachable Redis degrades to cache misses, logged at
// Warn, never a hard failure for Search.
func New(opts Options) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "rlmcore:"
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = rlmlog.New("rediscache: ", rlmlog.LevelInfo)
	}

	return &Cache{client: client, prefix: prefix, ttl: ttl, log: logger}
}

func (c *Cache) key(docID, needle string) string {
	return fmt.Sprintf("%ssearch:%s:%s", c.prefix, docID, needle)
}

// Search returns cached hits for (docID, needle) if present, otherwise
// calls fallback, caches its result, and returns it.
func (c *Cache) Search(ctx context.Context, docID, needle string, fallback SearchFunc) ([]docstore.SearchHit, error) {
	key := c.key(docID, needle)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var hits []docstore.SearchHit
		if jsonErr := json.Unmarshal(raw, &hits); jsonErr == nil {
			return hits, nil
		}
	} else if err != redis.Nil {
		c.log.Warn("rediscache: get %s: %v", key, err)
	}

	hits, err := fallback(ctx, docID, needle)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(hits); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn("rediscache: set %s: %v", key, err)
		}
	}
	return hits, nil
}

// InvalidateDocument drops every cached search result for docID. Called
// on re-ingest so a superseded Document's stale hits never outlive it.
func (c *Cache) InvalidateDocument(ctx context.Context, docID string) error {
	pattern := c.key(docID, "*")
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("rediscache: scanning keys for %s: %w", docID, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rediscache: deleting keys for %s: %w", docID, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
