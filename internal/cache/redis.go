// Package cache provides a Redis-backed query-result cache. Caching is
// best-effort: a cache failure degrades to a live retrieval, never to a
// query failure.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

// staleFactor extends the hard TTL so an entry whose soft TTL has
// elapsed can still be served, marked stale, while a refresh runs
const staleFactor = 3

type cacheEntry struct {
	Result   models.RetrievalResult `json:"result"`
	StoredAt time.Time              `json:"stored_at"`
}

// QueryCache caches retrieval results keyed by the normalized query
// text
type QueryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewQueryCache connects to Redis and verifies the connection
func NewQueryCache(ctx context.Context, cfg config.CacheConfig) (*QueryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     50,
		MinIdleConns: 5,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		client: client,
		prefix: cfg.Prefix,
		ttl:    ttl,
	}, nil
}

// Get returns the cached result for the query, or found=false on a
// miss. A hit past its soft TTL is returned with Stale set so callers
// can surface it while recomputing.
func (qc *QueryCache) Get(ctx context.Context, query string) (*models.RetrievalResult, bool, error) {
	data, err := qc.client.Get(ctx, qc.key(query)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached result: %w", err)
	}

	if time.Since(entry.StoredAt) > qc.ttl {
		entry.Result.Context.Stale = true
	}
	return &entry.Result, true, nil
}

// Set stores a retrieval result. Partial results are not cached; they
// reflect a transient backend failure, not the corpus.
func (qc *QueryCache) Set(ctx context.Context, query string, result *models.RetrievalResult) error {
	if result == nil || result.Partial {
		return nil
	}
	data, err := json.Marshal(cacheEntry{Result: *result, StoredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := qc.client.Set(ctx, qc.key(query), data, qc.ttl*staleFactor).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached result for one query
func (qc *QueryCache) Invalidate(ctx context.Context, query string) error {
	return qc.client.Del(ctx, qc.key(query)).Err()
}

// Flush drops every cached query result under this cache's prefix.
// Called after a graph build so answers reflect the new corpus.
func (qc *QueryCache) Flush(ctx context.Context) error {
	iter := qc.client.Scan(ctx, 0, qc.prefix+":query:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := qc.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Ping reports cache liveness
func (qc *QueryCache) Ping(ctx context.Context) error {
	return qc.client.Ping(ctx).Err()
}

// Close releases the connection pool
func (qc *QueryCache) Close() error {
	return qc.client.Close()
}

func (qc *QueryCache) key(query string) string {
	sum := sha256.Sum256([]byte(query))
	return qc.prefix + ":query:" + hex.EncodeToString(sum[:16])
}
