package matchsvc

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "doc:"

// ResultCache caches per-query match outcomes in Redis, collapsing
// concurrent identical queries through singleflight. Keys are scoped to the
// document so deleting a document invalidates exactly its entries.
type ResultCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewResultCache(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// GetOrCompute returns the cached outcome for (docID, q) or computes, caches,
// and returns it. The bool reports whether the value came from cache.
func (c *ResultCache) GetOrCompute(ctx context.Context, docID string, q match.Query, computeFn func() (*QueryResult, error)) (*QueryResult, bool, error) {
	if c == nil || c.client == nil {
		result, err := computeFn()
		return result, false, err
	}

	key := c.buildKey(docID, q)
	if result, ok := c.get(ctx, key); ok {
		return result, true, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*QueryResult), false, nil
}

// Invalidate removes all cached match results for a document.
func (c *ResultCache) Invalidate(ctx context.Context, docID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	deleted, err := c.client.FlushByPattern(ctx, cacheKeyPrefix+docID+":match:*")
	if err != nil {
		return fmt.Errorf("invalidating match cache: %w", err)
	}
	c.logger.Info("match cache invalidated", "doc_id", docID, "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) get(ctx context.Context, key string) (*QueryResult, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		return nil, false
	}
	var result QueryResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

func (c *ResultCache) set(ctx context.Context, key string, result *QueryResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// buildKey hashes the target with its sorted context set so logically equal
// queries share an entry regardless of context order.
func (c *ResultCache) buildKey(docID string, q match.Query) string {
	ctxWords := make([]string, len(q.Context))
	copy(ctxWords, q.Context)
	sort.Strings(ctxWords)
	raw := q.Target + "|" + strings.Join(ctxWords, ",")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:match:%x", cacheKeyPrefix, docID, hash[:16])
}
