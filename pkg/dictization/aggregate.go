package dictization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"datacatalog/pkg/cache"
	"datacatalog/pkg/store"

	"github.com/charmbracelet/log"
)

const countsCacheKey = "group_dataset_counts"

// DefaultCountsTTL bounds how stale cached dataset counts may get.
const DefaultCountsTTL = 5 * time.Minute

// GetGroupDatasetCounts maps each group id to its number of distinct
// active packages. Groups with none are absent; read with a zero default.
func GetGroupDatasetCounts(ctx context.Context, sess *store.Session) (map[string]int, error) {
	counts, err := sess.GroupDatasetCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute group dataset counts: %w", err)
	}
	return counts, nil
}

// CountsCache memoises GetGroupDatasetCounts. Cache failures are logged and
// fall back to the database.
type CountsCache struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewCountsCache(c cache.Cache, ttl time.Duration) *CountsCache {
	if c == nil {
		c = cache.NewNullCache()
	}
	if ttl <= 0 {
		ttl = DefaultCountsTTL
	}
	return &CountsCache{cache: c, ttl: ttl}
}

func (c *CountsCache) Get(ctx context.Context, sess *store.Session) (map[string]int, error) {
	data, err := cache.Fetch(ctx, c.cache, countsCacheKey)
	switch {
	case err == nil:
		var counts map[string]int
		if err := json.Unmarshal(data, &counts); err == nil {
			return counts, nil
		}
		log.Warn("Discarding undecodable dataset counts entry")
	case !errors.Is(err, cache.ErrCacheMiss):
		log.Warn("Dataset counts cache read failed", "err", err)
	}

	counts, err := GetGroupDatasetCounts(ctx, sess)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(counts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset counts: %w", err)
	}
	if err := c.cache.Set(ctx, countsCacheKey, encoded, c.ttl); err != nil {
		log.Warn("Dataset counts cache write failed", "err", err)
	}
	return counts, nil
}

// Invalidate drops the cached counts so the next Get recomputes them.
func (c *CountsCache) Invalidate(ctx context.Context) error {
	if err := c.cache.Delete(ctx, countsCacheKey); err != nil {
		return fmt.Errorf("failed to invalidate dataset counts: %w", err)
	}
	return nil
}
