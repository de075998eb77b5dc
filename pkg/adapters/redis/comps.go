package redis

import (
	"context"
	"fmt"

	"github.com/aretw0/tradeflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// CompsIndex implements ports.CompsIndex on a capped Redis list, newest first.
// Ranking happens client side over the retained window.
type CompsIndex struct {
	client *backend.Client
	key    string
	limit  int64
}

// NewCompsIndex creates an index keeping at most limit entries under prefix+"comps".
func NewCompsIndex(client *backend.Client, prefix string, limit int) *CompsIndex {
	if limit <= 0 {
		limit = 500
	}
	return &CompsIndex{client: client, key: prefix + "comps", limit: int64(limit)}
}

// Add pushes a trade text. The id is not stored; texts are ranked, not looked up.
func (c *CompsIndex) Add(ctx context.Context, id, text string) error {
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, c.key, text)
	pipe.LTrim(ctx, c.key, 0, c.limit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index comp %s: %w", id, err)
	}
	return nil
}

// Similar returns up to k indexed texts ranked by overlap with query.
func (c *CompsIndex) Similar(ctx context.Context, query string, k int) ([]string, error) {
	texts, err := c.client.LRange(ctx, c.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read comps: %w", err)
	}
	return domain.RankComparable(query, texts, k), nil
}
