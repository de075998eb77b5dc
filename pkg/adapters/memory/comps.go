package memory

import (
	"context"
	"sync"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// CompsIndex implements ports.CompsIndex over an in-process list of trade texts.
type CompsIndex struct {
	mu      sync.RWMutex
	entries []compEntry // newest last
	limit   int
}

type compEntry struct {
	id   string
	text string
}

// NewCompsIndex creates an index that keeps at most limit entries (0 = unbounded).
func NewCompsIndex(limit int) *CompsIndex {
	return &CompsIndex{limit: limit}
}

// Add indexes a trade text. Re-adding an id replaces its text.
func (c *CompsIndex) Add(ctx context.Context, id, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.id == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	c.entries = append(c.entries, compEntry{id: id, text: text})
	if c.limit > 0 && len(c.entries) > c.limit {
		c.entries = c.entries[len(c.entries)-c.limit:]
	}
	return nil
}

// Similar returns up to k indexed texts ranked by overlap with query.
func (c *CompsIndex) Similar(ctx context.Context, query string, k int) ([]string, error) {
	c.mu.RLock()
	candidates := make([]string, 0, len(c.entries))
	for i := len(c.entries) - 1; i >= 0; i-- {
		candidates = append(candidates, c.entries[i].text)
	}
	c.mu.RUnlock()

	return domain.RankComparable(query, candidates, k), nil
}
