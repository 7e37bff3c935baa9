package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
)

type Cache struct {
	mu    sync.Mutex
	store map[string]*domain.BookSnapshot
}

var _ port.DepthCache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{store: make(map[string]*domain.BookSnapshot)}
}

func (c *Cache) SetDepth(ctx context.Context, symbol string, snap *domain.BookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[symbol] = snap.DeepCopy()
	return nil
}

func (c *Cache) GetDepth(ctx context.Context, symbol string) (*domain.BookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.store[symbol]
	if !ok {
		return nil, nil
	}
	return snap.DeepCopy(), nil
}

func (c *Cache) Invalidate(ctx context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, symbol)
	return nil
}
