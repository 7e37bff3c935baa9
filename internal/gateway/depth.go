package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// depthState tracks, per symbol, how many changes the gateway has seen and
// which of them the cached snapshot reflects. A symbol is dirty while the
// two differ.
type depthState struct {
	mu      sync.Mutex
	version [domain.MaxSymbols]uint64
	cached  [domain.MaxSymbols]uint64
	hasSnap [domain.MaxSymbols]bool
}

func (d *depthState) touch(s domain.SymbolID) {
	if s >= domain.MaxSymbols {
		return
	}
	d.mu.Lock()
	d.version[s]++
	d.mu.Unlock()
}

func (d *depthState) current(s domain.SymbolID) (version uint64, fresh bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version[s], d.hasSnap[s] && d.cached[s] == d.version[s]
}

func (d *depthState) stored(s domain.SymbolID, version uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasSnap[s] || version > d.cached[s] {
		d.cached[s] = version
		d.hasSnap[s] = true
	}
}

func (d *depthState) dirty(symbols []domain.SymbolID) []domain.SymbolID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.SymbolID
	for _, s := range symbols {
		if !d.hasSnap[s] || d.cached[s] != d.version[s] {
			out = append(out, s)
		}
	}
	return out
}

// Depth returns up to n levels per side (n <= 0 means the configured
// depth). A cached snapshot is served only when no change has been seen
// since it was taken; otherwise the book is queried and the cache refreshed.
func (g *Gateway) Depth(ctx context.Context, symbol domain.SymbolID, n int) (*domain.BookSnapshot, error) {
	if _, ok := g.symbolName(symbol); !ok {
		return nil, domain.ErrUnknownSymbol
	}
	if n <= 0 || n > g.cfg.DepthLevels {
		n = g.cfg.DepthLevels
	}
	if _, fresh := g.depth.current(symbol); fresh {
		snap, err := g.deps.Cache.GetDepth(ctx, g.deps.Markets.Name(symbol))
		if err != nil {
			g.log.Warn("depth_cache_read_failed", zap.Uint32("symbol", uint32(symbol)), zap.Error(err))
		}
		if snap != nil {
			return truncate(snap, n), nil
		}
	}
	snap, err := g.loadDepth(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return truncate(snap, n), nil
}

func (g *Gateway) loadDepth(ctx context.Context, symbol domain.SymbolID) (*domain.BookSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	version, _ := g.depth.current(symbol)
	snap, err := g.deps.Books.Depth(ctx, symbol, g.cfg.DepthLevels)
	if err != nil {
		return nil, err
	}
	snap.Timestamp = g.now()
	if err := g.deps.Cache.SetDepth(ctx, g.deps.Markets.Name(symbol), &snap); err != nil {
		g.log.Warn("depth_cache_write_failed", zap.Uint32("symbol", uint32(symbol)), zap.Error(err))
	} else {
		g.depth.stored(symbol, version)
	}
	return &snap, nil
}

func (g *Gateway) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.DepthRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stopped:
			return
		case <-ticker.C:
			for _, s := range g.depth.dirty(g.deps.Markets.IDs()) {
				if _, err := g.loadDepth(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
					g.log.Debug("depth_refresh_failed", zap.Uint32("symbol", uint32(s)), zap.Error(err))
				}
			}
		}
	}
}

func (g *Gateway) symbolName(s domain.SymbolID) (string, bool) {
	for _, id := range g.deps.Markets.IDs() {
		if id == s {
			return g.deps.Markets.Name(s), true
		}
	}
	return "", false
}

func truncate(snap *domain.BookSnapshot, n int) *domain.BookSnapshot {
	out := snap.DeepCopy()
	if len(out.Bids) > n {
		out.Bids = out.Bids[:n]
	}
	if len(out.Asks) > n {
		out.Asks = out.Asks[:n]
	}
	return out
}
