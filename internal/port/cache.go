package port

import (
	"context"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// DepthCache stores the latest depth snapshot per symbol name. GetDepth
// returns nil, nil on a miss.
type DepthCache interface {
	SetDepth(ctx context.Context, symbol string, snap *domain.BookSnapshot) error
	GetDepth(ctx context.Context, symbol string) (*domain.BookSnapshot, error)
	Invalidate(ctx context.Context, symbol string) error
}
