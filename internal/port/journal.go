package port

import (
	"context"

	"github.com/olyamironova/matching-engine/internal/domain"
)

type SequencedResponse struct {
	Seq      uint64
	Response domain.ParticipantResponse
}

type SequencedUpdate struct {
	Seq    uint64
	Update domain.MarketUpdate
}

// JournalBatch is a group of sequenced events written together.
type JournalBatch struct {
	Responses []SequencedResponse
	Updates   []SequencedUpdate
}

// Journal archives the engine's outbound event streams. Each stream carries
// its own sequence numbers.
type Journal interface {
	// SaveBatch writes every event of b or none of them.
	SaveBatch(ctx context.Context, b JournalBatch) error
	RecentTrades(ctx context.Context, symbol domain.SymbolID, limit int) ([]domain.Trade, error)
	// LastSequences returns the highest stored sequence of each stream.
	LastSequences(ctx context.Context) (responses, updates uint64, err error)
	Close(ctx context.Context)
}

// Outbox holds encoded events until the relay has published them.
type Outbox interface {
	Put(kind string, seq uint64, key, payload []byte) error
	LastSeq(kind string) (uint64, error)
}
