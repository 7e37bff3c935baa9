package in_memory

import (
	"context"
	"sync"
	"time"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
)

type savedResponse struct {
	seq uint64
	r   domain.ParticipantResponse
}

// Journal keeps the event streams in memory. Only the most recent trades per
// symbol are retained.
type Journal struct {
	mu        sync.Mutex
	responses []savedResponse
	trades    map[domain.SymbolID][]domain.Trade
	keep      int
	lastResp  uint64
	lastMD    uint64
	now       func() time.Time
}

var _ port.Journal = (*Journal)(nil)

func NewJournal(keepTrades int) *Journal {
	if keepTrades <= 0 {
		keepTrades = 1000
	}
	return &Journal{
		trades: make(map[domain.SymbolID][]domain.Trade),
		keep:   keepTrades,
		now:    time.Now,
	}
}

func (j *Journal) SaveBatch(ctx context.Context, b port.JournalBatch) error {
	for _, r := range b.Responses {
		if err := j.SaveResponse(ctx, r.Seq, r.Response); err != nil {
			return err
		}
	}
	for _, u := range b.Updates {
		if err := j.SaveMarketUpdate(ctx, u.Seq, u.Update); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) SaveResponse(ctx context.Context, seq uint64, r domain.ParticipantResponse) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.responses = append(j.responses, savedResponse{seq: seq, r: r})
	if seq > j.lastResp {
		j.lastResp = seq
	}
	return nil
}

func (j *Journal) SaveMarketUpdate(ctx context.Context, seq uint64, u domain.MarketUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if seq > j.lastMD {
		j.lastMD = seq
	}
	if u.Type != domain.UpdateTrade {
		return nil
	}
	ts := append(j.trades[u.SymbolID], domain.TradeFromUpdate(seq, u, j.now()))
	if len(ts) > j.keep {
		ts = append([]domain.Trade(nil), ts[len(ts)-j.keep:]...)
	}
	j.trades[u.SymbolID] = ts
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (j *Journal) RecentTrades(ctx context.Context, symbol domain.SymbolID, limit int) ([]domain.Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ts := j.trades[symbol]
	if limit <= 0 || limit > len(ts) {
		limit = len(ts)
	}
	out := make([]domain.Trade, 0, limit)
	for i := len(ts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ts[i])
	}
	return out, nil
}

func (j *Journal) LastSequences(ctx context.Context) (uint64, uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastResp, j.lastMD, nil
}

// Responses returns the journaled responses of one participant in sequence
// order.
func (j *Journal) Responses(pid domain.ParticipantID) []domain.ParticipantResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.ParticipantResponse
	for _, s := range j.responses {
		if s.r.ParticipantID == pid {
			out = append(out, s.r)
		}
	}
	return out
}

func (j *Journal) Close(ctx context.Context) {}
