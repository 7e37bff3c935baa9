package pg

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
)

var _ port.Journal = (*Journal)(nil)

// Journal appends the engine's event streams to Postgres. Sentinel values are
// stored as NULL.
type Journal struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewJournal(ctx context.Context, dsn string) (*Journal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Journal{pool: pool}, nil
}

func (j *Journal) Close(ctx context.Context) {
	if j.pool != nil {
		j.pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS participant_responses (
  seq                  BIGINT PRIMARY KEY,
  type                 TEXT NOT NULL,
  participant_id       BIGINT NOT NULL,
  symbol_id            BIGINT NOT NULL,
  participant_order_id BIGINT,
  internal_order_id    BIGINT,
  side                 TEXT NOT NULL,
  price                BIGINT,
  executed_qty         BIGINT NOT NULL,
  remaining_qty        BIGINT NOT NULL,
  created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS market_updates (
  seq        BIGINT PRIMARY KEY,
  type       TEXT NOT NULL,
  order_id   BIGINT NOT NULL,
  symbol_id  BIGINT NOT NULL,
  side       TEXT NOT NULL,
  price      BIGINT,
  qty        BIGINT NOT NULL,
  priority   BIGINT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS market_updates_trades_idx
  ON market_updates (symbol_id, seq DESC) WHERE type = 'TRADE'`,
}

// EnsureSchema creates the journal tables in a single transaction.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	return withTx(ctx, j.pool, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("pg: ensure schema: %w", err)
			}
		}
		return nil
	})
}

// SaveBatch writes both streams of a batch in one transaction.
func (j *Journal) SaveBatch(ctx context.Context, b port.JournalBatch) error {
	if len(b.Responses) == 0 && len(b.Updates) == 0 {
		return nil
	}
	return withTx(ctx, j.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range b.Responses {
			batch.Queue(insertResponse, responseArgs(r.Seq, r.Response)...)
		}
		for _, u := range b.Updates {
			batch.Queue(insertUpdate, updateArgs(u.Seq, u.Update)...)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// RecentTrades returns up to limit trades for symbol, newest first.
func (j *Journal) RecentTrades(ctx context.Context, symbol domain.SymbolID, limit int) ([]domain.Trade, error) {
	rows, err := j.pool.Query(ctx, `
SELECT seq, order_id, side, price, qty, priority, created_at
FROM market_updates
WHERE symbol_id = $1 AND type = 'TRADE'
ORDER BY seq DESC
LIMIT $2
`, int64(symbol), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Trade
	for rows.Next() {
		var (
			seq, orderID, qty int64
			side              string
			price, priority   *int64
			createdAt         time.Time
		)
		if err := rows.Scan(&seq, &orderID, &side, &price, &qty, &priority, &createdAt); err != nil {
			return nil, err
		}
		s, _ := domain.ParseSide(side)
		res = append(res, domain.Trade{
			Seq:             uint64(seq),
			Symbol:          symbol,
			RestingOrderID:  domain.OrderID(orderID),
			RestingSide:     s,
			Price:           domain.Price(fromNullable(price, uint64(domain.InvalidPrice))),
			Quantity:        domain.Quantity(qty),
			RestingPriority: domain.Priority(fromNullable(priority, uint64(domain.InvalidPriority))),
			Timestamp:       createdAt,
		})
	}
	return res, rows.Err()
}

func (j *Journal) LastSequences(ctx context.Context) (uint64, uint64, error) {
	var resp, md int64
	err := j.pool.QueryRow(ctx, `
SELECT
  COALESCE((SELECT MAX(seq) FROM participant_responses), 0),
  COALESCE((SELECT MAX(seq) FROM market_updates), 0)
`).Scan(&resp, &md)
	if err != nil {
		return 0, 0, err
	}
	return uint64(resp), uint64(md), nil
}

const insertResponse = `
INSERT INTO participant_responses(seq, type, participant_id, symbol_id, participant_order_id, internal_order_id, side, price, executed_qty, remaining_qty)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (seq) DO NOTHING
`

const insertUpdate = `
INSERT INTO market_updates(seq, type, order_id, symbol_id, side, price, qty, priority)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (seq) DO NOTHING
`

func responseArgs(seq uint64, r domain.ParticipantResponse) []any {
	return []any{
		int64(seq), r.Type.String(), int64(r.ParticipantID), int64(r.SymbolID),
		nullable(uint64(r.ParticipantOrderID), uint64(domain.InvalidOrderID)),
		nullable(uint64(r.InternalOrderID), uint64(domain.InvalidOrderID)),
		r.Side.String(),
		nullable(uint64(r.Price), uint64(domain.InvalidPrice)),
		int64(r.ExecutedQty), int64(r.RemainingQty),
	}
}

func updateArgs(seq uint64, u domain.MarketUpdate) []any {
	return []any{
		int64(seq), u.Type.String(), int64(u.OrderID), int64(u.SymbolID), u.Side.String(),
		nullable(uint64(u.Price), uint64(domain.InvalidPrice)),
		int64(u.Qty),
		nullable(uint64(u.Priority), uint64(domain.InvalidPriority)),
	}
}

// nullable maps the sentinel, and anything BIGINT cannot hold, to NULL.
func nullable(v, sentinel uint64) *int64 {
	if v == sentinel || v > math.MaxInt64 {
		return nil
	}
	n := int64(v)
	return &n
}

func fromNullable(v *int64, sentinel uint64) uint64 {
	if v == nil {
		return sentinel
	}
	return uint64(*v)
}
