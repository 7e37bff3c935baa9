package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/adapter/outbox"
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Store is the part of the outbox the relay drives.
type Store interface {
	ScanPending(kind string, limit int, fn func(outbox.Record) error) error
	MarkSent(rec outbox.Record) error
	MarkFailed(rec outbox.Record) error
	Ack(rec outbox.Record) error
}

// Route sends one outbox stream to a publisher.
type Route struct {
	Kind      string
	Publisher Publisher
}

// Relay periodically drains the outbox to the publishers. Within a stream
// records go out in sequence order: the first failure ends the pass for that
// stream and it is retried from the same record on the next tick.
type Relay struct {
	log      *zap.Logger
	store    Store
	routes   []Route
	interval time.Duration
	batch    int
}

func New(log *zap.Logger, store Store, interval time.Duration, batch int, routes ...Route) *Relay {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Relay{
		log:      log.Named("relay"),
		store:    store,
		routes:   routes,
		interval: interval,
		batch:    batch,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay_started", zap.Int("routes", len(r.routes)), zap.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush runs one pass over every route and returns the number of records
// published.
func (r *Relay) Flush(ctx context.Context) int {
	total := 0
	for _, rt := range r.routes {
		total += r.flushRoute(ctx, rt)
	}
	return total
}

type stopPass struct{}

func (stopPass) Error() string { return "stop" }

func (r *Relay) flushRoute(ctx context.Context, rt Route) int {
	sent := 0
	err := r.store.ScanPending(rt.Kind, r.batch, func(rec outbox.Record) error {
		if ctx.Err() != nil {
			return stopPass{}
		}
		if err := r.store.MarkSent(rec); err != nil {
			return err
		}
		if err := rt.Publisher.Publish(ctx, rec.Key, rec.Payload); err != nil {
			r.log.Warn("publish_failed",
				zap.String("kind", rt.Kind),
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("retries", rec.Retries+1),
				zap.Error(err))
			if merr := r.store.MarkFailed(rec); merr != nil {
				return merr
			}
			return stopPass{}
		}
		sent++
		return r.store.Ack(rec)
	})
	if err != nil {
		if _, ok := err.(stopPass); !ok {
			r.log.Error("outbox_scan_failed", zap.String("kind", rt.Kind), zap.Error(err))
		}
	}
	return sent
}
