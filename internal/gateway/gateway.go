package gateway

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/olyamironova/matching-engine/internal/adapter/outbox"
	"github.com/olyamironova/matching-engine/internal/api/dto"
	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/market"
	"github.com/olyamironova/matching-engine/internal/marketdata"
	"github.com/olyamironova/matching-engine/internal/port"
	"github.com/olyamironova/matching-engine/internal/sequence"
)

// Books is the read side of the matching engine.
type Books interface {
	Depth(ctx context.Context, symbol domain.SymbolID, n int) (domain.BookSnapshot, error)
	Order(ctx context.Context, symbol domain.SymbolID, pid domain.ParticipantID, poid domain.OrderID) (core.Order, bool, error)
}

type Config struct {
	RequestTimeout time.Duration
	// DepthLevels is how many levels per side are cached and served.
	DepthLevels  int
	DepthRefresh time.Duration
}

type Deps struct {
	Books   Books
	Markets *market.Markets
	Journal port.Journal
	Cache   port.DepthCache
	// Outbox is optional.
	Outbox port.Outbox
	Hub    *marketdata.Hub
}

type waitKey struct {
	pid  domain.ParticipantID
	sym  domain.SymbolID
	poid domain.OrderID
	kind domain.RequestType
}

// Gateway is the only sender on the engine's request channel and the only
// reader of its outbound channels. It turns the asynchronous engine into
// request/ack calls and fans the outbound events out to the journal, the
// outbox, the market-data hub and the depth cache.
type Gateway struct {
	log  *zap.Logger
	cfg  Config
	deps Deps
	now  func() time.Time

	requests  chan<- domain.ParticipantRequest
	responses <-chan domain.ParticipantResponse
	updates   <-chan domain.MarketUpdate

	respSeq *sequence.Sequencer
	mdSeq   *sequence.Sequencer

	// sendLock makes waiter registration and the channel send one step, so
	// waiters for the same key queue in the order the engine sees requests.
	sendLock chan struct{}
	waitMu   sync.Mutex
	waiters  map[waitKey][]chan domain.ParticipantResponse

	depth depthState

	stopped chan struct{}
}

func New(cfg Config, log *zap.Logger, deps Deps, requests chan<- domain.ParticipantRequest, responses <-chan domain.ParticipantResponse, updates <-chan domain.MarketUpdate) *Gateway {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 20
	}
	if cfg.DepthRefresh <= 0 {
		cfg.DepthRefresh = 50 * time.Millisecond
	}
	return &Gateway{
		log:       log.Named("gateway"),
		cfg:       cfg,
		deps:      deps,
		now:       time.Now,
		requests:  requests,
		responses: responses,
		updates:   updates,
		respSeq:   sequence.New(0),
		mdSeq:     sequence.New(0),
		sendLock:  make(chan struct{}, 1),
		waiters:   make(map[waitKey][]chan domain.ParticipantResponse),
		stopped:   make(chan struct{}),
	}
}

// RestoreSequences continues both event sequences after the highest values
// found in the journal and the outbox, so a restart never reuses one.
func (g *Gateway) RestoreSequences(ctx context.Context) error {
	resp, md, err := g.deps.Journal.LastSequences(ctx)
	if err != nil {
		return err
	}
	g.respSeq.Advance(resp)
	g.mdSeq.Advance(md)
	if g.deps.Outbox != nil {
		last, err := g.deps.Outbox.LastSeq(outbox.KindExecution)
		if err != nil {
			return err
		}
		g.respSeq.Advance(last)
		if last, err = g.deps.Outbox.LastSeq(outbox.KindMarketUpdate); err != nil {
			return err
		}
		g.mdSeq.Advance(last)
	}
	g.log.Info("sequences_restored",
		zap.Uint64("responses", g.respSeq.Current()),
		zap.Uint64("market_updates", g.mdSeq.Current()))
	return nil
}

// Run drains the engine's outbound channels until the engine closes them,
// and keeps the depth cache fresh until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	sinkCtx := context.WithoutCancel(ctx)

	var loops sync.WaitGroup
	loops.Add(2)
	grp.Go(func() error {
		defer loops.Done()
		g.dispatchResponses(sinkCtx)
		return nil
	})
	grp.Go(func() error {
		defer loops.Done()
		g.dispatchUpdates(sinkCtx)
		return nil
	})
	grp.Go(func() error {
		loops.Wait()
		close(g.stopped)
		return nil
	})
	grp.Go(func() error {
		g.refreshLoop(ctx)
		return nil
	})
	return grp.Wait()
}

// Submit sends req to the engine and waits for its acknowledgement:
// Accepted or Rejected for a new order, Cancelled or CancelRejected for a
// cancel. Fills arrive on the outbound streams, not here.
func (g *Gateway) Submit(ctx context.Context, req domain.ParticipantRequest) (domain.ParticipantResponse, error) {
	if req.Type != domain.RequestNew && req.Type != domain.RequestCancel {
		return domain.ParticipantResponse{}, domain.ErrInvalidRequest
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	key := waitKey{pid: req.ParticipantID, sym: req.SymbolID, poid: req.OrderID, kind: req.Type}
	ch := make(chan domain.ParticipantResponse, 1)
	if err := g.send(ctx, key, ch, req); err != nil {
		return domain.ParticipantResponse{}, err
	}

	// A sent request keeps its waiter queued until its own ack pops it,
	// even when this call returns early.
	select {
	case r := <-ch:
		g.depth.touch(req.SymbolID)
		return r, nil
	case <-g.stopped:
		return domain.ParticipantResponse{}, domain.ErrEngineStopped
	case <-ctx.Done():
		return domain.ParticipantResponse{}, ctx.Err()
	}
}

func (g *Gateway) send(ctx context.Context, key waitKey, ch chan domain.ParticipantResponse, req domain.ParticipantRequest) error {
	select {
	case g.sendLock <- struct{}{}:
	case <-g.stopped:
		return domain.ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.sendLock }()

	g.addWaiter(key, ch)
	select {
	case g.requests <- req:
		return nil
	case <-g.stopped:
		g.removeWaiter(key, ch)
		return domain.ErrEngineStopped
	case <-ctx.Done():
		g.removeWaiter(key, ch)
		return ctx.Err()
	}
}

func (g *Gateway) Cancel(ctx context.Context, pid domain.ParticipantID, symbol domain.SymbolID, poid domain.OrderID) (domain.ParticipantResponse, error) {
	return g.Submit(ctx, domain.CancelOrderRequest(pid, symbol, poid))
}

func (g *Gateway) Order(ctx context.Context, symbol domain.SymbolID, pid domain.ParticipantID, poid domain.OrderID) (core.Order, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	return g.deps.Books.Order(ctx, symbol, pid, poid)
}

func (g *Gateway) RecentTrades(ctx context.Context, symbol domain.SymbolID, limit int) ([]domain.Trade, error) {
	return g.deps.Journal.RecentTrades(ctx, symbol, limit)
}

func (g *Gateway) Markets() *market.Markets { return g.deps.Markets }

func (g *Gateway) Hub() *marketdata.Hub { return g.deps.Hub }

func (g *Gateway) addWaiter(key waitKey, ch chan domain.ParticipantResponse) {
	g.waitMu.Lock()
	g.waiters[key] = append(g.waiters[key], ch)
	g.waitMu.Unlock()
}

func (g *Gateway) removeWaiter(key waitKey, ch chan domain.ParticipantResponse) {
	g.waitMu.Lock()
	defer g.waitMu.Unlock()
	list := g.waiters[key]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(g.waiters, key)
	} else {
		g.waiters[key] = list
	}
}

// deliver hands an acknowledgement to the oldest waiter registered for it.
func (g *Gateway) deliver(r domain.ParticipantResponse) {
	var kind domain.RequestType
	switch r.Type {
	case domain.ResponseAccepted, domain.ResponseRejected:
		kind = domain.RequestNew
	case domain.ResponseCancelled, domain.ResponseCancelRejected:
		kind = domain.RequestCancel
	default:
		return
	}
	key := waitKey{pid: r.ParticipantID, sym: r.SymbolID, poid: r.ParticipantOrderID, kind: kind}

	g.waitMu.Lock()
	defer g.waitMu.Unlock()
	list := g.waiters[key]
	if len(list) == 0 {
		return
	}
	list[0] <- r
	if len(list) == 1 {
		delete(g.waiters, key)
	} else {
		g.waiters[key] = list[1:]
	}
}

// journalBatch caps how many queued events one journal write carries.
const journalBatch = 256

// dispatchResponses hands each ack to its waiter as soon as it arrives, then
// journals whatever else is already queued in one batch before it goes to
// the outbox.
func (g *Gateway) dispatchResponses(ctx context.Context) {
	batch := make([]port.SequencedResponse, 0, journalBatch)
	for r := range g.responses {
		batch = append(batch[:0], g.sequenceResponse(r))
	drain:
		for len(batch) < journalBatch {
			select {
			case r, ok := <-g.responses:
				if !ok {
					break drain
				}
				batch = append(batch, g.sequenceResponse(r))
			default:
				break drain
			}
		}

		if err := g.deps.Journal.SaveBatch(ctx, port.JournalBatch{Responses: batch}); err != nil {
			g.log.Warn("journal_responses_failed",
				zap.Uint64("first_seq", batch[0].Seq), zap.Int("count", len(batch)), zap.Error(err))
		}
		if g.deps.Outbox != nil {
			now := g.now()
			for _, s := range batch {
				report := dto.NewExecutionReport(g.deps.Markets, s.Seq, s.Response, now)
				key := strconv.FormatUint(uint64(s.Response.ParticipantID), 10)
				g.putOutbox(outbox.KindExecution, s.Seq, []byte(key), report)
			}
		}
	}
}

func (g *Gateway) sequenceResponse(r domain.ParticipantResponse) port.SequencedResponse {
	seq := g.respSeq.Next()
	g.deliver(r)
	return port.SequencedResponse{Seq: seq, Response: r}
}

type stampedUpdate struct {
	port.SequencedUpdate
	ts time.Time
}

func (g *Gateway) dispatchUpdates(ctx context.Context) {
	stamped := make([]stampedUpdate, 0, journalBatch)
	batch := make([]port.SequencedUpdate, 0, journalBatch)
	for u := range g.updates {
		stamped = append(stamped[:0], g.publishUpdate(u))
	drain:
		for len(stamped) < journalBatch {
			select {
			case u, ok := <-g.updates:
				if !ok {
					break drain
				}
				stamped = append(stamped, g.publishUpdate(u))
			default:
				break drain
			}
		}

		batch = batch[:0]
		for _, s := range stamped {
			batch = append(batch, s.SequencedUpdate)
		}
		if err := g.deps.Journal.SaveBatch(ctx, port.JournalBatch{Updates: batch}); err != nil {
			g.log.Warn("journal_updates_failed",
				zap.Uint64("first_seq", batch[0].Seq), zap.Int("count", len(batch)), zap.Error(err))
		}
		if g.deps.Outbox != nil {
			for _, s := range stamped {
				msg := dto.NewMarketUpdate(g.deps.Markets, s.Seq, s.Update, s.ts)
				g.putOutbox(outbox.KindMarketUpdate, s.Seq, []byte(msg.Symbol), msg)
			}
		}
	}
}

// publishUpdate sequences u and makes it visible to depth readers and hub
// subscribers right away.
func (g *Gateway) publishUpdate(u domain.MarketUpdate) stampedUpdate {
	seq := g.mdSeq.Next()
	ts := g.now()
	g.depth.touch(u.SymbolID)
	g.deps.Hub.Publish(marketdata.Event{Seq: seq, Update: u, Time: ts})
	return stampedUpdate{SequencedUpdate: port.SequencedUpdate{Seq: seq, Update: u}, ts: ts}
}

func (g *Gateway) putOutbox(kind string, seq uint64, key []byte, v any) {
	b, err := json.Marshal(v)
	if err == nil {
		err = g.deps.Outbox.Put(kind, seq, key, b)
	}
	if err != nil {
		g.log.Error("outbox_put_failed", zap.String("kind", kind), zap.Uint64("seq", seq), zap.Error(err))
	}
}
