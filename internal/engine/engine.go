package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/domain"
)

// Engine routes participant requests to one order book per symbol. Each
// book is owned by its own worker goroutine, so requests for a symbol are
// processed, and their events emitted, in arrival order.
type Engine struct {
	log *zap.Logger

	requests  <-chan domain.ParticipantRequest
	responses chan<- domain.ParticipantResponse
	updates   chan<- domain.MarketUpdate

	workers [domain.MaxSymbols]*worker
	symbols []domain.SymbolID

	started  atomic.Bool
	stopping chan struct{}
	done     chan struct{}
}

// New builds an engine with one book per configured symbol. The engine is the
// only sender on responses and updates and closes both when Run returns.
func New(cfg Config, log *zap.Logger, requests <-chan domain.ParticipantRequest, responses chan<- domain.ParticipantResponse, updates chan<- domain.MarketUpdate) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		log:       log.Named("engine"),
		requests:  requests,
		responses: responses,
		updates:   updates,
		symbols:   append([]domain.SymbolID(nil), cfg.Symbols...),
		stopping:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, s := range cfg.Symbols {
		w := &worker{
			eng:   e,
			inbox: make(chan command, cfg.InboxSize),
			log:   e.log.With(zap.Uint32("symbol", uint32(s))),
		}
		book, err := core.NewOrderBook(s, cfg.Limits, w)
		if err != nil {
			return nil, err
		}
		w.book = book
		e.workers[s] = w
	}
	return e, nil
}

func (e *Engine) Symbols() []domain.SymbolID {
	return append([]domain.SymbolID(nil), e.symbols...)
}

// Run processes requests until ctx is cancelled or the request channel is
// closed. Requests already routed to a book are still processed before Run
// returns. Run may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	defer close(e.updates)
	defer close(e.responses)
	defer close(e.done)

	e.log.Info("engine_started", zap.Int("symbols", len(e.symbols)))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range e.symbols {
		w := e.workers[s]
		w.ctx = gctx
		g.Go(w.run)
	}
	g.Go(func() error {
		defer close(e.stopping)
		return e.route(gctx)
	})
	err := g.Wait()

	e.log.Info("engine_stopped", zap.Error(err))
	return err
}

func (e *Engine) route(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-e.requests:
			if !ok {
				return nil
			}
			e.dispatch(ctx, req)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, req domain.ParticipantRequest) {
	w := e.worker(req.SymbolID)
	if w == nil {
		e.log.Debug("request_rejected", zap.Stringer("request", req), zap.Error(domain.ErrUnknownSymbol))
		if req.Type == domain.RequestCancel {
			e.emitResponse(ctx, domain.CancelRejectedResponse(req.ParticipantID, req.SymbolID, req.OrderID))
		} else {
			e.emitResponse(ctx, domain.RejectedResponse(req))
		}
		return
	}
	select {
	case w.inbox <- command{request: req}:
	case <-ctx.Done():
	}
}

func (e *Engine) worker(s domain.SymbolID) *worker {
	if s >= domain.MaxSymbols {
		return nil
	}
	return e.workers[s]
}

func (e *Engine) emitResponse(ctx context.Context, r domain.ParticipantResponse) {
	select {
	case e.responses <- r:
	case <-ctx.Done():
	}
}

func (e *Engine) emitUpdate(ctx context.Context, u domain.MarketUpdate) {
	select {
	case e.updates <- u:
	case <-ctx.Done():
	}
}

// Depth returns up to n aggregated levels per side of the symbol's book.
func (e *Engine) Depth(ctx context.Context, symbol domain.SymbolID, n int) (domain.BookSnapshot, error) {
	var snap domain.BookSnapshot
	err := e.query(ctx, symbol, func(b *core.OrderBook) {
		snap = b.Depth(n)
	})
	return snap, err
}

// Order looks up a resting order by the identity its participant uses.
func (e *Engine) Order(ctx context.Context, symbol domain.SymbolID, pid domain.ParticipantID, poid domain.OrderID) (core.Order, bool, error) {
	var (
		o  core.Order
		ok bool
	)
	err := e.query(ctx, symbol, func(b *core.OrderBook) {
		o, ok = b.Order(pid, poid)
	})
	return o, ok, err
}

func (e *Engine) query(ctx context.Context, symbol domain.SymbolID, fn func(*core.OrderBook)) error {
	w := e.worker(symbol)
	if w == nil {
		return domain.ErrUnknownSymbol
	}
	if !e.started.Load() {
		return domain.ErrEngineStopped
	}
	reply := make(chan struct{})
	cmd := command{query: func(b *core.OrderBook) {
		fn(b)
		close(reply)
	}}
	select {
	case w.inbox <- cmd:
	case <-e.stopping:
		return domain.ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-e.done:
		return domain.ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker owns one book. It is also the book's listener, forwarding events to
// the engine's outbound channels.
type worker struct {
	eng   *Engine
	book  *core.OrderBook
	inbox chan command
	log   *zap.Logger
	ctx   context.Context
}

func (w *worker) run() error {
	for {
		select {
		case cmd := <-w.inbox:
			w.handle(cmd)
		case <-w.eng.stopping:
			// the router has stopped; finish whatever it already queued
			for {
				select {
				case cmd := <-w.inbox:
					w.handle(cmd)
				default:
					return nil
				}
			}
		}
	}
}

func (w *worker) handle(cmd command) {
	if cmd.query != nil {
		cmd.query(w.book)
		return
	}

	req := cmd.request
	var err error
	switch req.Type {
	case domain.RequestNew:
		if req.Side != domain.SideBuy && req.Side != domain.SideSell {
			w.OnParticipantResponse(domain.RejectedResponse(req))
			err = domain.ErrInvalidRequest
			break
		}
		err = w.book.Add(req.ParticipantID, req.OrderID, req.Side, req.Price, req.Quantity)
	case domain.RequestCancel:
		err = w.book.Cancel(req.ParticipantID, req.OrderID)
	default:
		w.OnParticipantResponse(domain.RejectedResponse(req))
		err = domain.ErrInvalidRequest
	}
	if err != nil {
		w.log.Debug("request_rejected", zap.Stringer("request", req), zap.Error(err))
	}
}

func (w *worker) OnParticipantResponse(r domain.ParticipantResponse) {
	w.eng.emitResponse(w.ctx, r)
}

func (w *worker) OnMarketUpdate(u domain.MarketUpdate) {
	w.eng.emitUpdate(w.ctx, u)
}
