package marketdata

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// Event is a sequenced market update as it leaves the engine.
type Event struct {
	Seq    uint64
	Update domain.MarketUpdate
	Time   time.Time
}

// Hub fans market updates out to in-process subscribers. Publish never
// blocks: a subscriber whose buffer is full misses the event and has its
// drop counter bumped.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

type Subscription struct {
	hub *Hub
	ch  chan Event

	mu      sync.RWMutex
	all     bool
	symbols map[domain.SymbolID]struct{}

	dropped atomic.Uint64
	closed  bool
}

// Subscribe registers a subscriber with a buffer of size buf. It receives
// nothing until it watches a symbol or calls WatchAll.
func (h *Hub) Subscribe(buf int) *Subscription {
	if buf <= 0 {
		buf = 1
	}
	s := &Subscription{
		hub:     h,
		ch:      make(chan Event, buf),
		symbols: make(map[domain.SymbolID]struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(ev.Update.SymbolID) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// C is closed once the subscription is closed.
func (s *Subscription) C() <-chan Event { return s.ch }

func (s *Subscription) Watch(symbol domain.SymbolID) {
	s.mu.Lock()
	s.symbols[symbol] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscription) Unwatch(symbol domain.SymbolID) {
	s.mu.Lock()
	delete(s.symbols, symbol)
	s.mu.Unlock()
}

func (s *Subscription) WatchAll() {
	s.mu.Lock()
	s.all = true
	s.mu.Unlock()
}

func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) wants(symbol domain.SymbolID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.all {
		return true
	}
	_, ok := s.symbols[symbol]
	return ok
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(h.subs, s)
	close(s.ch)
}
