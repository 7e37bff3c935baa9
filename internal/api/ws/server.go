package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/api/dto"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/market"
	"github.com/olyamironova/matching-engine/internal/marketdata"
)

type Books interface {
	Depth(ctx context.Context, symbol domain.SymbolID, n int) (*domain.BookSnapshot, error)
}

// Server is the public market-data edge: a WebSocket feed of market updates
// per symbol plus a read-only book endpoint.
type Server struct {
	router   *mux.Router
	books    Books
	markets  *market.Markets
	hub      *marketdata.Hub
	log      *zap.Logger
	origins  []string
	upgrader websocket.Upgrader
}

func NewServer(books Books, markets *market.Markets, hub *marketdata.Hub, log *zap.Logger, origins []string) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		books:   books,
		markets: markets,
		hub:     hub,
		log:     log.Named("ws"),
		origins: origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS is enforced by the handler wrapper.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/book/{symbol}", s.handleGetBook).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "subscribers": s.hub.Len()})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	symbol, ok := s.markets.Lookup(mux.Vars(r)["symbol"])
	if !ok {
		respondError(w, http.StatusNotFound, domain.ErrUnknownSymbol)
		return
	}
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		depth = n
	}
	snap, err := s.books.Depth(r.Context(), symbol, depth)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrEngineStopped) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewBook(s.markets, snap))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
