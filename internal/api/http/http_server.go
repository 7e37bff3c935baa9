package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/api/dto"
	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/market"
	"github.com/olyamironova/matching-engine/internal/middleware"
)

// Service is the order-entry surface the HTTP API drives.
type Service interface {
	Submit(ctx context.Context, req domain.ParticipantRequest) (domain.ParticipantResponse, error)
	Cancel(ctx context.Context, pid domain.ParticipantID, symbol domain.SymbolID, poid domain.OrderID) (domain.ParticipantResponse, error)
	Order(ctx context.Context, symbol domain.SymbolID, pid domain.ParticipantID, poid domain.OrderID) (core.Order, bool, error)
	Depth(ctx context.Context, symbol domain.SymbolID, n int) (*domain.BookSnapshot, error)
	RecentTrades(ctx context.Context, symbol domain.SymbolID, limit int) ([]domain.Trade, error)
}

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

type HTTPServer struct {
	svc     Service
	markets *market.Markets
	log     *zap.Logger
	limiter *middleware.RateLimiter
}

func NewHTTPServer(svc Service, markets *market.Markets, log *zap.Logger, rateLimit time.Duration) *HTTPServer {
	return &HTTPServer{
		svc:     svc,
		markets: markets,
		log:     log.Named("http"),
		limiter: middleware.NewRateLimiter(rateLimit),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	orders := v1.Group("/orders", s.limiter.Middleware())
	orders.POST("", s.submitOrder)
	orders.DELETE("/:poid", s.cancelOrder)
	orders.GET("/:poid", s.getOrder)

	v1.GET("/books/:symbol", s.getBook)
	v1.GET("/trades/:symbol", s.getTrades)
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Serve(ctx context.Context, addr string) error {
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

func (s *HTTPServer) submitOrder(c *gin.Context) {
	pid, _ := middleware.Participant(c)
	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := req.ToRequest(s.markets, pid)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp, err := s.svc.Submit(c.Request.Context(), r)
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusCreated
	if resp.Type == domain.ResponseRejected {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, dto.NewAck(s.markets, resp))
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	pid, _ := middleware.Participant(c)
	symbol, poid, ok := s.orderRef(c)
	if !ok {
		return
	}
	resp, err := s.svc.Cancel(c.Request.Context(), pid, symbol, poid)
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	if resp.Type == domain.ResponseCancelRejected {
		status = http.StatusNotFound
	}
	c.JSON(status, dto.NewAck(s.markets, resp))
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	pid, _ := middleware.Participant(c)
	symbol, poid, ok := s.orderRef(c)
	if !ok {
		return
	}
	o, found, err := s.svc.Order(c.Request.Context(), symbol, pid, poid)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrUnknownOrder.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewOrder(s.markets, o))
}

func (s *HTTPServer) getBook(c *gin.Context) {
	symbol, ok := s.markets.Lookup(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrUnknownSymbol.Error()})
		return
	}
	depth, err := queryInt(c, "depth", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.svc.Depth(c.Request.Context(), symbol, depth)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewBook(s.markets, snap))
}

func (s *HTTPServer) getTrades(c *gin.Context) {
	symbol, ok := s.markets.Lookup(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrUnknownSymbol.Error()})
		return
	}
	limit, err := queryInt(c, "limit", defaultTradeLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if limit <= 0 || limit > maxTradeLimit {
		limit = maxTradeLimit
	}
	trades, err := s.svc.RecentTrades(c.Request.Context(), symbol, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": dto.NewTrades(s.markets, trades)})
}

// orderRef reads the symbol query parameter and the :poid path parameter.
func (s *HTTPServer) orderRef(c *gin.Context) (domain.SymbolID, domain.OrderID, bool) {
	symbol, ok := s.markets.Lookup(c.Query("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrUnknownSymbol.Error()})
		return 0, 0, false
	}
	poid, err := strconv.ParseUint(c.Param("poid"), 10, 64)
	if err != nil || domain.OrderID(poid) == domain.InvalidOrderID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, 0, false
	}
	return symbol, domain.OrderID(poid), true
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownSymbol):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrEngineStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
