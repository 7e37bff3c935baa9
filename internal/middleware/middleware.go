package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/domain"
)

const (
	ParticipantHeader = "X-Participant-ID"
	RequestIDHeader   = "X-Request-ID"

	participantKey = "participant_id"
	requestIDKey   = "request_id"
)

// RateLimiter allows one request per participant every limit.
type RateLimiter struct {
	clients map[domain.ParticipantID]time.Time
	mu      sync.Mutex
	limit   time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[domain.ParticipantID]time.Time),
		limit:   limit,
		now:     time.Now,
	}
}

// Middleware requires a valid X-Participant-ID header and stores the parsed
// id in the context.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ParticipantHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ParticipantHeader + " header required"})
			return
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || domain.ParticipantID(id) == domain.InvalidParticipantID {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + ParticipantHeader})
			return
		}
		pid := domain.ParticipantID(id)

		r.mu.Lock()
		now := r.now()
		last, exists := r.clients[pid]
		if exists && now.Sub(last) < r.limit {
			r.mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		r.clients[pid] = now
		r.mu.Unlock()

		c.Set(participantKey, pid)
		c.Next()
	}
}

func Participant(c *gin.Context) (domain.ParticipantID, bool) {
	v, ok := c.Get(participantKey)
	if !ok {
		return domain.InvalidParticipantID, false
	}
	pid, ok := v.(domain.ParticipantID)
	return pid, ok
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if pid, ok := Participant(c); ok {
			fields = append(fields, zap.Uint32("participant_id", uint32(pid)))
		}
		if len(c.Errors) > 0 {
			log.Warn("http_request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		log.Info("http_request", fields...)
	}
}
