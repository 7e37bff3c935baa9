package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/api/dto"
	"github.com/olyamironova/matching-engine/internal/marketdata"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Request is sent by clients. Channels are symbol names.
type Request struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// Reply acknowledges a request or reports an error.
type Reply struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Update carries one market update on a symbol channel.
type Update struct {
	Channel string           `json:"channel"`
	Data    dto.MarketUpdate `json:"data"`
}

type client struct {
	srv     *Server
	conn    *websocket.Conn
	sub     *marketdata.Subscription
	control chan Reply
	log     *zap.Logger
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}
	c := &client{
		srv:     s,
		conn:    conn,
		sub:     s.hub.Subscribe(sendBuffer),
		control: make(chan Reply, 16),
		log:     s.log.With(zap.String("client_id", uuid.NewString())),
	}
	c.log.Info("ws_client_connected", zap.Int("clients", s.hub.Len()))
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.sub.Close()
		c.conn.Close()
		c.log.Info("ws_client_disconnected", zap.Uint64("dropped", c.sub.Dropped()))
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("ws_read_failed", zap.Error(err))
			}
			return
		}
		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(Reply{Op: "error", Message: "invalid message"})
			continue
		}
		c.handle(req)
	}
}

func (c *client) handle(req Request) {
	if req.Op != "subscribe" && req.Op != "unsubscribe" {
		c.reply(Reply{Op: "error", Message: "unknown op " + req.Op})
		return
	}
	var done, unknown []string
	for _, ch := range req.Channels {
		id, ok := c.srv.markets.Lookup(ch)
		if !ok {
			unknown = append(unknown, ch)
			continue
		}
		if req.Op == "subscribe" {
			c.sub.Watch(id)
		} else {
			c.sub.Unwatch(id)
		}
		done = append(done, c.srv.markets.Name(id))
	}
	if len(unknown) > 0 {
		c.reply(Reply{Op: "error", Channels: unknown, Message: "unknown symbol"})
	}
	if len(done) > 0 {
		c.reply(Reply{Op: req.Op + "d", Channels: done})
	}
}

// reply never blocks the read loop; a client that stops reading loses its
// replies the same way it loses updates.
func (c *client) reply(r Reply) {
	select {
	case c.control <- r:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msg := Update{
				Channel: c.srv.markets.Name(ev.Update.SymbolID),
				Data:    dto.NewMarketUpdate(c.srv.markets, ev.Seq, ev.Update, ev.Time),
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case r := <-c.control:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(r); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
