package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/olyamironova/matching-engine/internal/api/dto"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/market"
	"github.com/olyamironova/matching-engine/internal/marketdata"
)

type fakeBooks struct {
	snap *domain.BookSnapshot
	n    int
}

func (f *fakeBooks) Depth(ctx context.Context, symbol domain.SymbolID, n int) (*domain.BookSnapshot, error) {
	f.n = n
	return f.snap, nil
}

func newTestServer(t *testing.T, books Books) (*httptest.Server, *marketdata.Hub) {
	t.Helper()
	markets, err := market.New([]string{"BTC-USD", "ETH-USD"}, decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	hub := marketdata.NewHub()
	srv := httptest.NewServer(NewServer(books, markets, hub, zaptest.NewLogger(t), []string{"*"}).Handler())
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	srv, hub := newTestServer(t, &fakeBooks{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Request{Op: "subscribe", Channels: []string{"eth-usd"}}))
	var ack Reply
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Op)
	assert.Equal(t, []string{"ETH-USD"}, ack.Channels)

	hub.Publish(marketdata.Event{Seq: 1, Update: domain.MarketUpdate{Type: domain.UpdateAdd, SymbolID: 0, Side: domain.SideBuy, Price: 100, Qty: 1}})
	hub.Publish(marketdata.Event{Seq: 2, Update: domain.MarketUpdate{Type: domain.UpdateAdd, OrderID: 7, SymbolID: 1, Side: domain.SideSell, Price: 250, Qty: 3}})

	var msg Update
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "ETH-USD", msg.Channel)
	assert.Equal(t, uint64(2), msg.Data.Seq)
	assert.Equal(t, uint64(7), msg.Data.OrderID)
	assert.Equal(t, uint32(3), msg.Data.Quantity)
	require.NotNil(t, msg.Data.Price)
	assert.Equal(t, "2.5", msg.Data.Price.String())
}

func TestUnsubscribeStopsUpdates(t *testing.T) {
	srv, hub := newTestServer(t, &fakeBooks{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Request{Op: "subscribe", Channels: []string{"BTC-USD"}}))
	var ack Reply
	require.NoError(t, conn.ReadJSON(&ack))
	require.NoError(t, conn.WriteJSON(Request{Op: "unsubscribe", Channels: []string{"BTC-USD"}}))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "unsubscribed", ack.Op)

	hub.Publish(marketdata.Event{Seq: 1, Update: domain.MarketUpdate{Type: domain.UpdateCancel, SymbolID: 0}})
	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestUnknownChannelAndOp(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBooks{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Request{Op: "subscribe", Channels: []string{"DOGE-USD"}}))
	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Op)
	assert.Equal(t, []string{"DOGE-USD"}, reply.Channels)

	require.NoError(t, conn.WriteJSON(Request{Op: "snapshot", Channels: []string{"BTC-USD"}}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Op)
	assert.Contains(t, reply.Message, "snapshot")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "invalid message", reply.Message)
}

func TestGetBook(t *testing.T) {
	books := &fakeBooks{snap: &domain.BookSnapshot{
		Symbol: 0,
		Bids:   []domain.DepthLevel{{Price: 10000, Quantity: 5, Orders: 2}},
	}}
	srv, _ := newTestServer(t, books)

	resp, err := http.Get(srv.URL + "/api/v1/book/BTC-USD?depth=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var book dto.Book
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&book))
	assert.Equal(t, "BTC-USD", book.Symbol)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "100", book.Bids[0].Price.String())
	assert.Equal(t, 3, books.n)

	resp2, err := http.Get(srv.URL + "/api/v1/book/NOPE")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(srv.URL + "/api/v1/book/BTC-USD?depth=x")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBooks{})
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
