package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

func newWSClient(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.clients) == 1
	}, time.Second, 10*time.Millisecond)
	return conn
}

func TestHub_DeliversEnvelopes(t *testing.T) {
	h := NewHub()
	b := bus.New()
	h.Attach(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := newWSClient(t, h)

	b.PublishPrice(domain.PriceTick{MarketID: "m1", Outcome: "YES", Price: 0.40, Ts: time.Now()})
	b.PublishTransfer(domain.Transfer{Token: "USDC", Value: 25, TxHash: "0xabc", Ts: time.Now()})
	b.Drain()

	for _, want := range []string{"market:price", "chain:transfer"} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var envelope struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
			Ts   int64           `json:"ts"`
		}
		require.NoError(t, json.Unmarshal(raw, &envelope))
		assert.Equal(t, want, envelope.Type)
		assert.NotZero(t, envelope.Ts)
	}
}

func TestHub_StalledClientDoesNotBlockDispatch(t *testing.T) {
	h := NewHub()
	b := bus.New()
	h.Attach(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	// This client never reads, so its TCP buffers fill up and stay full.
	newWSClient(t, h)

	start := time.Now()
	for i := 0; i < 2000; i++ {
		b.PublishPrice(domain.PriceTick{MarketID: "m1", Outcome: "YES", Price: 0.40, Ts: time.Now()})
	}
	b.Drain()

	// Handlers only enqueue onto the broadcast buffer; the dispatcher must
	// never wait on a client write deadline.
	assert.Less(t, time.Since(start), time.Second)
}

func TestHub_EnqueueDropsWhenBufferFull(t *testing.T) {
	h := NewHub() // no Run loop, nothing drains the channel

	for i := 0; i < broadcastBuffer+50; i++ {
		h.enqueue("market:price", domain.PriceTick{MarketID: "m1"})
	}

	assert.Len(t, h.broadcast, broadcastBuffer)
}
