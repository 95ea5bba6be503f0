package polymarket

// ws.go — feed de precios del market channel del CLOB websocket.
//
// El CLOB cambia el shape del mensaje entre versiones (market_id vs market
// vs asset_id, precios como number o string). normalizePriceMsg acepta los
// alias conocidos y descarta en silencio lo que no parsea: el core solo ve
// PriceTick canónicos.

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
)

const (
	defaultCLOBWs  = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	reconnectDelay = 3 * time.Second
)

// WSFeed mantiene la conexión al CLOB y publica ticks de precio en el bus.
type WSFeed struct {
	url string
	bus *bus.Bus
}

// NewWSFeed crea el feed. Si url está vacío usa el endpoint de producción.
func NewWSFeed(url string, b *bus.Bus) *WSFeed {
	if url == "" {
		url = defaultCLOBWs
	}
	return &WSFeed{url: url, bus: b}
}

// Start corre el loop de conexión/reconexión hasta que ctx termine.
func (f *WSFeed) Start(ctx context.Context) {
	for {
		if err := f.run(ctx); err != nil {
			slog.Warn("polymarket ws: connection lost, reconnecting", "err", err)
			f.bus.PublishError(domain.SystemError{Module: "polymarket-ws", Err: err.Error(), Ts: time.Now()})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *WSFeed) run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	slog.Info("polymarket ws connected", "url", f.url)

	sub := map[string]any{"type": "market", "assets_ids": []string{}}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	// ReadMessage no acepta contexto; cerrar la conexión lo desbloquea.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		tick, ok := normalizePriceMsg(raw, time.Now())
		if !ok {
			continue
		}
		metrics.PriceTicks.Inc()
		f.bus.PublishPrice(tick)
	}
}

// flexFloat acepta precios como number JSON o como string ("0.42").
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Precio no numérico → 0, el caller lo descarta.
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// normalizePriceMsg reduce los shapes conocidos del market channel al tick
// canónico. Devuelve false para frames sin market o sin precio usable.
func normalizePriceMsg(raw []byte, now time.Time) (domain.PriceTick, bool) {
	var msg struct {
		MarketID       string    `json:"market_id"`
		Market         string    `json:"market"`
		AssetID        string    `json:"asset_id"`
		Outcome        string    `json:"outcome"`
		TokenID        string    `json:"token_id"`
		Side           string    `json:"side"`
		Price          flexFloat `json:"price"`
		BestBid        flexFloat `json:"best_bid"`
		Mid            flexFloat `json:"mid"`
		LastTradePrice flexFloat `json:"last_trade_price"`
		PriceChanges   []struct {
			Price flexFloat `json:"price"`
		} `json:"price_changes"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.PriceTick{}, false
	}

	marketID := firstNonEmpty(msg.MarketID, msg.Market, msg.AssetID)
	outcome := firstNonEmpty(msg.Outcome, msg.TokenID, msg.Side)
	if outcome == "" {
		outcome = "YES"
	}

	price := float64(msg.Price)
	for _, alt := range []float64{float64(msg.BestBid), float64(msg.Mid), float64(msg.LastTradePrice)} {
		if price > 0 {
			break
		}
		price = alt
	}
	if price <= 0 && len(msg.PriceChanges) > 0 {
		price = float64(msg.PriceChanges[0].Price)
	}

	if marketID == "" || price <= 0 {
		return domain.PriceTick{}, false
	}
	return domain.PriceTick{MarketID: marketID, Outcome: outcome, Price: price, Ts: now}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
