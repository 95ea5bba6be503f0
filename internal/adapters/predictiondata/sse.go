// Package predictiondata consume el stream SSE del modelo de probabilidades
// deportivas y lo traduce a ModelUpdate canónicos.
package predictiondata

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
)

const (
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 30 * time.Second

	// Una conexión que sobrevive este tiempo se considera sana y
	// resetea el backoff.
	healthyAfter = time.Minute
)

// Stream mantiene la conexión SSE y publica updates del modelo en el bus.
type Stream struct {
	url    string
	apiKey string
	http   *http.Client
	bus    *bus.Bus
}

func NewStream(url, apiKey string, b *bus.Bus) *Stream {
	// Sin timeout global: la conexión SSE es de larga vida.
	return &Stream{url: url, apiKey: apiKey, http: &http.Client{}, bus: b}
}

// Start corre el loop de conexión con backoff exponencial hasta que ctx
// termine.
func (s *Stream) Start(ctx context.Context) {
	backoff := baseBackoff
	for {
		started := time.Now()
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > healthyAfter {
			backoff = baseBackoff
		}
		slog.Warn("predictiondata: stream dropped, reconnecting", "err", err, "wait", backoff)
		s.bus.PublishError(domain.SystemError{Module: "predictiondata", Err: err.Error(), Ts: time.Now()})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Stream) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	slog.Info("predictiondata stream connected", "url", s.url)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 {
				s.dispatch(strings.Join(data, "\n"))
				data = data[:0]
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(rest))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by server")
}

func (s *Stream) dispatch(payload string) {
	updates := parseModelPayload([]byte(payload), time.Now())
	for _, u := range updates {
		metrics.ModelUpdates.Inc()
		s.bus.PublishModel(u)
	}
}

// parseModelPayload acepta tanto un evento por mercado como el shape en
// batch con lista de outcomes. Entradas sin market o sin probabilidad
// usable se descartan.
func parseModelPayload(payload []byte, now time.Time) []domain.ModelUpdate {
	var msg struct {
		MarketID    string  `json:"market_id"`
		MarketIDAlt string  `json:"marketId"`
		ID          string  `json:"id"`
		Outcome     string  `json:"outcome"`
		Probability float64 `json:"probability"`
		ModelProb   float64 `json:"model_probability"`
		League      string  `json:"league"`
		Team        string  `json:"team"`
		Outcomes    []struct {
			Name        string  `json:"name"`
			Outcome     string  `json:"outcome"`
			Probability float64 `json:"probability"`
			ModelProb   float64 `json:"model_probability"`
		} `json:"outcomes"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil
	}

	marketID := msg.MarketID
	if marketID == "" {
		marketID = msg.MarketIDAlt
	}
	if marketID == "" {
		marketID = msg.ID
	}
	if marketID == "" {
		return nil
	}

	var out []domain.ModelUpdate
	if len(msg.Outcomes) > 0 {
		for _, o := range msg.Outcomes {
			outcome := o.Outcome
			if outcome == "" {
				outcome = o.Name
			}
			prob := o.Probability
			if prob == 0 {
				prob = o.ModelProb
			}
			if outcome == "" || prob <= 0 || prob >= 1 {
				continue
			}
			out = append(out, domain.ModelUpdate{
				MarketID:    marketID,
				Outcome:     outcome,
				Probability: prob,
				League:      msg.League,
				Team:        msg.Team,
				Ts:          now,
			})
		}
		return out
	}

	prob := msg.Probability
	if prob == 0 {
		prob = msg.ModelProb
	}
	outcome := msg.Outcome
	if outcome == "" {
		outcome = "YES"
	}
	if prob <= 0 || prob >= 1 {
		return nil
	}
	return []domain.ModelUpdate{{
		MarketID:    marketID,
		Outcome:     outcome,
		Probability: prob,
		League:      msg.League,
		Team:        msg.Team,
		Ts:          now,
	}}
}
