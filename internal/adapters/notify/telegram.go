package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const (
	telegramAPIBase = "https://api.telegram.org"

	telegramMaxRetries = 4
	telegramBaseWait   = 400 * time.Millisecond
)

// Telegram implementa ports.Notifier vía la Bot API. Los envíos reintentan
// con backoff; un fallo definitivo se loggea y no se propaga como fatal.
type Telegram struct {
	http   *http.Client
	token  string
	chatID string
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		http:   &http.Client{Timeout: 10 * time.Second},
		token:  token,
		chatID: chatID,
	}
}

// Enabled indica si hay credenciales configuradas.
func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

func (t *Telegram) NotifyTrade(ctx context.Context, tr domain.Trade) error {
	msg := fmt.Sprintf(
		"🎯 *Trade ejecutado*\n%s %s/%s\nSize: $%.2f @ %.4f\nEdge: %.2f%%  Kelly: %.2f%%\nEV: $%.4f",
		tr.Side, shortID(tr.MarketID), tr.Outcome,
		tr.Size, tr.Price, tr.Edge*100, tr.Kelly*100, tr.ExpectedValue,
	)
	return t.send(ctx, msg)
}

func (t *Telegram) NotifyAlert(ctx context.Context, a domain.Alert) error {
	msg := fmt.Sprintf("⚠️ *%s*\n%s\nValor: %.4f (umbral %.4f)",
		a.Type, a.Message, a.Value, a.Threshold)
	return t.send(ctx, msg)
}

func (t *Telegram) NotifyError(ctx context.Context, e domain.SystemError) error {
	msg := fmt.Sprintf("🛑 *Error de sistema*\nMódulo: %s\n%s", e.Module, e.Err)
	return t.send(ctx, msg)
}

// send hace POST /sendMessage con reintentos y backoff exponencial.
func (t *Telegram) send(ctx context.Context, text string) error {
	if !t.Enabled() {
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, t.token)
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("notify.Telegram: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < telegramMaxRetries; attempt++ {
		if attempt > 0 {
			wait := telegramBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("notify.Telegram: request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("telegram status %d: %s", resp.StatusCode, respBody)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
	}

	slog.Warn("telegram send failed", "err", lastErr)
	return fmt.Errorf("notify.Telegram: %w", lastErr)
}
