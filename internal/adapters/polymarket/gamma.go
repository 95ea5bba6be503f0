package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Rate limit al 60% del límite real documentado de Gamma /markets:
	// 300/10s → 180/10s → 18/s.
	gammaRatePerSec = 18

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Gamma es el client HTTP de la Gamma API con rate limiting y retries.
// Se usa para resolver metadata de mercados (slug) a partir del token id.
type Gamma struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewGamma crea el client. Si base está vacío usa el URL de producción.
func NewGamma(base string) *Gamma {
	if base == "" {
		base = defaultGammaBase
	}
	return &Gamma{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(gammaRatePerSec, 10),
	}
}

type gammaMarket struct {
	ConditionID string `json:"conditionId"`
	Slug        string `json:"slug"`
	Question    string `json:"question"`
}

// MarketSlug resuelve el slug del mercado al que pertenece un CLOB token id.
// Devuelve "" sin error si Gamma no conoce el token.
func (g *Gamma) MarketSlug(ctx context.Context, tokenID string) (string, error) {
	u := fmt.Sprintf("%s/markets?clob_token_ids=%s", g.base, url.QueryEscape(tokenID))

	var resp []gammaMarket
	if err := g.get(ctx, u, &resp); err != nil {
		return "", fmt.Errorf("polymarket.MarketSlug: %w", err)
	}
	if len(resp) == 0 {
		return "", nil
	}
	return resp[0].Slug, nil
}

// get hace un GET con rate limiting y backoff exponencial.
func (g *Gamma) get(ctx context.Context, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := g.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			g.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("gamma request throttled, retrying", "status", resp.StatusCode, "attempt", attempt+1)
			g.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (g *Gamma) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
