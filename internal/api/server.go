// Package api exposes the read-only HTTP surface: positions, trades, pnl,
// analytics, the market slug redirect and the live websocket feed.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/polyedge/internal/analytics"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

const defaultTradeLimit = 100

// SlugResolver resolves a CLOB token id to a market slug.
type SlugResolver interface {
	MarketSlug(ctx context.Context, tokenID string) (string, error)
}

// Server wires the chi router over storage and the analytics aggregator.
type Server struct {
	store ports.Storage
	agg   *analytics.Aggregator
	slugs SlugResolver
	hub   *Hub

	mu        sync.Mutex
	slugCache map[string]string
}

func NewServer(store ports.Storage, agg *analytics.Aggregator, slugs SlugResolver, hub *Hub) *Server {
	return &Server{
		store:     store,
		agg:       agg,
		slugs:     slugs,
		hub:       hub,
		slugCache: make(map[string]string),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/health", s.handleHealth)
		r.Get("/positions", s.handlePositions)
		r.Get("/trades", s.handleTrades)
		r.Get("/balance", s.handleBalance)
		r.Get("/pnl", s.handlePnl)
		r.Get("/analytics", s.handleAnalytics)
		r.Get("/pm/{tokenID}", s.handleMarketRedirect)
	})

	// The websocket route lives outside the timeout middleware: the
	// connection is long-lived on purpose.
	r.Get("/ws", s.hub.HandleWS)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ts": time.Now().UTC()})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListPositions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.store.ListTrades(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	bal, ok, err := s.store.LatestBalance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"recorded": false})
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (s *Server) handlePnl(w http.ResponseWriter, r *http.Request) {
	snap := s.agg.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"pnl":    snap.PnL,
		"equity": s.agg.Equity(),
		"roi":    snap.ROI,
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Snapshot(r.Context()))
}

// handleMarketRedirect resolves the token to its market slug (cached
// indefinitely, slugs never change) and 302s to the public market page.
func (s *Server) handleMarketRedirect(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")

	s.mu.Lock()
	slug, ok := s.slugCache[tokenID]
	s.mu.Unlock()

	if !ok {
		var err error
		slug, err = s.slugs.MarketSlug(r.Context(), tokenID)
		if err != nil {
			slog.Warn("api: slug lookup failed", "token", tokenID, "err", err)
			http.Error(w, "slug lookup failed", http.StatusBadGateway)
			return
		}
		if slug == "" {
			http.NotFound(w, r)
			return
		}
		s.mu.Lock()
		s.slugCache[tokenID] = slug
		s.mu.Unlock()
	}

	http.Redirect(w, r, "https://polymarket.com/event/"+slug, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	slog.Error("api: request failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
