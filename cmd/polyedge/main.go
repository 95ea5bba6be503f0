package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/adapters/onchain"
	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyedge/internal/adapters/predictiondata"
	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyedge/internal/analytics"
	"github.com/alejandrodnm/polyedge/internal/api"
	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/engine"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("polyedge starting",
		"config", *configPath,
		"edge_threshold", cfg.Risk.EdgeThreshold,
		"kelly_fraction", cfg.Risk.KellyFraction,
		"max_trade_usd", cfg.Risk.MaxTradeUsd,
		"port", cfg.App.Port,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := bus.New()

	// Core pipeline: feeds → edge → executor → analytics/reconciler.
	edge := engine.NewEdge(b, engine.Config{
		EdgeThreshold: cfg.Risk.EdgeThreshold,
		KellyFraction: cfg.Risk.KellyFraction,
		MaxTradeUsd:   cfg.Risk.MaxTradeUsd,
	})
	engine.NewExecutor(b, store, cfg.Risk.MaxTradeUsd)

	// The aggregator subscribes to resolutions before the reconciler so it
	// can read the final marks before settlement zeroes them.
	gate := analytics.NewGate(b)
	agg := analytics.NewAggregator(b, store, gate, cfg.Risk.DrawdownAlert)
	engine.NewReconciler(b, store)

	// Notifiers run off the dispatcher: delivery I/O must not stall the
	// pipeline, so each subscription hands off to a goroutine.
	console := notify.NewConsole()
	attachNotifier(ctx, b, console)
	telegram := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if telegram.Enabled() {
		attachNotifier(ctx, b, telegram)
		slog.Info("telegram notifier enabled")
	}

	// Feeds.
	wsFeed := polymarket.NewWSFeed(cfg.Market.CLOBWsURL, b)
	go wsFeed.Start(ctx)

	if cfg.Market.PredictionDataURL != "" {
		stream := predictiondata.NewStream(cfg.Market.PredictionDataURL, cfg.Market.PredictionDataAPIKey, b)
		go stream.Start(ctx)
	} else {
		slog.Warn("predictiondata url not configured, model feed disabled")
	}

	var wallet ports.Wallet
	if cfg.Chain.RPCURL != "" {
		monitor := onchain.NewMonitor(cfg.Chain.RPCURL, cfg.Chain.WalletAddress, b)
		go func() {
			if err := monitor.Start(ctx); err != nil {
				slog.Error("chain monitor stopped", "err", err)
			}
		}()

		if cfg.Chain.PrivateKey != "" {
			guard := onchain.NewGuard(cfg.Chain.AllowlistPath)
			w, err := onchain.NewWallet(cfg.Chain.RPCURL, cfg.Chain.PrivateKey, guard)
			if err != nil {
				slog.Error("failed to init wallet", "err", err)
				os.Exit(1)
			}
			wallet = w
			slog.Info("wallet ready", "address", w.Address())
		}
	} else {
		slog.Warn("chain rpc not configured, monitor and wallet disabled")
	}

	// Maintenance tickers share the dispatcher through bus.Exec.
	go runPruneLoop(ctx, b, edge, cfg.CacheTTL(), cfg.PruneInterval())
	go runBalanceRecorder(ctx, store, agg, wallet, cfg.BalanceInterval())

	gamma := polymarket.NewGamma(cfg.Market.GammaBase)
	hub := api.NewHub()
	hub.Attach(b)
	// Client writes run on the hub's own goroutine, never on the dispatcher.
	go hub.Run(ctx)
	server := api.NewServer(store, agg, gamma, hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: server.Router(),
	}
	go func() {
		slog.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "err", err)
			cancel()
		}
	}()

	// The dispatcher owns all core state mutations.
	b.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	hub.Shutdown(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}

	printFinalState(shutdownCtx, store, agg, console)
	slog.Info("polyedge stopped cleanly")
}

// attachNotifier fans trades, alerts and errors out to one notifier, each
// delivery on its own goroutine.
func attachNotifier(ctx context.Context, b *bus.Bus, n ports.Notifier) {
	b.OnTrade(func(t domain.Trade) {
		go func() {
			if err := n.NotifyTrade(ctx, t); err != nil {
				slog.Warn("notify trade", "err", err)
			}
		}()
	})
	b.OnAlert(func(a domain.Alert) {
		go func() {
			if err := n.NotifyAlert(ctx, a); err != nil {
				slog.Warn("notify alert", "err", err)
			}
		}()
	})
	b.OnError(func(e domain.SystemError) {
		go func() {
			if err := n.NotifyError(ctx, e); err != nil {
				slog.Warn("notify error", "err", err)
			}
		}()
	})
}

// runPruneLoop evicts stale market state on a fixed interval. The sweep
// itself runs on the dispatcher so it never races the feed handlers.
func runPruneLoop(ctx context.Context, b *bus.Bus, edge *engine.Edge, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Exec(func() {
				if n := edge.PruneStale(ttl, time.Now()); n > 0 {
					slog.Debug("pruned stale markets", "evicted", n, "tracked", edge.TrackedKeys())
				}
			})
		}
	}
}

// runBalanceRecorder snapshots wallet balance, exposure and equity. Wallet
// RPC reads happen here, on a ticker, never inside bus reactions.
func runBalanceRecorder(ctx context.Context, store ports.Storage, agg *analytics.Aggregator, wallet ports.Wallet, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			usdc := 0.0
			if wallet != nil {
				bal, err := wallet.UsdcBalance(ctx)
				if err != nil {
					slog.Warn("balance recorder: usdc read", "err", err)
				} else {
					usdc = bal
				}
			}
			exposure, err := store.Exposure(ctx)
			if err != nil {
				slog.Warn("balance recorder: exposure", "err", err)
				continue
			}
			snap := domain.BalanceSnapshot{
				Ts:       time.Now(),
				Usdc:     usdc,
				Exposure: exposure,
				Equity:   agg.Equity(),
			}
			if err := store.RecordBalance(ctx, snap); err != nil {
				slog.Warn("balance recorder: persist", "err", err)
			}
		}
	}
}

// printFinalState dumps positions and the portfolio summary on shutdown.
func printFinalState(ctx context.Context, store ports.Storage, agg *analytics.Aggregator, console *notify.Console) {
	positions, err := store.ListPositions(ctx)
	if err != nil {
		slog.Warn("final state: list positions", "err", err)
		return
	}
	console.PrintPositions(positions)

	open := 0
	for _, p := range positions {
		if !p.Resolved {
			open++
		}
	}
	snap := agg.Snapshot(ctx)
	console.PrintPortfolio(agg.Equity(), snap.PnL, snap.Exposure, open)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
