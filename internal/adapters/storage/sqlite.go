package storage

// sqlite.go — persistencia del engine sobre SQLite (pure Go, sin CGo).
//
// Tablas:
//   - `trades`: append-only, UNA fila por fill, PK uuid. El uuid es la
//     clave natural que hace la inserción idempotente — no hay queries de
//     dedup compensando inserts dobles.
//   - `positions`: una fila por (market_id, outcome), upsert on conflict.
//   - `redemptions`: append-only, una por posición resuelta.
//   - `analytics_timeseries`: PK (ts, metric), last-write-wins.
//   - `edge_observations`: señales emitidas, settled/correct al resolver.
//   - `balances`: snapshot periódico de wallet/exposure/equity.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id             TEXT PRIMARY KEY,
    ts             INTEGER NOT NULL,
    market_id      TEXT    NOT NULL,
    outcome        TEXT    NOT NULL,
    side           TEXT    NOT NULL,
    price          REAL    NOT NULL,
    size           REAL    NOT NULL,
    edge           REAL    NOT NULL,
    kelly          REAL    NOT NULL,
    expected_value REAL    NOT NULL,
    status         TEXT    NOT NULL,
    tx_hash        TEXT,
    meta           TEXT
);

CREATE TABLE IF NOT EXISTS positions (
    market_id      TEXT NOT NULL,
    outcome        TEXT NOT NULL,
    size           REAL NOT NULL DEFAULT 0,
    avg_price      REAL NOT NULL DEFAULT 0,
    last_price     REAL NOT NULL DEFAULT 0,
    realized_pnl   REAL NOT NULL DEFAULT 0,
    unrealized_pnl REAL NOT NULL DEFAULT 0,
    resolved       INTEGER NOT NULL DEFAULT 0,
    winner         INTEGER,
    PRIMARY KEY (market_id, outcome)
);

CREATE TABLE IF NOT EXISTS redemptions (
    id        TEXT PRIMARY KEY,
    ts        INTEGER NOT NULL,
    market_id TEXT    NOT NULL,
    amount    REAL    NOT NULL,
    tx_hash   TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS balances (
    ts       INTEGER PRIMARY KEY,
    usdc     REAL NOT NULL,
    exposure REAL NOT NULL,
    equity   REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS analytics_timeseries (
    ts     INTEGER NOT NULL,
    metric TEXT    NOT NULL,
    value  REAL    NOT NULL,
    PRIMARY KEY (ts, metric)
);

CREATE TABLE IF NOT EXISTS edge_observations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          INTEGER NOT NULL,
    market_id   TEXT    NOT NULL,
    outcome     TEXT    NOT NULL,
    model_prob  REAL    NOT NULL,
    market_prob REAL    NOT NULL,
    edge        REAL    NOT NULL,
    slippage    REAL    NOT NULL DEFAULT 0,
    settled     INTEGER NOT NULL DEFAULT 0,
    correct     INTEGER
);

CREATE INDEX IF NOT EXISTS idx_trades_ts    ON trades(ts DESC);
CREATE INDEX IF NOT EXISTS idx_pos_market   ON positions(market_id);
CREATE INDEX IF NOT EXISTS idx_obs_market   ON edge_observations(market_id);
CREATE INDEX IF NOT EXISTS idx_series_metric ON analytics_timeseries(metric, ts DESC);
`

const upsertPosition = `
INSERT INTO positions (market_id, outcome, size, avg_price, last_price, realized_pnl, unrealized_pnl, resolved, winner)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(market_id, outcome) DO UPDATE SET
    size           = excluded.size,
    avg_price      = excluded.avg_price,
    last_price     = excluded.last_price,
    realized_pnl   = excluded.realized_pnl,
    unrealized_pnl = excluded.unrealized_pnl,
    resolved       = excluded.resolved,
    winner         = excluded.winner`

// SQLiteStorage implementa ports.Storage.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// RecordFill inserta el trade y el upsert de la posición en una sola
// transacción.
func (s *SQLiteStorage) RecordFill(ctx context.Context, trade domain.Trade, pos domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.RecordFill: begin tx: %w", err)
	}
	defer tx.Rollback()

	meta, err := marshalMeta(trade.Meta)
	if err != nil {
		return fmt.Errorf("storage.RecordFill: marshal meta: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades (id, ts, market_id, outcome, side, price, size, edge, kelly, expected_value, status, tx_hash, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.Ts.UnixMilli(), trade.MarketID, trade.Outcome, string(trade.Side),
		trade.Price, trade.Size, trade.Edge, trade.Kelly, trade.ExpectedValue,
		string(trade.Status), nullStr(trade.TxHash), meta,
	); err != nil {
		return fmt.Errorf("storage.RecordFill: insert trade: %w", err)
	}

	if _, err := tx.ExecContext(ctx, upsertPosition, positionArgs(pos)...); err != nil {
		return fmt.Errorf("storage.RecordFill: upsert position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.RecordFill: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetPosition(ctx context.Context, marketID, outcome string) (domain.Position, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT market_id, outcome, size, avg_price, last_price, realized_pnl, unrealized_pnl, resolved, winner
		FROM positions WHERE market_id = ? AND outcome = ?`, marketID, outcome)

	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return domain.Position{}, false, nil
	}
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("storage.GetPosition: %w", err)
	}
	return pos, true, nil
}

func (s *SQLiteStorage) OpenPositions(ctx context.Context, marketID string) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, outcome, size, avg_price, last_price, realized_pnl, unrealized_pnl, resolved, winner
		FROM positions WHERE market_id = ? AND resolved = 0`, marketID)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (s *SQLiteStorage) ListPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, outcome, size, avg_price, last_price, realized_pnl, unrealized_pnl, resolved, winner
		FROM positions ORDER BY market_id, outcome`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPositions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// MarkPosition actualiza solo el mark-to-market de la posición.
func (s *SQLiteStorage) MarkPosition(ctx context.Context, marketID, outcome string, lastPrice, unrealizedPnl float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET last_price = ?, unrealized_pnl = ?
		WHERE market_id = ? AND outcome = ?`,
		lastPrice, unrealizedPnl, marketID, outcome)
	if err != nil {
		return fmt.Errorf("storage.MarkPosition: %w", err)
	}
	return nil
}

// SettlePosition finaliza la posición y registra su redemption en una sola
// transacción.
func (s *SQLiteStorage) SettlePosition(ctx context.Context, pos domain.Position, red domain.Redemption) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SettlePosition: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertPosition, positionArgs(pos)...); err != nil {
		return fmt.Errorf("storage.SettlePosition: upsert position: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO redemptions (id, ts, market_id, amount, tx_hash) VALUES (?, ?, ?, ?, ?)`,
		red.ID, red.Ts.UnixMilli(), red.MarketID, red.Amount, red.TxHash,
	); err != nil {
		return fmt.Errorf("storage.SettlePosition: insert redemption: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SettlePosition: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, market_id, outcome, side, price, size, edge, kelly, expected_value, status, tx_hash, meta
		FROM trades ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListTrades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var ts int64
		var side, status string
		var txHash, meta sql.NullString
		if err := rows.Scan(&t.ID, &ts, &t.MarketID, &t.Outcome, &side, &t.Price, &t.Size,
			&t.Edge, &t.Kelly, &t.ExpectedValue, &status, &txHash, &meta); err != nil {
			return nil, fmt.Errorf("storage.ListTrades: scan: %w", err)
		}
		t.Ts = time.UnixMilli(ts)
		t.Side = domain.TradeSide(side)
		t.Status = domain.TradeStatus(status)
		t.TxHash = txHash.String
		if meta.Valid && meta.String != "" {
			var m map[string]any
			if err := json.Unmarshal([]byte(meta.String), &m); err == nil {
				t.Meta = m
			}
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStorage) InsertObservation(ctx context.Context, obs domain.EdgeObservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edge_observations (ts, market_id, outcome, model_prob, market_prob, edge, slippage)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obs.Ts.UnixMilli(), obs.MarketID, obs.Outcome, obs.ModelProb, obs.MarketProb, obs.Edge, obs.Slippage)
	if err != nil {
		return fmt.Errorf("storage.InsertObservation: %w", err)
	}
	return nil
}

// SettleObservations marca todas las observaciones no settled del mercado
// y anota si el lado comprado resultó ganador.
func (s *SQLiteStorage) SettleObservations(ctx context.Context, marketID, winningOutcome string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE edge_observations
		SET settled = 1, correct = CASE WHEN outcome = ? THEN 1 ELSE 0 END
		WHERE market_id = ? AND settled = 0`,
		winningOutcome, marketID)
	if err != nil {
		return fmt.Errorf("storage.SettleObservations: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) EdgeAccuracy(ctx context.Context) (float64, error) {
	var acc float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(correct), 0) FROM edge_observations WHERE settled = 1`).Scan(&acc)
	if err != nil {
		return 0, fmt.Errorf("storage.EdgeAccuracy: %w", err)
	}
	return acc, nil
}

func (s *SQLiteStorage) ObservationStats(ctx context.Context) (domain.Efficiency, error) {
	var eff domain.Efficiency
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(slippage), 0), COALESCE(AVG(ABS(edge)), 0) FROM edge_observations`).
		Scan(&eff.AvgSlippage, &eff.EdgeDecay)
	if err != nil {
		return domain.Efficiency{}, fmt.Errorf("storage.ObservationStats: %w", err)
	}
	return eff, nil
}

func (s *SQLiteStorage) Exposure(ctx context.Context) (float64, error) {
	var exposure float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size * avg_price), 0) FROM positions WHERE resolved = 0`).Scan(&exposure)
	if err != nil {
		return 0, fmt.Errorf("storage.Exposure: %w", err)
	}
	return exposure, nil
}

// InsertSample hace INSERT OR REPLACE: dos samples del mismo metric en el
// mismo milisegundo colapsan en el último (last-write-wins).
func (s *SQLiteStorage) InsertSample(ctx context.Context, sample domain.EquitySample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analytics_timeseries (ts, metric, value) VALUES (?, ?, ?)`,
		sample.Ts.UnixMilli(), sample.Metric, sample.Value)
	if err != nil {
		return fmt.Errorf("storage.InsertSample: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetSeries(ctx context.Context, metric string, limit int) ([]domain.EquitySample, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, metric, value FROM analytics_timeseries
		WHERE metric = ? ORDER BY ts DESC LIMIT ?`, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetSeries: %w", err)
	}
	defer rows.Close()

	var samples []domain.EquitySample
	for rows.Next() {
		var s domain.EquitySample
		var ts int64
		if err := rows.Scan(&ts, &s.Metric, &s.Value); err != nil {
			return nil, fmt.Errorf("storage.GetSeries: scan: %w", err)
		}
		s.Ts = time.UnixMilli(ts)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (s *SQLiteStorage) RecordBalance(ctx context.Context, b domain.BalanceSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO balances (ts, usdc, exposure, equity) VALUES (?, ?, ?, ?)`,
		b.Ts.UnixMilli(), b.Usdc, b.Exposure, b.Equity)
	if err != nil {
		return fmt.Errorf("storage.RecordBalance: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) LatestBalance(ctx context.Context) (domain.BalanceSnapshot, bool, error) {
	var b domain.BalanceSnapshot
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT ts, usdc, exposure, equity FROM balances ORDER BY ts DESC LIMIT 1`).
		Scan(&ts, &b.Usdc, &b.Exposure, &b.Equity)
	if err == sql.ErrNoRows {
		return domain.BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return domain.BalanceSnapshot{}, false, fmt.Errorf("storage.LatestBalance: %w", err)
	}
	b.Ts = time.UnixMilli(ts)
	return b, true, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var pos domain.Position
	var resolved int
	var winner sql.NullInt64
	err := row.Scan(&pos.MarketID, &pos.Outcome, &pos.Size, &pos.AvgPrice, &pos.LastPrice,
		&pos.RealizedPnl, &pos.UnrealizedPnl, &resolved, &winner)
	if err != nil {
		return domain.Position{}, err
	}
	pos.Resolved = resolved != 0
	if winner.Valid {
		w := winner.Int64 != 0
		pos.Winner = &w
	}
	return pos, nil
}

func collectPositions(rows *sql.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func positionArgs(pos domain.Position) []any {
	var winner any
	if pos.Winner != nil {
		winner = boolToInt(*pos.Winner)
	}
	return []any{
		pos.MarketID, pos.Outcome, pos.Size, pos.AvgPrice, pos.LastPrice,
		pos.RealizedPnl, pos.UnrealizedPnl, boolToInt(pos.Resolved), winner,
	}
}

func marshalMeta(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
