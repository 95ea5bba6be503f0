package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Storage persiste trades, posiciones, redemptions y las series de
// analytics. Las implementaciones deben respetar la semántica de upsert de
// positions (PK market_id+outcome) y el last-write-wins de la serie
// temporal (PK ts+metric).
type Storage interface {
	// RecordFill guarda el trade y el upsert de la posición en UNA sola
	// transacción: un lector nunca ve el trade sin su posición ni al revés.
	RecordFill(ctx context.Context, trade domain.Trade, pos domain.Position) error

	GetPosition(ctx context.Context, marketID, outcome string) (domain.Position, bool, error)

	// OpenPositions devuelve las posiciones con resolved=0 del mercado.
	OpenPositions(ctx context.Context, marketID string) ([]domain.Position, error)

	ListPositions(ctx context.Context) ([]domain.Position, error)

	// MarkPosition actualiza solo last_price y unrealized_pnl. Es la única
	// mutación de positions permitida fuera del executor y el reconciler.
	MarkPosition(ctx context.Context, marketID, outcome string, lastPrice, unrealizedPnl float64) error

	// SettlePosition finaliza la posición y registra su redemption en una
	// sola transacción.
	SettlePosition(ctx context.Context, pos domain.Position, red domain.Redemption) error

	ListTrades(ctx context.Context, limit int) ([]domain.Trade, error)

	InsertObservation(ctx context.Context, obs domain.EdgeObservation) error

	// SettleObservations marca las observaciones del mercado como settled y
	// anota si el lado comprado resultó ganador.
	SettleObservations(ctx context.Context, marketID, winningOutcome string) error

	// EdgeAccuracy es la fracción de observaciones settled que acertaron.
	EdgeAccuracy(ctx context.Context) (float64, error)

	ObservationStats(ctx context.Context) (domain.Efficiency, error)

	// Exposure es SUM(size*avg_price) sobre posiciones sin resolver.
	Exposure(ctx context.Context) (float64, error)

	InsertSample(ctx context.Context, s domain.EquitySample) error
	GetSeries(ctx context.Context, metric string, limit int) ([]domain.EquitySample, error)

	RecordBalance(ctx context.Context, b domain.BalanceSnapshot) error
	LatestBalance(ctx context.Context) (domain.BalanceSnapshot, bool, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
