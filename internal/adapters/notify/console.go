package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Console implementa ports.Notifier escribiendo a stdout. También expone
// los reportes tabulares de posiciones y portfolio que usa el arranque y
// el shutdown.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifyTrade imprime una línea por trade ejecutado.
func (c *Console) NotifyTrade(_ context.Context, t domain.Trade) error {
	fmt.Fprintf(c.out, "[%s] TRADE %s %s/%s size $%.2f @ %.4f edge %.4f kelly %.4f\n",
		t.Ts.Format("15:04:05"), t.Side, t.MarketID, t.Outcome,
		t.Size, t.Price, t.Edge, t.Kelly)
	return nil
}

// NotifyAlert imprime alertas de riesgo ya filtradas por el debounce.
func (c *Console) NotifyAlert(_ context.Context, a domain.Alert) error {
	fmt.Fprintf(c.out, "[%s] ALERT %s: %s (value %.4f, threshold %.4f)\n",
		a.Ts.Format("15:04:05"), a.Type, a.Message, a.Value, a.Threshold)
	return nil
}

// NotifyError imprime errores no fatales de los adapters.
func (c *Console) NotifyError(_ context.Context, e domain.SystemError) error {
	fmt.Fprintf(c.out, "[%s] ERROR [%s] %s\n", e.Ts.Format("15:04:05"), e.Module, e.Err)
	return nil
}

// PrintPositions imprime la tabla de posiciones abiertas y resueltas.
func (c *Console) PrintPositions(positions []domain.Position) {
	if len(positions) == 0 {
		fmt.Fprintf(c.out, "[%s] no positions\n", time.Now().Format("15:04:05"))
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Outcome", "Size", "Avg", "Last", "uPnL", "rPnL", "Status")

	for _, p := range positions {
		status := "OPEN"
		if p.Resolved {
			status = "LOST"
			if p.Winner != nil && *p.Winner {
				status = "WON"
			}
		}
		table.Append(
			shortID(p.MarketID),
			p.Outcome,
			fmt.Sprintf("$%.2f", p.Size),
			fmt.Sprintf("%.4f", p.AvgPrice),
			fmt.Sprintf("%.4f", p.LastPrice),
			fmt.Sprintf("$%.4f", p.UnrealizedPnl),
			fmt.Sprintf("$%.4f", p.RealizedPnl),
			status,
		)
	}
	table.Render()
}

// PrintPortfolio imprime el resumen de equity y PnL.
func (c *Console) PrintPortfolio(equity float64, pnl domain.PnL, exposure float64, openPositions int) {
	fmt.Fprintf(c.out, "\n=== PORTFOLIO ===\n")
	fmt.Fprintf(c.out, "  Equity:      $%.2f\n", equity)
	fmt.Fprintf(c.out, "  Realized:    $%.4f\n", pnl.Realized)
	fmt.Fprintf(c.out, "  Unrealized:  $%.4f\n", pnl.Unrealized)
	fmt.Fprintf(c.out, "  Exposure:    $%.2f en %d posiciones abiertas\n", exposure, openPositions)
	fmt.Fprintln(c.out)
}

func shortID(s string) string {
	if len(s) > 14 {
		return s[:12] + "..."
	}
	return s
}
