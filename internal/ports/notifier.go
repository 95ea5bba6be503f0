package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Notifier entrega trades ejecutados, alertas de riesgo y errores de
// sistema al usuario (Telegram, consola).
type Notifier interface {
	NotifyTrade(ctx context.Context, t domain.Trade) error
	NotifyAlert(ctx context.Context, a domain.Alert) error
	NotifyError(ctx context.Context, e domain.SystemError) error
}
