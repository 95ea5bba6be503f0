package ports

import "context"

// Wallet lee el estado on-chain de la cuenta del bot. Es una capability de
// solo-lectura para el core; el envío de fondos vive en el adapter.
type Wallet interface {
	// UsdcBalance devuelve el balance USDC.e disponible de la wallet.
	UsdcBalance(ctx context.Context) (float64, error)
}
