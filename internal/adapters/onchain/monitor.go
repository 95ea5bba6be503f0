package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/circuit"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

const (
	breakerThreshold = 5
	breakerCooldown  = 20 * time.Second
	resubscribeWait  = 5 * time.Second
)

// Monitor subscribes to USDC.e and CTF logs over a websocket RPC and
// publishes wallet transfers and market resolutions on the bus. Transfer
// noise is gated behind a circuit breaker while the subscription flaps;
// resolutions always go through because settlement must not be dropped.
type Monitor struct {
	rpcURL  string
	wallet  common.Address
	bus     *bus.Bus
	breaker *circuit.Breaker
}

func NewMonitor(rpcURL, walletAddress string, b *bus.Bus) *Monitor {
	return &Monitor{
		rpcURL:  rpcURL,
		wallet:  common.HexToAddress(walletAddress),
		bus:     b,
		breaker: circuit.New(breakerThreshold, breakerCooldown),
	}
}

// Start connects and processes logs until ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, m.rpcURL)
	if err != nil {
		return fmt.Errorf("onchain.Monitor: dial %s: %w", m.rpcURL, err)
	}
	defer client.Close()

	query := ethereum.FilterQuery{
		Addresses: []common.Address{
			common.HexToAddress(usdcEAddress),
			common.HexToAddress(ctfAddress),
		},
	}

	for {
		logs := make(chan types.Log, 256)
		sub, err := client.SubscribeFilterLogs(ctx, query, logs)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.breaker.OnFailure()
			slog.Error("chain monitor: subscribe failed, retrying", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(resubscribeWait):
			}
			continue
		}
		slog.Info("chain monitor started", "wallet", m.wallet.Hex())

		err = m.pump(ctx, sub, logs)
		sub.Unsubscribe()
		if ctx.Err() != nil {
			return nil
		}
		m.breaker.OnFailure()
		slog.Error("chain monitor: subscription dropped, resubscribing", "err", err)
		m.bus.PublishError(domain.SystemError{Module: "chain-monitor", Err: err.Error(), Ts: time.Now()})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeWait):
		}
	}
}

func (m *Monitor) pump(ctx context.Context, sub ethereum.Subscription, logs <-chan types.Log) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case lg := <-logs:
			m.breaker.OnSuccess()
			m.handleLog(lg)
		}
	}
}

func (m *Monitor) handleLog(lg types.Log) {
	if len(lg.Topics) == 0 {
		return
	}
	switch lg.Topics[0] {
	case resolutionSig:
		m.handleResolution(lg)
	case transferSig:
		if !m.breaker.CanExecute() {
			return
		}
		m.handleTransfer(lg)
	}
}

// handleTransfer publishes ERC20/ERC1155-style transfers that touch the
// tracked wallet. Everything else on these contracts is ignored.
func (m *Monitor) handleTransfer(lg types.Log) {
	if len(lg.Topics) < 3 {
		return
	}
	from := common.BytesToAddress(lg.Topics[1].Bytes())
	to := common.BytesToAddress(lg.Topics[2].Bytes())
	if from != m.wallet && to != m.wallet {
		return
	}

	value := new(big.Int).SetBytes(lg.Data)
	token := "CTF"
	amount := value.String()
	if lg.Address == common.HexToAddress(usdcEAddress) {
		token = "USDC"
		amount = formatUnits(value, 6)
	}

	m.bus.PublishTransfer(domain.Transfer{
		Token:  token,
		From:   from.Hex(),
		To:     to.Hex(),
		Value:  amount,
		TxHash: lg.TxHash.Hex(),
		Ts:     time.Now(),
	})
}

// handleResolution decodes payout numerators and publishes the winning
// outcome index. Ties or all-zero payouts are skipped.
func (m *Monitor) handleResolution(lg types.Log) {
	if len(lg.Topics) < 2 {
		return
	}
	conditionID := lg.Topics[1].Hex()

	vals, err := resolutionABI.Events["ConditionResolution"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil || len(vals) == 0 {
		slog.Warn("chain monitor: undecodable resolution event", "tx", lg.TxHash.Hex(), "err", err)
		return
	}
	numerators, ok := vals[0].([]*big.Int)
	if !ok {
		return
	}

	winning := -1
	for i, n := range numerators {
		if n.Sign() > 0 {
			if winning >= 0 {
				// Split payout, not a clean win. Leave it to manual review.
				return
			}
			winning = i
		}
	}
	if winning < 0 {
		return
	}

	// Binary markets map partition index 0/1 to YES/NO, which is how
	// positions are keyed. Multi-outcome markets keep the raw index.
	outcome := strconv.Itoa(winning)
	if len(numerators) == 2 {
		outcome = "NO"
		if winning == 0 {
			outcome = "YES"
		}
	}

	slog.Info("chain monitor: market resolved", "condition", conditionID, "winning_outcome", outcome)
	m.bus.PublishResolution(domain.Resolution{
		MarketID:       conditionID,
		WinningOutcome: outcome,
		Ts:             time.Now(),
	})
}

// formatUnits renders a raw token amount with the given decimals.
func formatUnits(v *big.Int, decimals int) string {
	f := new(big.Float).Quo(
		new(big.Float).SetInt(v),
		new(big.Float).SetFloat64(float64pow10(decimals)),
	)
	return f.Text('f', decimals)
}

func float64pow10(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}
