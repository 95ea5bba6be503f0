package onchain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	nativeTransferGasLimit = uint64(21_000)

	// Gas price cache interval, keeps RPC chatter down.
	gasPriceUpdateInterval = 5 * time.Minute
)

// Wallet reads balances and sends native POL. Every outbound send is checked
// against the approved destination allowlist first.
type Wallet struct {
	client  *ethclient.Client
	privKey *ecdsa.PrivateKey
	address common.Address
	guard   *Guard

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewWallet connects to the given Polygon RPC. privateKeyHex may carry a
// 0x prefix.
func NewWallet(rpcURL, privateKeyHex string, guard *Guard) (*Wallet, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: decode private key: %w", err)
	}
	privKey, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid private key: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial rpc %s: %w", rpcURL, err)
	}

	return &Wallet{
		client:  client,
		privKey: privKey,
		address: crypto.PubkeyToAddress(privKey.PublicKey),
		guard:   guard,
	}, nil
}

// Address returns the wallet address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// UsdcBalance returns the USDC.e balance in whole USDC.
func (w *Wallet) UsdcBalance(ctx context.Context) (float64, error) {
	callData, err := erc20ABI.Pack("balanceOf", w.address)
	if err != nil {
		return 0, fmt.Errorf("wallet.UsdcBalance: pack: %w", err)
	}

	usdcAddr := common.HexToAddress(usdcEAddress)
	result, err := w.client.CallContract(ctx, ethereum.CallMsg{
		To:   &usdcAddr,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("wallet.UsdcBalance: call: %w", err)
	}

	vals, err := erc20ABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("wallet.UsdcBalance: unpack: %w", err)
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("wallet.UsdcBalance: unexpected balance type")
	}

	bal, _ := new(big.Float).Quo(
		new(big.Float).SetInt(raw),
		new(big.Float).SetFloat64(1e6),
	).Float64()
	return bal, nil
}

// PolBalance returns the native POL balance.
func (w *Wallet) PolBalance(ctx context.Context) (float64, error) {
	raw, err := w.client.BalanceAt(ctx, w.address, nil)
	if err != nil {
		return 0, fmt.Errorf("wallet.PolBalance: %w", err)
	}
	bal, _ := new(big.Float).Quo(
		new(big.Float).SetInt(raw),
		new(big.Float).SetFloat64(1e18),
	).Float64()
	return bal, nil
}

// SendNativePol sends amount POL to the given destination. The destination
// must be present in the approved allowlist or the send is refused before
// any RPC call happens.
func (w *Wallet) SendNativePol(ctx context.Context, to string, amount float64) (string, error) {
	if err := w.guard.AssertApproved(to); err != nil {
		return "", fmt.Errorf("wallet.SendNativePol: %w", err)
	}
	if amount <= 0 {
		return "", fmt.Errorf("wallet.SendNativePol: amount must be positive, got %f", amount)
	}

	wei, _ := new(big.Float).Mul(
		new(big.Float).SetFloat64(amount),
		new(big.Float).SetFloat64(1e18),
	).Int(nil)

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("wallet.SendNativePol: nonce: %w", err)
	}
	gasPrice, err := w.getGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("wallet.SendNativePol: gas price: %w", err)
	}

	toAddr := common.HexToAddress(to)
	tx := types.NewTransaction(nonce, toAddr, wei, nativeTransferGasLimit, gasPrice, nil)

	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), w.privKey)
	if err != nil {
		return "", fmt.Errorf("wallet.SendNativePol: sign: %w", err)
	}
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("wallet.SendNativePol: send: %w", err)
	}

	txHash := signed.Hash().Hex()
	slog.Info("wallet: native POL sent", "to", toAddr.Hex(), "amount", amount, "tx", txHash)
	return txHash, nil
}

// getGasPrice returns the suggested gas price with a 10% buffer, cached.
func (w *Wallet) getGasPrice(ctx context.Context) (*big.Int, error) {
	w.mu.RLock()
	cached := w.cachedGasWei
	updatedAt := w.gasUpdatedAt
	w.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return big.NewInt(30_000_000_000), nil // 30 gwei fallback
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	w.mu.Lock()
	w.cachedGasWei = buffered
	w.gasUpdatedAt = time.Now()
	w.mu.Unlock()

	return buffered, nil
}
