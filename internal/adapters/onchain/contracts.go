// Package onchain watches Polygon for wallet transfers and Polymarket market
// resolutions, and exposes a guarded wallet for balance reads and native POL
// sends.
package onchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	polygonChainID = int64(137)

	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// CTF contract — holds conditional tokens (ERC1155) and emits
	// ConditionResolution when the oracle reports payouts
	ctfAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
)

// Event signatures matched against log topic[0].
var (
	transferSig   = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	resolutionSig = crypto.Keccak256Hash([]byte("ConditionResolution(bytes32,bytes32,uint256[])"))
)

// Contract ABIs
var (
	erc20ABI      abi.ABI
	resolutionABI abi.ABI
)

func init() {
	var err error

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}

	resolutionABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "ConditionResolution",
			"type": "event",
			"inputs": [
				{"name": "conditionId", "type": "bytes32", "indexed": true},
				{"name": "questionId", "type": "bytes32", "indexed": true},
				{"name": "payoutNumerators", "type": "uint256[]", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic("resolution abi parse: " + err.Error())
	}
}
