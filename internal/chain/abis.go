package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Minimal ABI fragments for the PancakeSwap V2 surface the bot touches.
const (
	routerABIJSON = `[
		{"name":"swapExactETHForTokens","type":"function","stateMutability":"payable",
		 "inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},
		           {"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
		 "outputs":[{"name":"amounts","type":"uint256[]"}]},
		{"name":"swapExactTokensForETHSupportingFeeOnTransferTokens","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
		           {"name":"path","type":"address[]"},{"name":"to","type":"address"},
		           {"name":"deadline","type":"uint256"}],
		 "outputs":[]}
	]`

	erc20ABIJSON = `[
		{"name":"approve","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
		 "outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view",
		 "inputs":[{"name":"account","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]}
	]`

	pairABIJSON = `[
		{"name":"getReserves","type":"function","stateMutability":"view",
		 "inputs":[],
		 "outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},
		            {"name":"blockTimestampLast","type":"uint32"}]},
		{"name":"Swap","type":"event","anonymous":false,
		 "inputs":[{"name":"sender","type":"address","indexed":true},
		           {"name":"amount0In","type":"uint256","indexed":false},
		           {"name":"amount1In","type":"uint256","indexed":false},
		           {"name":"amount0Out","type":"uint256","indexed":false},
		           {"name":"amount1Out","type":"uint256","indexed":false},
		           {"name":"to","type":"address","indexed":true}]}
	]`
)

var (
	routerABI = mustParseABI(routerABIJSON)
	erc20ABI  = mustParseABI(erc20ABIJSON)
	pairABI   = mustParseABI(pairABIJSON)

	// PairCreated(address indexed token0, address indexed token1, address pair, uint)
	pairCreatedTopic = crypto.Keccak256Hash([]byte("PairCreated(address,address,address,uint256)"))
	swapTopic        = pairABI.Events["Swap"].ID
)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic("chain: invalid ABI fragment: " + err.Error())
	}
	return parsed
}

// maxApproval is the unlimited ERC-20 allowance (2^256 - 1).
var maxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
