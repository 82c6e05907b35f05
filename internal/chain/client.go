package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Client wraps an ethclient connection with the read and subscription
// operations the bot needs. Safe for concurrent use.
type Client struct {
	eth     *ethclient.Client
	account common.Address
	factory common.Address
}

// Dial connects to the node at url (ws:// for subscriptions).
func Dial(ctx context.Context, url string, account, factory common.Address) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial node: %w", err)
	}
	return &Client{eth: eth, account: account, factory: factory}, nil
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Eth exposes the raw ethclient for the submitter.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// Account returns the bot account address.
func (c *Client) Account() common.Address {
	return c.account
}

// AccountBalance returns the native-asset balance of the bot account.
func (c *Client) AccountBalance(ctx context.Context) (decimal.Decimal, error) {
	bal, err := c.eth.BalanceAt(ctx, c.account, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", c.account, err)
	}
	return decimal.NewFromBigInt(bal, 0), nil
}

// TokenBalance returns the bot account's ERC-20 balance of token.
func (c *Client) TokenBalance(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	data, err := erc20ABI.Pack("balanceOf", c.account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("call balanceOf %s: %w", token, err)
	}
	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unpack balanceOf: %w", err)
	}
	return decimal.NewFromBigInt(results[0].(*big.Int), 0), nil
}

// GetReserves returns the current reserve snapshot of a pair.
func (c *Client) GetReserves(ctx context.Context, pair common.Address) (Reserve, error) {
	data, err := pairABI.Pack("getReserves")
	if err != nil {
		return Reserve{}, fmt.Errorf("pack getReserves: %w", err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &pair, Data: data}, nil)
	if err != nil {
		return Reserve{}, fmt.Errorf("call getReserves %s: %w", pair, err)
	}
	results, err := pairABI.Unpack("getReserves", out)
	if err != nil {
		return Reserve{}, fmt.Errorf("unpack getReserves: %w", err)
	}
	return Reserve{
		Reserve0: decimal.NewFromBigInt(results[0].(*big.Int), 0),
		Reserve1: decimal.NewFromBigInt(results[1].(*big.Int), 0),
	}, nil
}

// CallContract forwards a raw eth_call; used by the honeypot simulator check.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, nil)
}

// SubscribePairCreated subscribes to the factory's PairCreated logs, decoding
// each and invoking arrive on the delivery goroutine. The returned
// subscription's Err channel reports transport failures; the watcher owns
// reconnects. The delivery goroutine exits when ctx is cancelled, so callers
// must cancel it once they abandon the subscription.
func (c *Client) SubscribePairCreated(ctx context.Context, arrive func(PairCreated)) (ethereum.Subscription, error) {
	logs := make(chan types.Log, 64)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.factory},
		Topics:    [][]common.Hash{{pairCreatedTopic}},
	}
	sub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe factory logs: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case lg := <-logs:
				ev, ok := decodePairCreated(lg)
				if !ok {
					log.Warn().Str("tx", lg.TxHash.Hex()).Msg("chain: undecodable PairCreated log")
					continue
				}
				arrive(ev)
			}
		}
	}()

	return sub, nil
}

// decodePairCreated extracts (token0, token1, pair) from a factory log.
// token0/token1 are indexed topics; the pair address is the first data word.
func decodePairCreated(lg types.Log) (PairCreated, bool) {
	if len(lg.Topics) < 3 || len(lg.Data) < 32 {
		return PairCreated{}, false
	}
	return PairCreated{
		Token0: common.BytesToAddress(lg.Topics[1].Bytes()),
		Token1: common.BytesToAddress(lg.Topics[2].Bytes()),
		Pair:   common.BytesToAddress(lg.Data[:32]),
	}, true
}
