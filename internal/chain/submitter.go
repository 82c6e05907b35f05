package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
)

// Backend is the node surface the submitter depends on. ethclient.Client
// satisfies it; tests use a scripted fake.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Call describes one contract invocation to submit.
type Call struct {
	To       common.Address
	Data     []byte
	Value    *big.Int // nil means 0
	GasLimit uint64
}

// SubmitterConfig tunes gas pricing and the receipt-polling fallback.
type SubmitterConfig struct {
	ChainID         *big.Int
	GasPrice        *big.Int
	ReceiptMaxTries int
	ReceiptDelay    time.Duration
}

// Submitter owns the process-local nonce counter and pushes signed
// transactions through the node. It is the only path by which the account's
// balances change on-chain. Submissions are serialized under a mutex so
// concurrent callers cannot corrupt nonce ordering.
type Submitter struct {
	backend Backend
	key     *ecdsa.PrivateKey
	account common.Address
	signer  types.Signer
	cfg     SubmitterConfig

	mu    sync.Mutex
	nonce uint64
}

// NewSubmitter initializes the nonce counter from the chain's pending count.
func NewSubmitter(ctx context.Context, backend Backend, key *ecdsa.PrivateKey, cfg SubmitterConfig) (*Submitter, error) {
	account := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := backend.PendingNonceAt(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("fetch initial nonce: %w", err)
	}

	log.Info().Str("account", account.Hex()).Uint64("nonce", nonce).
		Msg("submitter: initialized")

	return &Submitter{
		backend: backend,
		key:     key,
		account: account,
		signer:  types.LatestSignerForChainID(cfg.ChainID),
		cfg:     cfg,
		nonce:   nonce,
	}, nil
}

// Account returns the submitting account address.
func (s *Submitter) Account() common.Address {
	return s.account
}

// Nonce returns the current local nonce counter. Test hook.
func (s *Submitter) Nonce() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce
}

// Submit signs and broadcasts the call, then polls for the receipt.
//
// Nonce protocol: the counter is incremented optimistically before each
// broadcast. A pre-broadcast "insufficient funds" rolls it back (the nonce
// was never consumed). A "nonce too low" re-fetches the authoritative value
// from the chain and retries the same call exactly once. Transport failures
// after signing fall through to receipt polling, since the node may have
// accepted the transaction without confirming it to us.
func (s *Submitter) Submit(ctx context.Context, call Call) (*types.Receipt, error) {
	hash, err := s.broadcast(ctx, call)
	if err != nil {
		return nil, err
	}
	return s.pollReceipt(ctx, hash)
}

// broadcast signs and sends under the nonce mutex, so a rollback always
// restores the exact pre-call counter and concurrent submissions cannot
// interleave nonces.
func (s *Submitter) broadcast(ctx context.Context, call Call) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonceRetried := false
	for {
		nonce := s.nonce
		s.nonce++

		tx, err := s.sign(call, nonce)
		if err != nil {
			s.nonce = nonce
			return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
		}

		err = s.backend.SendTransaction(ctx, tx)
		if err == nil {
			log.Info().
				Str("hash", tx.Hash().Hex()).
				Uint64("nonce", nonce).
				Str("gas_price", s.cfg.GasPrice.String()).
				Msg("submitter: transaction sent")
			return tx.Hash(), nil
		}

		switch kind := classifySendError(err); kind {
		case KindInsufficientFunds:
			// Never broadcast; the nonce was not consumed.
			s.nonce = nonce
			return common.Hash{}, &TxError{Kind: kind, Err: err}

		case KindStaleNonce:
			if nonceRetried {
				return common.Hash{}, &TxError{Kind: kind, Err: err}
			}
			nonceRetried = true
			log.Warn().Err(err).Uint64("nonce", nonce).
				Msg("submitter: stale nonce, re-syncing with chain")
			fresh, nerr := s.backend.PendingNonceAt(ctx, s.account)
			if nerr != nil {
				return common.Hash{}, &TxError{Kind: KindTransport, Err: nerr}
			}
			s.nonce = fresh
			continue

		case KindTransport:
			// The node may have accepted the transaction before the
			// connection failed. Keep the nonce and let the receipt poll
			// decide.
			log.Warn().Err(err).Str("hash", tx.Hash().Hex()).
				Msg("submitter: transport error on send, falling back to receipt polling")
			return tx.Hash(), nil

		default:
			return common.Hash{}, &TxError{Kind: KindRejected, Err: err}
		}
	}
}

func (s *Submitter) sign(call Call, nonce uint64) (*types.Transaction, error) {
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	return types.SignNewTx(s.key, s.signer, &types.LegacyTx{
		Nonce:    nonce,
		To:       &call.To,
		Value:    value,
		Gas:      call.GasLimit,
		GasPrice: s.cfg.GasPrice,
		Data:     call.Data,
	})
}

// pollReceipt fetches the receipt at a fixed interval up to the configured
// budget, converting "never responds" into a definite failure.
func (s *Submitter) pollReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for try := 0; try < s.cfg.ReceiptMaxTries; try++ {
		select {
		case <-ctx.Done():
			return nil, &TxError{Kind: KindTransport, Err: ctx.Err()}
		case <-time.After(s.cfg.ReceiptDelay):
		}

		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.Warn().Err(err).Str("hash", hash.Hex()).Int("try", try+1).
				Msg("submitter: receipt fetch failed")
			continue
		}
		if receipt == nil {
			continue
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return nil, &TxError{Kind: KindRejected,
				Err: fmt.Errorf("transaction %s reverted", hash.Hex())}
		}
		return receipt, nil
	}

	return nil, &TxError{Kind: KindReceiptTimeout,
		Err: fmt.Errorf("no receipt for %s after %d tries", hash.Hex(), s.cfg.ReceiptMaxTries)}
}
