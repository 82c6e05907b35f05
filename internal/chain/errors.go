package chain

import (
	"errors"
	"fmt"
	"strings"
)

// TxErrorKind classifies transaction submission failures.
type TxErrorKind string

const (
	// KindTransport covers RPC transport failures (node unreachable,
	// connection dropped mid-call).
	KindTransport TxErrorKind = "transport"

	// KindRejected covers transactions the chain refused or reverted.
	KindRejected TxErrorKind = "rejected"

	// KindInsufficientFunds means the account cannot cover gas + value. The
	// nonce was never consumed.
	KindInsufficientFunds TxErrorKind = "insufficient_funds"

	// KindStaleNonce means the local nonce counter fell behind the chain.
	KindStaleNonce TxErrorKind = "stale_nonce"

	// KindReceiptTimeout means the transaction was broadcast but no receipt
	// arrived within the polling budget. The next monitor cycle reconciles
	// via an authoritative balance read.
	KindReceiptTimeout TxErrorKind = "receipt_timeout"
)

// TxError tags a submission failure with its classification.
type TxError struct {
	Kind TxErrorKind
	Err  error
}

func (e *TxError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tx error (%s)", e.Kind)
	}
	return fmt.Sprintf("tx error (%s): %v", e.Kind, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// IsKind reports whether err is a TxError of the given kind.
func IsKind(err error, kind TxErrorKind) bool {
	var txErr *TxError
	return errors.As(err, &txErr) && txErr.Kind == kind
}

// classifySendError maps node error messages onto the taxonomy. Nodes differ
// in exact wording, so matching is substring-based and case-insensitive.
func classifySendError(err error) TxErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return KindInsufficientFunds
	case strings.Contains(msg, "nonce too low"):
		return KindStaleNonce
	case strings.Contains(msg, "connection"), strings.Contains(msg, "eof"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "context deadline"):
		return KindTransport
	default:
		return KindRejected
	}
}
