package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	// KindReverted: the transaction was mined with status 0. Never retried.
	KindReverted Kind = "TransactionReverted"
	// KindConfirmationTimeout: no receipt within the configured bound after
	// every re-await of the same hash. The transaction may still be mined.
	KindConfirmationTimeout Kind = "ConfirmationTimeout"
	// KindSubmit: signing or submission failed; no nonce was consumed.
	KindSubmit Kind = "SubmissionFailed"
	// KindReceipt: the ledger failed while the receipt of a submitted
	// transaction was being fetched. The transaction may still be mined.
	KindReceipt Kind = "ReceiptUnavailable"
	// KindCall: a read-only call failed.
	KindCall Kind = "CallFailed"
)

type Error struct {
	Kind    Kind
	TxHash  common.Hash
	Receipt *types.Receipt
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}
