package receipt

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
)

// Kind is a stable category for decode failures.
type Kind string

const (
	KindEventNotFound           Kind = "EventNotFound"
	KindArgumentIndexOutOfRange Kind = "ArgumentIndexOutOfRange"
	KindMalformedLog            Kind = "MalformedLog"
	KindArgumentType            Kind = "ArgumentType"
)

// DecodeError reports a mismatch between the expected event and the logs a
// receipt actually carries. None of these are retryable.
//
// Logs holds the raw logs that were searched.
type DecodeError struct {
	Kind      Kind
	Signature string
	Index     int
	Message   string
	Logs      []*types.Log
	Cause     error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("receipt: %s: %s", e.Kind, e.Message)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsKind reports whether err is a *DecodeError of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == kind
}
