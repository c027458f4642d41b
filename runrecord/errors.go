package runrecord

import "errors"

type Kind string

const (
	// KindAlreadyRun: the plan's CID is already in the store.
	KindAlreadyRun Kind = "AlreadyRun"
	KindStore      Kind = "RecordStore"
)

type Error struct {
	Kind    Kind
	CID     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "runrecord: " + string(e.Kind) + ": " + e.Message
	if e.CID != "" {
		msg += " (" + e.CID + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func IsKind(err error, kind Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == kind
}
