package resolver

import "errors"

type Kind string

const (
	// KindInvalidName: the name cannot be encoded as a registry key. This is
	// a configuration error.
	KindInvalidName Kind = "InvalidName"
	// KindUnregistered: the registry maps the key to the zero address.
	KindUnregistered Kind = "UnregisteredName"
	// KindMissingSchema: the name resolved but no interface is known for it.
	KindMissingSchema Kind = "MissingSchema"
	// KindQuery: the registry call itself failed or returned garbage.
	KindQuery Kind = "RegistryQuery"
)

type Error struct {
	Kind    Kind
	Name    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return "resolver: " + e.Message + ": " + e.Cause.Error()
	}
	return "resolver: " + e.Message
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
