package resolver

import (
	"fmt"
	"unicode/utf8"
)

// KeySize is the width of a registry key (bytes32).
const KeySize = 32

// Key derives the registry key for a logical name: its UTF-8 bytes,
// zero-padded on the right to 32 bytes. The last byte is kept as a
// terminator, so names are limited to 31 bytes. Names that do not fit are
// rejected rather than truncated.
func Key(name string) ([KeySize]byte, error) {
	var key [KeySize]byte
	switch {
	case name == "":
		return key, &Error{Kind: KindInvalidName, Name: name, Message: "empty registry name"}
	case !utf8.ValidString(name):
		return key, &Error{Kind: KindInvalidName, Name: name, Message: fmt.Sprintf("registry name %q is not valid UTF-8", name)}
	case len(name) > KeySize-1:
		return key, &Error{Kind: KindInvalidName, Name: name, Message: fmt.Sprintf("registry name %q is %d bytes, limit is %d", name, len(name), KeySize-1)}
	}
	copy(key[:], name)
	return key, nil
}
