// Package receipt decodes contract events out of confirmed transaction
// receipts.
//
// Decoding is driven by an explicit Shape rather than by probing every log
// against a set of candidate events: the caller names the event it expects
// and the argument it wants, and gets back either that value or a
// *DecodeError saying which part of the expectation the receipt broke.
package receipt

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

// VaultCreatedSignature is the factory's vault creation event.
const VaultCreatedSignature = "VaultCreated(uint256 indexed vaultId, address curator, address vaultAddress, address assetAddress, string name, string symbol)"

// VaultCreatedTopic is keccak256 of the canonical VaultCreated signature.
var VaultCreatedTopic = common.HexToHash("0x7ba4daf113dab617fb46d5bf414c46f4e17aa717bce3c75bacbad12baef0233c")

// VaultAddressArg is the position of vaultAddress in VaultCreated.
const VaultAddressArg = 2

// VaultCreated is the shape of the factory's creation event.
var VaultCreated = MustNewShape(VaultCreatedSignature)

// Shape describes one event: its signature, topic0 and the ordered argument
// layout with indexed flags.
type Shape struct {
	Signature string
	Topic0    common.Hash
	Args      abi.Arguments
}

// NewShape parses a human-readable event signature such as
// "Transfer(address indexed from, address indexed to, uint256 value)".
func NewShape(signature string) (*Shape, error) {
	ev, err := w3.NewEvent(signature)
	if err != nil {
		return nil, fmt.Errorf("receipt: parse event %q: %w", signature, err)
	}
	return &Shape{Signature: signature, Topic0: ev.Topic0, Args: ev.Args}, nil
}

func MustNewShape(signature string) *Shape {
	s, err := NewShape(signature)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Shape) indexedCount() int {
	n := 0
	for _, a := range s.Args {
		if a.Indexed {
			n++
		}
	}
	return n
}
