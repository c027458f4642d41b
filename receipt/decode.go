package receipt

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is one decoded log.
type Event struct {
	Topic0 common.Hash
	// Args follow the shape's declared order. Indexed dynamic arguments
	// (string, bytes, arrays) only exist on chain as their hash and are
	// returned as common.Hash.
	Args []any
	Log  *types.Log
}

// Decode returns the first log in logs whose topic0 matches shape.
func Decode(logs []*types.Log, shape *Shape) (*Event, error) {
	for _, l := range logs {
		if l == nil || len(l.Topics) == 0 || l.Topics[0] != shape.Topic0 {
			continue
		}
		args, err := decodeArgs(l, shape)
		if err != nil {
			return nil, &DecodeError{
				Kind:      KindMalformedLog,
				Signature: shape.Signature,
				Index:     -1,
				Message:   fmt.Sprintf("log %d of %s: %v", l.Index, shape.Signature, err),
				Logs:      logs,
				Cause:     err,
			}
		}
		return &Event{Topic0: shape.Topic0, Args: args, Log: l}, nil
	}
	return nil, &DecodeError{
		Kind:      KindEventNotFound,
		Signature: shape.Signature,
		Index:     -1,
		Message:   fmt.Sprintf("no log with topic %s (%s) among %d logs", shape.Topic0.Hex(), shape.Signature, len(logs)),
		Logs:      logs,
	}
}

// DecodeAddress decodes the event and returns its argument at index as an
// address. It never returns the zero address alongside a nil error unless
// the event really carries it.
func DecodeAddress(logs []*types.Log, shape *Shape, index int) (common.Address, error) {
	ev, err := Decode(logs, shape)
	if err != nil {
		return common.Address{}, err
	}
	if index < 0 || index >= len(ev.Args) {
		return common.Address{}, &DecodeError{
			Kind:      KindArgumentIndexOutOfRange,
			Signature: shape.Signature,
			Index:     index,
			Message:   fmt.Sprintf("argument %d requested, %s has %d", index, shape.Signature, len(ev.Args)),
			Logs:      logs,
		}
	}
	addr, ok := ev.Args[index].(common.Address)
	if !ok {
		return common.Address{}, &DecodeError{
			Kind:      KindArgumentType,
			Signature: shape.Signature,
			Index:     index,
			Message:   fmt.Sprintf("argument %d is %s, not address", index, typeName(shape.Args[index].Type)),
			Logs:      logs,
		}
	}
	return addr, nil
}

func decodeArgs(l *types.Log, shape *Shape) ([]any, error) {
	if want := 1 + shape.indexedCount(); len(l.Topics) != want {
		return nil, fmt.Errorf("have %d topics, want %d", len(l.Topics), want)
	}

	data, err := shape.Args.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}

	out := make([]any, 0, len(shape.Args))
	topic, field := 1, 0
	for _, arg := range shape.Args {
		if !arg.Indexed {
			out = append(out, data[field])
			field++
			continue
		}
		v, err := decodeTopic(arg, l.Topics[topic])
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", topic, err)
		}
		out = append(out, v)
		topic++
	}
	return out, nil
}

// decodeTopic decodes an indexed argument. Static values are stored in the
// topic as their 32-byte ABI encoding; everything else is stored hashed.
func decodeTopic(arg abi.Argument, topic common.Hash) (any, error) {
	switch arg.Type.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.ArrayTy, abi.TupleTy:
		return topic, nil
	}
	vals, err := abi.Arguments{{Type: arg.Type}}.Unpack(topic.Bytes())
	if err != nil {
		return nil, err
	}
	return vals[0], nil
}

// typeName renders t by kind. Types parsed from human-readable signatures
// carry no string form of their own.
func typeName(t abi.Type) string {
	switch t.T {
	case abi.AddressTy:
		return "address"
	case abi.BoolTy:
		return "bool"
	case abi.StringTy:
		return "string"
	case abi.BytesTy:
		return "bytes"
	case abi.HashTy:
		return "hash"
	case abi.FunctionTy:
		return "function"
	case abi.UintTy:
		return fmt.Sprintf("uint%d", t.Size)
	case abi.IntTy:
		return fmt.Sprintf("int%d", t.Size)
	case abi.FixedBytesTy:
		return fmt.Sprintf("bytes%d", t.Size)
	case abi.SliceTy:
		return typeName(*t.Elem) + "[]"
	case abi.ArrayTy:
		return fmt.Sprintf("%s[%d]", typeName(*t.Elem), t.Size)
	case abi.TupleTy:
		return "tuple"
	}
	return fmt.Sprintf("type(%d)", t.T)
}
