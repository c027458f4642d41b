// Package resolver locates upgradeable contracts through the proxy
// registry (MultiProxyController).
//
// Nothing is cached: implementations can be swapped out of band, so every
// Resolve asks the registry again.
package resolver

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"xdao.co/vaultseed/chain"
)

var funcProxyMap = w3.MustNewFunc("proxyMap(bytes32)", "string,address")

// Schemas supplies interface definitions by logical name.
// *artifacts.Store satisfies it.
type Schemas interface {
	Schema(name string) (*abi.ABI, error)
}

// Entry is a registry lookup result.
type Entry struct {
	Name    string
	Key     [KeySize]byte
	Address common.Address
	ABI     *abi.ABI
	// Label is the name string the registry stored alongside the address.
	Label string
}

type Resolver struct {
	caller   chain.Caller
	registry common.Address
	schemas  Schemas
}

func New(caller chain.Caller, registry common.Address, schemas Schemas) *Resolver {
	return &Resolver{caller: caller, registry: registry, schemas: schemas}
}

func (r *Resolver) Registry() common.Address { return r.registry }

// Resolve returns the current implementation of name together with its
// interface.
func (r *Resolver) Resolve(ctx context.Context, name string) (Entry, error) {
	e, err := r.Lookup(ctx, name)
	if err != nil {
		return e, err
	}
	schema, err := r.schemas.Schema(name)
	if err != nil {
		return e, &Error{Kind: KindMissingSchema, Name: name, Message: fmt.Sprintf("no interface for %q", name), Cause: err}
	}
	e.ABI = schema
	return e, nil
}

// Lookup queries the registry only; Entry.ABI is left nil.
func (r *Resolver) Lookup(ctx context.Context, name string) (Entry, error) {
	key, err := Key(name)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Name: name, Key: key}

	input, err := funcProxyMap.EncodeArgs(key)
	if err != nil {
		return e, &Error{Kind: KindQuery, Name: name, Message: "encode proxyMap", Cause: err}
	}
	out, err := r.caller.CallContract(ctx, r.registry, input)
	if err != nil {
		return e, &Error{Kind: KindQuery, Name: name, Message: fmt.Sprintf("proxyMap(%q) on %s", name, r.registry.Hex()), Cause: err}
	}
	if len(out) == 0 {
		return e, &Error{Kind: KindQuery, Name: name, Message: fmt.Sprintf("registry %s returned no data (no contract there?)", r.registry.Hex())}
	}
	if err := funcProxyMap.DecodeReturns(out, &e.Label, &e.Address); err != nil {
		return e, &Error{Kind: KindQuery, Name: name, Message: "decode proxyMap result", Cause: err}
	}
	if e.Address == (common.Address{}) {
		return e, &Error{Kind: KindUnregistered, Name: name, Message: fmt.Sprintf("%q is not registered in %s", name, r.registry.Hex())}
	}
	return e, nil
}
