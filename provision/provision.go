// Package provision deploys and seeds the ERC-721 mocks that back each
// vault.
package provision

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"xdao.co/vaultseed/chain"
)

type Kind string

const (
	KindStandard     Kind = "standard"
	KindMetadataLess Kind = "metadata-less"
)

// Contract names the mock artifact deployed for k.
func (k Kind) Contract() (string, error) {
	switch k {
	case KindStandard:
		return "StandardMockNFT", nil
	case KindMetadataLess:
		return "NoURIMockNFT", nil
	}
	return "", fmt.Errorf("provision: unknown asset kind %q", k)
}

// Artifacts supplies creation code and interfaces by contract name.
// *artifacts.Store satisfies it.
type Artifacts interface {
	Bytecode(name string) ([]byte, error)
	Schema(name string) (*abi.ABI, error)
}

// Asset is a deployed asset contract. Owner is the account that deployed it.
type Asset struct {
	Address  common.Address
	Contract string
	ABI      *abi.ABI
	Owner    common.Address
	DeployTx common.Hash
}

type Mint struct {
	Holder  common.Address
	TokenID uint64
}

type Request struct {
	Kind    Kind
	Name    string
	Symbol  string
	BaseURI string
	Mints   []Mint
}

type GasLimits struct {
	Deploy     uint64
	SetBaseURI uint64
	Mint       uint64
}

func DefaultGasLimits() GasLimits {
	return GasLimits{Deploy: 3_000_000, SetBaseURI: 200_000, Mint: 200_000}
}

type Provisioner struct {
	op        *chain.Operator
	artifacts Artifacts
	gas       GasLimits
	log       zerolog.Logger
}

func New(op *chain.Operator, artifacts Artifacts, gas GasLimits, log zerolog.Logger) *Provisioner {
	return &Provisioner{op: op, artifacts: artifacts, gas: gas, log: log}
}

// Provision deploys the asset, sets its base URI (standard kind only) and
// mints every token in order. Each step is confirmed before the next one
// is sent. On error the returned Asset is whatever had been built so far.
func (p *Provisioner) Provision(ctx context.Context, req Request) (Asset, error) {
	asset, err := p.Deploy(ctx, req.Kind, req.Name, req.Symbol)
	if err != nil {
		return asset, err
	}
	if req.Kind == KindStandard && req.BaseURI != "" {
		if err := p.SetBaseURI(ctx, asset, req.BaseURI); err != nil {
			return asset, err
		}
	}
	for _, m := range req.Mints {
		if err := p.Mint(ctx, asset, m); err != nil {
			return asset, err
		}
	}
	return asset, nil
}

func (p *Provisioner) Deploy(ctx context.Context, kind Kind, name, symbol string) (Asset, error) {
	contract, err := kind.Contract()
	if err != nil {
		return Asset{}, err
	}
	code, err := p.artifacts.Bytecode(contract)
	if err != nil {
		return Asset{}, err
	}
	schema, err := p.artifacts.Schema(contract)
	if err != nil {
		return Asset{}, err
	}
	ctor, err := schema.Pack("", name, symbol)
	if err != nil {
		return Asset{}, fmt.Errorf("provision: encode %s constructor: %w", contract, err)
	}

	receipt, addr, err := p.op.Deploy(ctx, append(code, ctor...), p.gas.Deploy)
	if err != nil {
		return Asset{}, fmt.Errorf("deploy %s %q: %w", contract, name, err)
	}
	asset := Asset{Address: addr, Contract: contract, ABI: schema, Owner: p.op.Address(), DeployTx: receipt.TxHash}
	p.log.Info().Str("contract", contract).Str("name", name).Str("address", addr.Hex()).Msg("asset deployed")
	return asset, nil
}

func (p *Provisioner) SetBaseURI(ctx context.Context, asset Asset, uri string) error {
	if _, ok := asset.ABI.Methods["setBaseURI"]; !ok {
		return fmt.Errorf("provision: %s has no setBaseURI", asset.Contract)
	}
	return p.transact(ctx, asset, p.gas.SetBaseURI, "setBaseURI", uri)
}

func (p *Provisioner) Mint(ctx context.Context, asset Asset, m Mint) error {
	return p.transact(ctx, asset, p.gas.Mint, "mint", m.Holder, new(big.Int).SetUint64(m.TokenID))
}

// SetApprovalForAll lets operator move every token the seed account holds
// on asset.
func (p *Provisioner) SetApprovalForAll(ctx context.Context, asset Asset, operator common.Address, approved bool, gas uint64) error {
	return p.transact(ctx, asset, gas, "setApprovalForAll", operator, approved)
}

// OwnerOf reads the current holder of tokenID.
func (p *Provisioner) OwnerOf(ctx context.Context, asset Asset, tokenID uint64) (common.Address, error) {
	input, err := asset.ABI.Pack("ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, fmt.Errorf("provision: encode ownerOf: %w", err)
	}
	out, err := p.op.CallContract(ctx, asset.Address, input)
	if err != nil {
		return common.Address{}, fmt.Errorf("ownerOf(%d): %w", tokenID, err)
	}
	vals, err := asset.ABI.Unpack("ownerOf", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("provision: decode ownerOf(%d): %w", tokenID, err)
	}
	owner, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("provision: ownerOf(%d) returned %T", tokenID, vals[0])
	}
	return owner, nil
}

func (p *Provisioner) transact(ctx context.Context, asset Asset, gas uint64, method string, args ...any) error {
	input, err := asset.ABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("provision: encode %s: %w", method, err)
	}
	if _, err := p.op.Transact(ctx, asset.Address, input, gas); err != nil {
		return fmt.Errorf("%s on %s: %w", method, asset.Address.Hex(), err)
	}
	p.log.Debug().Str("method", method).Str("asset", asset.Address.Hex()).Msg("confirmed")
	return nil
}
