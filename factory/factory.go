// Package factory creates vaults through the FNFTCollection factory and
// drives the vaults it created.
package factory

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"xdao.co/vaultseed/chain"
	"xdao.co/vaultseed/receipt"
	"xdao.co/vaultseed/resolver"
)

// Name is the registry name of the vault factory.
const Name = "FNFTCollectionFactory"

// VaultContract is the artifact name of the vaults the factory creates.
const VaultContract = "FNFTCollection"

// Params are the createVault arguments besides the asset.
type Params struct {
	Is1155        bool
	AllowAllItems bool
	Name          string
	Symbol        string
}

// Vault is a factory-created vault. Asset is fixed at creation.
type Vault struct {
	Address  common.Address
	Asset    common.Address
	ABI      *abi.ABI
	ID       *big.Int
	CreateTx common.Hash
}

type Kind string

const (
	KindVaultCreationReverted Kind = "VaultCreationReverted"
	// KindAssetMismatch: the creation event names a different asset.
	KindAssetMismatch Kind = "AssetMismatch"
)

type Error struct {
	Kind    Kind
	Asset   common.Address
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return "factory: " + e.Message + ": " + e.Cause.Error()
	}
	return "factory: " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func IsKind(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

// GasLimits are fixed per call; mintTo scales with the batch size.
type GasLimits struct {
	CreateVault   uint64
	MintToBase    uint64
	MintToPerItem uint64
}

func DefaultGasLimits() GasLimits {
	return GasLimits{CreateVault: 5_000_000, MintToBase: 250_000, MintToPerItem: 150_000}
}

type Client struct {
	op       *chain.Operator
	factory  resolver.Entry
	vaultABI *abi.ABI
	gas      GasLimits
	log      zerolog.Logger
}

// New binds a client to the resolved factory entry. vaultABI is the
// interface of the vaults it creates.
func New(op *chain.Operator, factory resolver.Entry, vaultABI *abi.ABI, gas GasLimits, log zerolog.Logger) (*Client, error) {
	if factory.ABI == nil {
		return nil, fmt.Errorf("factory: no interface for %s", factory.Address.Hex())
	}
	if _, ok := factory.ABI.Methods["createVault"]; !ok {
		return nil, fmt.Errorf("factory: %s interface has no createVault", factory.Name)
	}
	if vaultABI == nil {
		return nil, errors.New("factory: no vault interface")
	}
	return &Client{op: op, factory: factory, vaultABI: vaultABI, gas: gas, log: log}, nil
}

func (c *Client) Address() common.Address { return c.factory.Address }

// CreateVault wraps asset in a new vault and returns its handle, decoded
// from the VaultCreated event. It is never retried: a creation that
// reverted or emitted nothing needs a human to look at it.
func (c *Client) CreateVault(ctx context.Context, asset common.Address, p Params) (Vault, error) {
	input, err := c.factory.ABI.Pack("createVault", asset, p.Is1155, p.AllowAllItems, p.Name, p.Symbol)
	if err != nil {
		return Vault{}, fmt.Errorf("factory: encode createVault: %w", err)
	}
	r, err := c.op.Transact(ctx, c.factory.Address, input, c.gas.CreateVault)
	if err != nil {
		if chain.IsKind(err, chain.KindReverted) {
			return Vault{}, &Error{Kind: KindVaultCreationReverted, Asset: asset, Message: fmt.Sprintf("createVault(%s, %q)", asset.Hex(), p.Name), Cause: err}
		}
		return Vault{}, err
	}

	addr, err := receipt.DecodeAddress(r.Logs, receipt.VaultCreated, receipt.VaultAddressArg)
	if err != nil {
		return Vault{}, err
	}
	ev, err := receipt.Decode(r.Logs, receipt.VaultCreated)
	if err != nil {
		return Vault{}, err
	}
	if got, ok := ev.Args[3].(common.Address); !ok || got != asset {
		return Vault{}, &Error{Kind: KindAssetMismatch, Asset: asset, Message: fmt.Sprintf("VaultCreated in %s names asset %v", r.TxHash.Hex(), ev.Args[3])}
	}
	id, _ := ev.Args[0].(*big.Int)

	v := Vault{Address: addr, Asset: asset, ABI: c.vaultABI, ID: id, CreateTx: r.TxHash}
	c.log.Info().Str("vault", addr.Hex()).Str("asset", asset.Hex()).Str("vault_id", id.String()).Msg("vault created")
	return v, nil
}

// MintTo deposits tokenIDs, already approved to the vault, and credits
// the fractions to recipient.
func (c *Client) MintTo(ctx context.Context, v Vault, tokenIDs []uint64, recipient common.Address) error {
	ids := make([]*big.Int, len(tokenIDs))
	for i, id := range tokenIDs {
		ids[i] = new(big.Int).SetUint64(id)
	}
	input, err := v.ABI.Pack("mintTo", ids, []*big.Int{}, recipient)
	if err != nil {
		return fmt.Errorf("factory: encode mintTo: %w", err)
	}
	gas := c.gas.MintToBase + c.gas.MintToPerItem*uint64(len(tokenIDs))
	if _, err := c.op.Transact(ctx, v.Address, input, gas); err != nil {
		return fmt.Errorf("mintTo %v on %s: %w", tokenIDs, v.Address.Hex(), err)
	}
	c.log.Debug().Str("vault", v.Address.Hex()).Uints64("tokens", tokenIDs).Msg("deposited")
	return nil
}
