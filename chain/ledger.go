// Package chain is the ledger boundary: a narrow Ledger interface over an
// EVM JSON-RPC endpoint and the Operator that owns the one account every
// seed transaction is sent from.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
)

// Caller performs read-only contract calls against the latest state.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Ledger is everything the pipeline needs from a node.
//
// TransactionReceipt returns (nil, nil) while the transaction is unknown or
// pending.
type Ledger interface {
	Caller
	ChainID(ctx context.Context) (*big.Int, error)
	Nonce(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	Close() error
}

// W3Ledger is a Ledger backed by a w3 JSON-RPC client.
type W3Ledger struct {
	client *w3.Client
}

// Dial connects to rpcURL.
func Dial(rpcURL string) (*W3Ledger, error) {
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &W3Ledger{client: client}, nil
}

func NewW3Ledger(client *w3.Client) *W3Ledger {
	return &W3Ledger{client: client}
}

func (l *W3Ledger) Close() error {
	return l.client.Close()
}

func (l *W3Ledger) ChainID(ctx context.Context) (*big.Int, error) {
	var id uint64
	if err := l.client.CallCtx(ctx, eth.ChainID().Returns(&id)); err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	return new(big.Int).SetUint64(id), nil
}

func (l *W3Ledger) Nonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	if err := l.client.CallCtx(ctx, eth.Nonce(account, nil).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

func (l *W3Ledger) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := l.client.CallCtx(ctx, eth.SendTx(tx).Returns(nil)); err != nil {
		return fmt.Errorf("send tx: %w", err)
	}
	return nil
}

// TransactionReceipt treats any lookup failure as "not yet mined", the way
// a polling deployer does; the caller's confirmation bound turns a receipt
// that never shows up into ConfirmationTimeout.
func (l *W3Ledger) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	if err := l.client.CallCtx(ctx, eth.TxReceipt(hash).Returns(&receipt)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	return receipt, nil
}

func (l *W3Ledger) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	msg := &w3types.Message{To: &to, Input: data}
	if err := l.client.CallCtx(ctx, eth.Call(msg, nil, nil).Returns(&out)); err != nil {
		return nil, fmt.Errorf("call %s: %w", to.Hex(), err)
	}
	return out, nil
}

func (l *W3Ledger) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	var code []byte
	if err := l.client.CallCtx(ctx, eth.Code(account, nil).Returns(&code)); err != nil {
		return nil, fmt.Errorf("get code %s: %w", account.Hex(), err)
	}
	return code, nil
}
