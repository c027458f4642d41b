package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// Options bound fees and confirmation waits for an Operator.
type Options struct {
	GasFeeCap *big.Int
	GasTipCap *big.Int

	// ConfirmTimeout bounds one wait for a receipt.
	ConfirmTimeout time.Duration
	// PollInterval is the receipt polling period.
	PollInterval time.Duration
	// ConfirmRetries is how many more times a timed-out hash is re-awaited.
	ConfirmRetries int
	// ConfirmBackoff is slept before each re-await, doubling each time.
	ConfirmBackoff time.Duration

	Logger zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		GasFeeCap:      big.NewInt(2_000_000_000),
		GasTipCap:      big.NewInt(1_000_000_000),
		ConfirmTimeout: 2 * time.Minute,
		PollInterval:   2 * time.Second,
		ConfirmRetries: 2,
		ConfirmBackoff: 5 * time.Second,
		Logger:         zerolog.Nop(),
	}
}

// Operator owns the seed account and its transaction sequence.
//
// An Operator is not safe for concurrent use. Every submission blocks until
// its receipt is in, so the account never has more than one transaction in
// flight and nonces are consumed strictly in order.
type Operator struct {
	ledger  Ledger
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer
	opts    Options
	log     zerolog.Logger

	nonce       uint64
	nonceLoaded bool
	sent        []common.Hash
}

// NewOperator binds key to ledger. The chain id is read from the ledger;
// when expectChainID is non-nil a mismatch is an error.
func NewOperator(ctx context.Context, ledger Ledger, key *ecdsa.PrivateKey, expectChainID *big.Int, opts Options) (*Operator, error) {
	if ledger == nil {
		return nil, errors.New("chain: nil ledger")
	}
	if key == nil {
		return nil, errors.New("chain: nil operator key")
	}
	id, err := ledger.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if expectChainID != nil && expectChainID.Sign() != 0 && expectChainID.Cmp(id) != 0 {
		return nil, fmt.Errorf("chain: endpoint reports chain id %s, configured %s", id, expectChainID)
	}
	def := DefaultOptions()
	if opts.GasFeeCap == nil {
		opts.GasFeeCap = def.GasFeeCap
	}
	if opts.GasTipCap == nil {
		opts.GasTipCap = def.GasTipCap
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = def.ConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.ConfirmRetries < 0 {
		opts.ConfirmRetries = 0
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	return &Operator{
		ledger:  ledger,
		key:     key,
		address: address,
		chainID: id,
		signer:  types.NewLondonSigner(id),
		opts:    opts,
		log:     opts.Logger.With().Str("operator", address.Hex()).Logger(),
	}, nil
}

func (o *Operator) Address() common.Address { return o.address }

func (o *Operator) ChainID() *big.Int { return new(big.Int).Set(o.chainID) }

func (o *Operator) Ledger() Ledger { return o.ledger }

// Sent lists the hashes of every transaction this operator submitted, in
// submission order.
func (o *Operator) Sent() []common.Hash {
	return append([]common.Hash(nil), o.sent...)
}

func (o *Operator) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := o.ledger.CallContract(ctx, to, data)
	if err != nil {
		return nil, &Error{Kind: KindCall, Message: fmt.Sprintf("call %s", to.Hex()), Cause: err}
	}
	return out, nil
}

// Deploy submits a contract creation and returns the confirmed receipt and
// the created address.
func (o *Operator) Deploy(ctx context.Context, code []byte, gas uint64) (*types.Receipt, common.Address, error) {
	receipt, err := o.submit(ctx, nil, code, gas)
	if err != nil {
		return receipt, common.Address{}, err
	}
	return receipt, receipt.ContractAddress, nil
}

// Transact submits a call to to and returns the confirmed receipt. A
// reverted transaction returns its receipt together with a KindReverted
// error.
func (o *Operator) Transact(ctx context.Context, to common.Address, data []byte, gas uint64) (*types.Receipt, error) {
	return o.submit(ctx, &to, data, gas)
}

func (o *Operator) submit(ctx context.Context, to *common.Address, data []byte, gas uint64) (*types.Receipt, error) {
	// Cancellation stops new submissions only.
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindSubmit, Message: "submission cancelled", Cause: err}
	}
	if !o.nonceLoaded {
		n, err := o.ledger.Nonce(ctx, o.address)
		if err != nil {
			return nil, &Error{Kind: KindSubmit, Message: "load operator nonce", Cause: err}
		}
		o.nonce, o.nonceLoaded = n, true
	}

	tx, err := types.SignNewTx(o.key, o.signer, &types.DynamicFeeTx{
		ChainID:   o.chainID,
		Nonce:     o.nonce,
		To:        to,
		GasFeeCap: o.opts.GasFeeCap,
		GasTipCap: o.opts.GasTipCap,
		Gas:       gas,
		Data:      data,
	})
	if err != nil {
		return nil, &Error{Kind: KindSubmit, Message: "sign tx", Cause: err}
	}
	if err := o.ledger.SendTransaction(ctx, tx); err != nil {
		// The node may or may not have taken the nonce; re-read it next time.
		o.nonceLoaded = false
		return nil, &Error{Kind: KindSubmit, TxHash: tx.Hash(), Message: fmt.Sprintf("submit nonce %d", tx.Nonce()), Cause: err}
	}
	o.nonce++
	o.sent = append(o.sent, tx.Hash())
	o.log.Debug().Uint64("nonce", tx.Nonce()).Str("tx", tx.Hash().Hex()).Msg("submitted")

	receipt, err := o.await(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &Error{
			Kind:    KindReverted,
			TxHash:  tx.Hash(),
			Receipt: receipt,
			Message: fmt.Sprintf("tx %s reverted in block %v", tx.Hash().Hex(), receipt.BlockNumber),
		}
	}
	return receipt, nil
}

// await re-awaits the same hash after a timeout; it never resubmits.
func (o *Operator) await(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	backoff := o.opts.ConfirmBackoff
	for attempt := 0; ; attempt++ {
		receipt, err := o.waitOnce(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, &Error{Kind: KindConfirmationTimeout, TxHash: hash, Message: fmt.Sprintf("await %s", hash.Hex()), Cause: err}
		case !errors.Is(err, errWaitExpired):
			return nil, &Error{Kind: KindReceipt, TxHash: hash, Message: fmt.Sprintf("fetch receipt of %s", hash.Hex()), Cause: err}
		}
		if attempt >= o.opts.ConfirmRetries {
			return nil, &Error{
				Kind:    KindConfirmationTimeout,
				TxHash:  hash,
				Message: fmt.Sprintf("tx %s not confirmed after %d waits of %s", hash.Hex(), attempt+1, o.opts.ConfirmTimeout),
			}
		}
		o.log.Warn().Str("tx", hash.Hex()).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("confirmation wait expired, re-awaiting")
		if backoff > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, &Error{Kind: KindConfirmationTimeout, TxHash: hash, Message: fmt.Sprintf("await %s", hash.Hex()), Cause: ctx.Err()}
			case <-t.C:
			}
			backoff *= 2
		}
	}
}

var errWaitExpired = errors.New("confirmation wait expired")

func (o *Operator) waitOnce(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	deadline := time.NewTimer(o.opts.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := o.ledger.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, errWaitExpired
		case <-ticker.C:
		}
	}
}
