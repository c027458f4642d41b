// Package chaintest is an in-memory ledger for tests.
//
// Sim implements chain.Ledger. It checks signatures, enforces strict
// per-account nonce order, mines every accepted transaction into its own
// block immediately and runs a small set of mock contracts (the asset mocks,
// the vault factory and its vaults, and the proxy registry) against the ABIs
// in Hardhat(). Mocks validate before they write, so a reverted transaction
// leaves no state behind.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const DefaultChainID = 31337

// ErrClosed is returned by every Ledger method after Close.
var ErrClosed = errors.New("chaintest: ledger closed")

type Sim struct {
	mu sync.Mutex

	chainID  *big.Int
	signer   types.Signer
	compiled map[string]*compiled

	nonces    map[common.Address]uint64
	contracts map[common.Address]contract
	receipts  map[common.Hash]*types.Receipt
	hidden    map[common.Hash]int
	txs       []*types.Transaction
	block     uint64
	closed    bool

	hold       bool
	delay      int
	revertNext map[string]int
	dropNext   map[string]int
	sendErr    error

	registry *registry
	factory  *factory
}

type Option func(*Sim)

func WithChainID(id int64) Option {
	return func(s *Sim) { s.chainID = big.NewInt(id) }
}

// New returns a ledger with the registry at RegistryAddress and the factory
// at FactoryAddress, registered under "FNFTCollectionFactory".
func New(opts ...Option) *Sim {
	s := &Sim{
		chainID:    big.NewInt(DefaultChainID),
		nonces:     map[common.Address]uint64{},
		contracts:  map[common.Address]contract{},
		receipts:   map[common.Hash]*types.Receipt{},
		hidden:     map[common.Hash]int{},
		revertNext: map[string]int{},
		dropNext:   map[string]int{},
	}
	for _, o := range opts {
		o(s)
	}
	s.signer = types.LatestSignerForChainID(s.chainID)

	c, err := loadCompiled()
	if err != nil {
		panic(fmt.Sprintf("chaintest: load artifacts: %v", err))
	}
	s.compiled = c

	s.registry = &registry{code: c[MultiProxyController], entries: map[[32]byte]proxyEntry{}}
	s.factory = &factory{code: c[FNFTCollectionFactory], vaultCode: c[FNFTCollection], vaults: map[uint64]common.Address{}}
	s.contracts[RegistryAddress] = s.registry
	s.contracts[FactoryAddress] = s.factory
	s.registry.set(FNFTCollectionFactory, FactoryAddress)
	return s
}

// Ledger methods.

func (s *Sim) ChainID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	return new(big.Int).Set(s.chainID), nil
}

func (s *Sim) Nonce(ctx context.Context, account common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return 0, err
	}
	return s.nonces[account], nil
}

func (s *Sim) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	c, ok := s.contracts[account]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), c.compiled().bytecode...), nil
}

func (s *Sim) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	out, _, err := s.invoke(&frame{sim: s, self: to, static: true}, data)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Sim) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	if s.sendErr != nil {
		err := s.sendErr
		s.sendErr = nil
		return err
	}
	from, err := types.Sender(s.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if want := s.nonces[from]; tx.Nonce() != want {
		if tx.Nonce() < want {
			return fmt.Errorf("nonce too low: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), want)
		}
		return fmt.Errorf("nonce too high: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), want)
	}
	if tx.Gas() == 0 {
		return errors.New("intrinsic gas too low")
	}
	s.nonces[from]++
	s.block++

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            tx.Hash(),
		GasUsed:           21_000,
		CumulativeGasUsed: 21_000,
		BlockNumber:       new(big.Int).SetUint64(s.block),
		BlockHash:         common.BigToHash(new(big.Int).SetUint64(s.block)),
	}

	var logs []*types.Log
	if tx.To() == nil {
		var addr common.Address
		addr, logs, err = s.create(from, tx.Nonce(), tx.Data())
		if err == nil {
			receipt.ContractAddress = addr
		}
	} else {
		_, logs, err = s.invoke(&frame{sim: s, from: from, self: *tx.To()}, tx.Data())
	}
	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
		logs = nil
	}
	receipt.Logs = []*types.Log{}
	for i, l := range logs {
		l.BlockNumber = s.block
		l.BlockHash = receipt.BlockHash
		l.TxHash = tx.Hash()
		l.Index = uint(i)
		receipt.Logs = append(receipt.Logs, l)
	}

	s.txs = append(s.txs, tx)
	s.receipts[tx.Hash()] = receipt
	switch {
	case s.hold:
		s.hidden[tx.Hash()] = -1
	case s.delay > 0:
		s.hidden[tx.Hash()] = s.delay
	}
	return nil
}

func (s *Sim) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	r, ok := s.receipts[hash]
	if !ok {
		return nil, nil
	}
	if n, hidden := s.hidden[hash]; hidden {
		switch {
		case n < 0:
		case n <= 1:
			delete(s.hidden, hash)
		default:
			s.hidden[hash] = n - 1
		}
		return nil, nil
	}
	return r, nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Sim) usable(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// Failure injection.

// RevertNext makes the next call of method (or the next deployment of the
// named contract) revert.
func (s *Sim) RevertNext(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revertNext[method]++
}

// DropEventsNext strips the logs from the next successful call of method.
func (s *Sim) DropEventsNext(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropNext[method]++
}

// HoldReceipts hides the receipts of transactions mined from now on until
// ReleaseReceipts.
func (s *Sim) HoldReceipts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = true
}

func (s *Sim) ReleaseReceipts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = false
	for h, n := range s.hidden {
		if n < 0 {
			delete(s.hidden, h)
		}
	}
}

// DelayReceipts hides each new receipt for the given number of lookups.
func (s *Sim) DelayReceipts(polls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = polls
}

// FailNextSend makes the next SendTransaction return err without touching
// the nonce.
func (s *Sim) FailNextSend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// Inspection.

// Transactions returns every accepted transaction in mining order.
func (s *Sim) Transactions() []*types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Transaction(nil), s.txs...)
}

// SetProxy points name at impl in the registry. The zero address removes it.
func (s *Sim) SetProxy(name string, impl common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.set(name, impl)
}

// OwnerOf reports the holder of tokenID on asset.
func (s *Sim) OwnerOf(asset common.Address, tokenID uint64) (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nft, ok := s.contracts[asset].(*erc721)
	if !ok {
		return common.Address{}, false
	}
	owner, ok := nft.owners[tokenID]
	return owner, ok
}

// Holdings lists the token ids deposited in the vault at addr, in deposit
// order.
func (s *Sim) Holdings(addr common.Address) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.contracts[addr].(*vault)
	if !ok {
		return nil
	}
	return append([]uint64(nil), v.holdings...)
}

// BaseURI returns the base URI set on asset.
func (s *Sim) BaseURI(asset common.Address) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nft, ok := s.contracts[asset].(*erc721); ok {
		return nft.baseURI
	}
	return ""
}

// Vaults returns every vault the factory created, by vault id.
func (s *Sim) Vaults() []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Address, 0, len(s.factory.vaults))
	for i := uint64(0); i < s.factory.count; i++ {
		out = append(out, s.factory.vaults[i])
	}
	return out
}

// ContractName names the mock deployed at addr, or "" for none.
func (s *Sim) ContractName(addr common.Address) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contracts[addr]; ok {
		return c.compiled().name
	}
	return ""
}

// Execution.

type revertError struct{ reason string }

func (e *revertError) Error() string { return "execution reverted: " + e.reason }

func revert(format string, args ...any) error {
	return &revertError{reason: fmt.Sprintf(format, args...)}
}

func (s *Sim) take(m map[string]int, key string) bool {
	if m[key] == 0 {
		return false
	}
	m[key]--
	return true
}

func (s *Sim) create(from common.Address, nonce uint64, data []byte) (common.Address, []*types.Log, error) {
	for _, name := range []string{StandardMockNFT, NoURIMockNFT} {
		c := s.compiled[name]
		if c == nil || !bytes.HasPrefix(data, c.bytecode) {
			continue
		}
		if s.take(s.revertNext, name) {
			return common.Address{}, nil, revert("injected revert in %s constructor", name)
		}
		args, err := c.abi.Constructor.Inputs.Unpack(data[len(c.bytecode):])
		if err != nil {
			return common.Address{}, nil, revert("constructor args: %v", err)
		}
		addr := crypto.CreateAddress(from, nonce)
		s.contracts[addr] = &erc721{
			code:    c,
			owner:   from,
			name:    args[0].(string),
			symbol:  args[1].(string),
			owners:  map[uint64]common.Address{},
			approve: map[common.Address]map[common.Address]bool{},
		}
		return addr, nil, nil
	}
	return common.Address{}, nil, revert("unknown creation code")
}

func (s *Sim) invoke(f *frame, input []byte) ([]byte, []*types.Log, error) {
	c, ok := s.contracts[f.self]
	if !ok {
		// Accounts without code accept anything and return nothing.
		return nil, nil, nil
	}
	if len(input) < 4 {
		return nil, nil, revert("no function selector")
	}
	m, err := c.compiled().abi.MethodById(input[:4])
	if err != nil {
		return nil, nil, revert("function selector %x not recognized by %s", input[:4], c.compiled().name)
	}
	if f.static && !m.IsConstant() {
		return nil, nil, fmt.Errorf("%s.%s is not a view function", c.compiled().name, m.Name)
	}
	args, err := m.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, revert("decode %s args: %v", m.Name, err)
	}
	if !f.static && s.take(s.revertNext, m.Name) {
		return nil, nil, revert("injected revert in %s", m.Name)
	}
	outs, err := c.exec(f, m, args)
	if err != nil {
		return nil, nil, err
	}
	ret, err := m.Outputs.Pack(outs...)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s result: %w", m.Name, err)
	}
	logs := f.logs
	if !f.static && s.take(s.dropNext, m.Name) {
		logs = nil
	}
	return ret, logs, nil
}

type contract interface {
	compiled() *compiled
	exec(f *frame, m *abi.Method, args []any) ([]any, error)
}

type frame struct {
	sim    *Sim
	from   common.Address
	self   common.Address
	static bool
	logs   []*types.Log
}

// emit appends a log for event declared in c, emitted by addr.
func (f *frame) emit(addr common.Address, c *compiled, event string, args ...any) {
	ev, ok := c.abi.Events[event]
	if !ok {
		panic(fmt.Sprintf("chaintest: %s has no event %s", c.name, event))
	}
	topics := []common.Hash{ev.ID}
	var data []any
	for i, in := range ev.Inputs {
		if !in.Indexed {
			data = append(data, args[i])
			continue
		}
		word, err := abi.Arguments{{Type: in.Type}}.Pack(args[i])
		if err != nil {
			panic(fmt.Sprintf("chaintest: encode %s.%s: %v", event, in.Name, err))
		}
		topics = append(topics, common.BytesToHash(word))
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: encode %s data: %v", event, err))
	}
	f.logs = append(f.logs, &types.Log{Address: addr, Topics: topics, Data: packed})
}
