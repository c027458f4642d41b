package chaintest

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func tokenID(v any) (uint64, error) {
	n := v.(*big.Int)
	if !n.IsUint64() {
		return 0, revert("token id %s out of range", n)
	}
	return n.Uint64(), nil
}

func u256(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

// erc721 backs both asset mocks; the NoURI variant simply lacks the URI
// functions in its ABI.
type erc721 struct {
	code    *compiled
	owner   common.Address
	name    string
	symbol  string
	baseURI string
	owners  map[uint64]common.Address
	approve map[common.Address]map[common.Address]bool
}

func (t *erc721) compiled() *compiled { return t.code }

func (t *erc721) approved(owner, operator common.Address) bool {
	return t.approve[owner][operator]
}

func (t *erc721) balance(owner common.Address) uint64 {
	var n uint64
	for _, o := range t.owners {
		if o == owner {
			n++
		}
	}
	return n
}

func (t *erc721) exec(f *frame, m *abi.Method, args []any) ([]any, error) {
	switch m.Name {
	case "name":
		return []any{t.name}, nil
	case "symbol":
		return []any{t.symbol}, nil
	case "owner":
		return []any{t.owner}, nil
	case "baseURI":
		return []any{t.baseURI}, nil
	case "balanceOf":
		return []any{u256(t.balance(args[0].(common.Address)))}, nil
	case "ownerOf":
		id, err := tokenID(args[0])
		if err != nil {
			return nil, err
		}
		o, ok := t.owners[id]
		if !ok {
			return nil, revert("ERC721: invalid token ID")
		}
		return []any{o}, nil
	case "tokenURI":
		id, err := tokenID(args[0])
		if err != nil {
			return nil, err
		}
		if _, ok := t.owners[id]; !ok {
			return nil, revert("ERC721: invalid token ID")
		}
		if t.baseURI == "" {
			return []any{""}, nil
		}
		return []any{t.baseURI + strconv.FormatUint(id, 10)}, nil
	case "isApprovedForAll":
		return []any{t.approved(args[0].(common.Address), args[1].(common.Address))}, nil
	case "setBaseURI":
		if f.from != t.owner {
			return nil, revert("Ownable: caller is not the owner")
		}
		t.baseURI = args[0].(string)
		return nil, nil
	case "setApprovalForAll":
		operator, approved := args[0].(common.Address), args[1].(bool)
		if operator == f.from {
			return nil, revert("ERC721: approve to caller")
		}
		if t.approve[f.from] == nil {
			t.approve[f.from] = map[common.Address]bool{}
		}
		t.approve[f.from][operator] = approved
		f.emit(f.self, t.code, "ApprovalForAll", f.from, operator, approved)
		return nil, nil
	case "mint":
		to := args[0].(common.Address)
		id, err := tokenID(args[1])
		if err != nil {
			return nil, err
		}
		if to == (common.Address{}) {
			return nil, revert("ERC721: mint to the zero address")
		}
		if _, exists := t.owners[id]; exists {
			return nil, revert("ERC721: token already minted")
		}
		t.owners[id] = to
		f.emit(f.self, t.code, "Transfer", common.Address{}, to, u256(id))
		return nil, nil
	case "transferFrom":
		from, to := args[0].(common.Address), args[1].(common.Address)
		id, err := tokenID(args[2])
		if err != nil {
			return nil, err
		}
		if err := t.checkTransfer(f.from, from, id); err != nil {
			return nil, err
		}
		t.transfer(f, f.self, from, to, id)
		return nil, nil
	}
	return nil, revert("%s not implemented by %s", m.Name, t.code.name)
}

func (t *erc721) checkTransfer(spender, from common.Address, id uint64) error {
	o, ok := t.owners[id]
	if !ok {
		return revert("ERC721: invalid token ID")
	}
	if o != from {
		return revert("ERC721: transfer from incorrect owner")
	}
	if spender != from && !t.approved(from, spender) {
		return revert("ERC721: caller is not token owner or approved")
	}
	return nil
}

func (t *erc721) transfer(f *frame, self, from, to common.Address, id uint64) {
	t.owners[id] = to
	f.emit(self, t.code, "Transfer", from, to, u256(id))
}

type proxyEntry struct {
	name string
	impl common.Address
}

// registry is MultiProxyController: proxyMap(bytes32) -> (name, proxy).
type registry struct {
	code    *compiled
	entries map[[32]byte]proxyEntry
}

func (r *registry) compiled() *compiled { return r.code }

func (r *registry) set(name string, impl common.Address) {
	var key [32]byte
	copy(key[:], name)
	if impl == (common.Address{}) {
		delete(r.entries, key)
		return
	}
	r.entries[key] = proxyEntry{name: name, impl: impl}
}

func (r *registry) exec(f *frame, m *abi.Method, args []any) ([]any, error) {
	if m.Name != "proxyMap" {
		return nil, revert("%s not implemented by %s", m.Name, r.code.name)
	}
	e := r.entries[args[0].([32]byte)]
	return []any{e.name, e.impl}, nil
}

type factory struct {
	code      *compiled
	vaultCode *compiled
	count     uint64
	nonce     uint64
	vaults    map[uint64]common.Address
}

func (fc *factory) compiled() *compiled { return fc.code }

func (fc *factory) exec(f *frame, m *abi.Method, args []any) ([]any, error) {
	switch m.Name {
	case "numVaults":
		return []any{u256(fc.count)}, nil
	case "vault":
		id, err := tokenID(args[0])
		if err != nil {
			return nil, err
		}
		return []any{fc.vaults[id]}, nil
	case "createVault":
		asset := args[0].(common.Address)
		is1155, allowAll := args[1].(bool), args[2].(bool)
		name, symbol := args[3].(string), args[4].(string)
		if _, ok := f.sim.contracts[asset].(*erc721); !ok {
			return nil, revert("FNFTCollectionFactory: asset is not an ERC721")
		}
		if is1155 {
			return nil, revert("FNFTCollectionFactory: asset is not an ERC1155")
		}
		id := fc.count
		addr := crypto.CreateAddress(f.self, fc.nonce)
		fc.nonce++
		fc.count++
		fc.vaults[id] = addr
		f.sim.contracts[addr] = &vault{
			code:     fc.vaultCode,
			id:       id,
			asset:    asset,
			name:     name,
			symbol:   symbol,
			allowAll: allowAll,
			balances: map[common.Address]*big.Int{},
		}
		f.emit(addr, fc.code, "Initialized", uint8(1))
		f.emit(f.self, fc.code, "VaultCreated", u256(id), f.from, addr, asset, name, symbol)
		return []any{u256(id)}, nil
	}
	return nil, revert("%s not implemented by %s", m.Name, fc.code.name)
}

// vault is FNFTCollection: deposits pull tokens from the caller and mint
// one whole fractional unit per token to the recipient.
type vault struct {
	code     *compiled
	id       uint64
	asset    common.Address
	name     string
	symbol   string
	allowAll bool
	holdings []uint64
	balances map[common.Address]*big.Int
}

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func (v *vault) compiled() *compiled { return v.code }

func (v *vault) exec(f *frame, m *abi.Method, args []any) ([]any, error) {
	switch m.Name {
	case "name":
		return []any{v.name}, nil
	case "symbol":
		return []any{v.symbol}, nil
	case "vaultId":
		return []any{u256(v.id)}, nil
	case "assetAddress":
		return []any{v.asset}, nil
	case "is1155":
		return []any{false}, nil
	case "allowAllItems":
		return []any{v.allowAll}, nil
	case "totalHoldings":
		return []any{u256(uint64(len(v.holdings)))}, nil
	case "allHoldings":
		out := make([]*big.Int, 0, len(v.holdings))
		for _, id := range v.holdings {
			out = append(out, u256(id))
		}
		return []any{out}, nil
	case "balanceOf":
		b := v.balances[args[0].(common.Address)]
		if b == nil {
			b = new(big.Int)
		}
		return []any{b}, nil
	case "mintTo":
		return v.mintTo(f, args[0].([]*big.Int), args[1].([]*big.Int), args[2].(common.Address))
	}
	return nil, revert("%s not implemented by %s", m.Name, v.code.name)
}

func (v *vault) mintTo(f *frame, rawIDs, amounts []*big.Int, to common.Address) ([]any, error) {
	if !v.allowAll {
		return nil, revert("FNFTCollection: item not allowed")
	}
	if len(amounts) != 0 {
		return nil, revert("FNFTCollection: amounts given for ERC721")
	}
	if len(rawIDs) == 0 {
		return nil, revert("FNFTCollection: no items")
	}
	nft, ok := f.sim.contracts[v.asset].(*erc721)
	if !ok {
		return nil, revert("FNFTCollection: asset gone")
	}
	ids := make([]uint64, 0, len(rawIDs))
	seen := map[uint64]bool{}
	for _, raw := range rawIDs {
		id, err := tokenID(raw)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, revert("FNFTCollection: duplicate item %d", id)
		}
		seen[id] = true
		if err := nft.checkTransfer(f.self, f.from, id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		nft.transfer(f, v.asset, f.from, f.self, id)
		v.holdings = append(v.holdings, id)
	}
	b := v.balances[to]
	if b == nil {
		b = new(big.Int)
	}
	minted := new(big.Int).Mul(unit, u256(uint64(len(ids))))
	v.balances[to] = b.Add(b, minted)
	f.emit(f.self, v.code, "Minted", rawIDs, amounts, to)
	return []any{u256(uint64(len(ids)))}, nil
}
