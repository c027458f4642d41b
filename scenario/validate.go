package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/vaultseed/provision"
)

// ValidationError names the first rule a table breaks.
type ValidationError struct {
	Scenario string
	Field    string
	Message  string
}

func (e *ValidationError) Error() string {
	if e.Scenario == "" {
		return fmt.Sprintf("scenario: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("scenario %s: %s: %s", e.Scenario, e.Field, e.Message)
}

func invalid(id, field, format string, args ...any) error {
	return &ValidationError{Scenario: id, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the table's structure and reports the first violation.
func (t Table) Validate() error {
	if len(t.Scenarios) == 0 {
		return invalid("", "scenarios", "table is empty")
	}
	for ref, addr := range t.Holders {
		if ref == "" || ref == OperatorRef {
			return invalid("", "holders", "ref %q is reserved", ref)
		}
		if !common.IsHexAddress(addr) {
			return invalid("", "holders."+ref, "%q is not an address", addr)
		}
	}
	seen := map[string]bool{}
	for i, s := range t.Scenarios {
		if s.ID == "" {
			return invalid("", fmt.Sprintf("scenarios[%d].id", i), "missing")
		}
		if seen[s.ID] {
			return invalid(s.ID, "id", "duplicate scenario id")
		}
		seen[s.ID] = true
		if err := t.validateSpec(s); err != nil {
			return err
		}
	}
	return nil
}

func (t Table) knownRef(ref string) bool {
	if ref == OperatorRef {
		return true
	}
	_, ok := t.Holders[ref]
	return ok
}

func (t Table) validateSpec(s Spec) error {
	id := s.ID
	if _, err := s.Asset.Kind.Contract(); err != nil {
		return invalid(id, "asset.kind", "%q is not standard or metadata-less", s.Asset.Kind)
	}
	if strings.TrimSpace(s.Asset.Name) == "" || strings.TrimSpace(s.Asset.Symbol) == "" {
		return invalid(id, "asset", "name and symbol are required")
	}
	if s.Asset.Kind == provision.KindStandard && s.Asset.BaseURI == "" {
		return invalid(id, "asset.base_uri", "required for standard assets")
	}
	if s.Asset.Kind == provision.KindMetadataLess && s.Asset.BaseURI != "" {
		return invalid(id, "asset.base_uri", "metadata-less assets have no base URI")
	}
	if strings.TrimSpace(s.Vault.Name) == "" || strings.TrimSpace(s.Vault.Symbol) == "" {
		return invalid(id, "vault", "name and symbol are required")
	}
	if s.Vault.Is1155 {
		return invalid(id, "vault.is1155", "assets are ERC-721 mocks")
	}

	owner := map[uint64]string{}
	for i, g := range s.Mints {
		field := fmt.Sprintf("mints[%d]", i)
		if !t.knownRef(g.Holder) {
			return invalid(id, field+".holder", "unknown holder %q", g.Holder)
		}
		ids, err := checkTokens(g.Tokens)
		if err != nil {
			return invalid(id, field, "%v", err)
		}
		for _, tok := range ids {
			if _, dup := owner[tok]; dup {
				return invalid(id, field, "token %d minted twice", tok)
			}
			owner[tok] = g.Holder
		}
	}

	deposited := map[uint64]bool{}
	for i, d := range s.Deposits {
		field := fmt.Sprintf("deposits[%d]", i)
		if !t.knownRef(d.RecipientRef()) {
			return invalid(id, field+".recipient", "unknown holder %q", d.Recipient)
		}
		ids, err := checkTokens(d.Tokens)
		if err != nil {
			return invalid(id, field, "%v", err)
		}
		for _, tok := range ids {
			holder, minted := owner[tok]
			switch {
			case !minted:
				return invalid(id, field, "token %d is not minted", tok)
			case holder != OperatorRef:
				return invalid(id, field, "token %d is minted to %q; only operator tokens can be deposited", tok, holder)
			case deposited[tok]:
				return invalid(id, field, "token %d deposited twice", tok)
			}
			deposited[tok] = true
		}
	}

	for i, p := range s.Post {
		field := fmt.Sprintf("post[%d]", i)
		set := 0
		if p.HolderOwns != nil {
			set++
			if !t.knownRef(p.HolderOwns.Holder) {
				return invalid(id, field+".holder_owns", "unknown holder %q", p.HolderOwns.Holder)
			}
			if p.HolderOwns.Count < 0 || p.HolderOwns.Count > len(owner) {
				return invalid(id, field+".holder_owns", "count %d outside 0..%d", p.HolderOwns.Count, len(owner))
			}
		}
		if p.VaultHolds != nil {
			set++
			if p.VaultHolds.Count < 0 || p.VaultHolds.Count > len(owner) {
				return invalid(id, field+".vault_holds", "count %d outside 0..%d", p.VaultHolds.Count, len(owner))
			}
		}
		if p.Label != "" {
			set++
		}
		if set != 1 {
			return invalid(id, field, "exactly one of holder_owns, vault_holds, label")
		}
	}
	return nil
}

func checkTokens(t Tokens) ([]uint64, error) {
	if t.From != 0 && t.To < t.From {
		return nil, fmt.Errorf("range %d..%d is empty", t.From, t.To)
	}
	if t.From == 0 && t.To != 0 {
		return nil, errors.New("range needs from")
	}
	if t.From != 0 && t.To-t.From >= MaxRange {
		return nil, fmt.Errorf("range %d..%d selects more than %d tokens", t.From, t.To, MaxRange)
	}
	ids := t.Expand()
	if len(ids) == 0 {
		return nil, errors.New("no tokens")
	}
	for _, id := range ids {
		if id == 0 {
			return nil, errors.New("token ids start at 1")
		}
	}
	return ids, nil
}

// ResolveHolders resolves every holder ref the table knows to an address.
// overrides replace table entries; the operator ref is always operator.
func (t Table) ResolveHolders(operator common.Address, overrides map[string]common.Address) (map[string]common.Address, error) {
	out := map[string]common.Address{OperatorRef: operator}
	for ref, addr := range t.Holders {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("scenario: holder %q: %q is not an address", ref, addr)
		}
		out[ref] = common.HexToAddress(addr)
	}
	for ref, addr := range overrides {
		if ref == OperatorRef {
			return nil, fmt.Errorf("scenario: holder ref %q cannot be overridden", ref)
		}
		out[ref] = addr
	}
	return out, nil
}
