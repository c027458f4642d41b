// Package scenario defines the seed scenario table: which asset each
// scenario deploys, who gets which tokens, what goes into the vault, and
// what must hold afterwards.
//
// A table is plain data. It is loaded once, validated, and never modified
// by a run.
package scenario

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"xdao.co/vaultseed/provision"
)

// OperatorRef is the built-in holder ref for the seed account.
const OperatorRef = "operator"

//go:embed default.yaml
var defaultTable []byte

type Table struct {
	// Holders maps holder refs to hex addresses.
	Holders   map[string]string `yaml:"holders,omitempty" json:"holders,omitempty"`
	Scenarios []Spec            `yaml:"scenarios" json:"scenarios"`
}

type Spec struct {
	ID       string          `yaml:"id" json:"id"`
	Title    string          `yaml:"title,omitempty" json:"title,omitempty"`
	Asset    AssetSpec       `yaml:"asset" json:"asset"`
	Vault    VaultSpec       `yaml:"vault" json:"vault"`
	Mints    []MintGroup     `yaml:"mints,omitempty" json:"mints,omitempty"`
	Deposits []Deposit       `yaml:"deposits,omitempty" json:"deposits,omitempty"`
	Post     []PostCondition `yaml:"post,omitempty" json:"post,omitempty"`
}

type AssetSpec struct {
	Kind    provision.Kind `yaml:"kind" json:"kind"`
	Name    string         `yaml:"name" json:"name"`
	Symbol  string         `yaml:"symbol" json:"symbol"`
	BaseURI string         `yaml:"base_uri,omitempty" json:"base_uri,omitempty"`
}

type VaultSpec struct {
	Name   string `yaml:"name" json:"name"`
	Symbol string `yaml:"symbol" json:"symbol"`
	Is1155 bool   `yaml:"is1155,omitempty" json:"is1155,omitempty"`
	// AllowAllItems defaults to true.
	AllowAllItems *bool `yaml:"allow_all_items,omitempty" json:"allow_all_items,omitempty"`
}

func (v VaultSpec) AllowAll() bool {
	return v.AllowAllItems == nil || *v.AllowAllItems
}

// MaxRange is the largest From..To span a Tokens entry may select.
const MaxRange = 10_000

// Tokens selects token ids: the explicit IDs first, then From..To
// inclusive when From is set.
type Tokens struct {
	IDs  []uint64 `yaml:"ids,omitempty" json:"ids,omitempty"`
	From uint64   `yaml:"from,omitempty" json:"from,omitempty"`
	To   uint64   `yaml:"to,omitempty" json:"to,omitempty"`
}

func (t Tokens) Expand() []uint64 {
	out := append([]uint64(nil), t.IDs...)
	if t.From != 0 && t.To >= t.From {
		for id := t.From; ; id++ {
			out = append(out, id)
			if id == t.To {
				break
			}
		}
	}
	return out
}

type MintGroup struct {
	Holder string `yaml:"holder" json:"holder"`
	Tokens `yaml:",inline"`
}

// Deposit is one mintTo call. Recipient defaults to the operator.
type Deposit struct {
	Recipient string `yaml:"recipient,omitempty" json:"recipient,omitempty"`
	Tokens    `yaml:",inline"`
}

func (d Deposit) RecipientRef() string {
	if d.Recipient == "" {
		return OperatorRef
	}
	return d.Recipient
}

// PostCondition is exactly one of HolderOwns, VaultHolds or Label.
type PostCondition struct {
	HolderOwns *HolderOwns `yaml:"holder_owns,omitempty" json:"holder_owns,omitempty"`
	VaultHolds *VaultHolds `yaml:"vault_holds,omitempty" json:"vault_holds,omitempty"`
	// Label describes a platform state the seed data is meant to be taken
	// into (auction, sale event). It is reported, not checked.
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// HolderOwns: holder owns exactly Count of the scenario's minted tokens.
type HolderOwns struct {
	Holder string `yaml:"holder" json:"holder"`
	Count  int    `yaml:"count" json:"count"`
}

// VaultHolds: the vault owns exactly Count of the scenario's minted tokens.
type VaultHolds struct {
	Count int `yaml:"count" json:"count"`
}

type Mint struct {
	Holder  string
	TokenID uint64
}

// MintSplit lists every (holder, token) pair in mint order.
func (s Spec) MintSplit() []Mint {
	var out []Mint
	for _, g := range s.Mints {
		for _, id := range g.Expand() {
			out = append(out, Mint{Holder: g.Holder, TokenID: id})
		}
	}
	return out
}

// Population lists every deposited token in deposit order.
func (s Spec) Population() []uint64 {
	var out []uint64
	for _, d := range s.Deposits {
		out = append(out, d.Expand()...)
	}
	return out
}

func (s Spec) ItemCount() int { return len(s.MintSplit()) }

func (s Spec) Labels() []string {
	var out []string
	for _, p := range s.Post {
		if p.Label != "" {
			out = append(out, p.Label)
		}
	}
	return out
}

// Default returns the built-in twelve-scenario table.
func Default() Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("scenario: built-in table: %v", err))
	}
	return t
}

// Load reads and validates a YAML (or JSON) table.
func Load(path string) (Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}
	t, err := Parse(b)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func Parse(b []byte) (Table, error) {
	var t Table
	if err := yaml.UnmarshalWithOptions(b, &t, yaml.Strict()); err != nil {
		return Table{}, fmt.Errorf("scenario: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Canonical renders the table as compact JSON. Struct fields keep their
// declared order and map keys are sorted, so equal tables render equal
// bytes.
func (t Table) Canonical() ([]byte, error) {
	return json.Marshal(t)
}

// Filter keeps the scenarios named in ids, in table order.
func (t Table) Filter(ids []string) (Table, error) {
	if len(ids) == 0 {
		return t, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = false
	}
	out := Table{Holders: t.Holders}
	for _, s := range t.Scenarios {
		if _, ok := want[s.ID]; ok {
			want[s.ID] = true
			out.Scenarios = append(out.Scenarios, s)
		}
	}
	for _, id := range ids {
		if !want[id] {
			return Table{}, fmt.Errorf("scenario: unknown scenario %q", id)
		}
	}
	return out, nil
}

func (t Table) IDs() []string {
	out := make([]string, len(t.Scenarios))
	for i, s := range t.Scenarios {
		out[i] = s.ID
	}
	return out
}
