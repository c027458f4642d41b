package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/vaultseed/chain"
	"xdao.co/vaultseed/factory"
	"xdao.co/vaultseed/provision"
	"xdao.co/vaultseed/receipt"
	"xdao.co/vaultseed/resolver"
	"xdao.co/vaultseed/scenario"
)

// Error kinds that do not come from a lower package.
const (
	KindPostCondition = "PostConditionFailed"
	KindCanceled      = "Canceled"
	KindInternal      = "Internal"
)

// Outcome is what one scenario left behind. Asset and Vault are set as
// soon as they exist, so a failed scenario still names what it deployed.
type Outcome struct {
	Scenario     string   `json:"scenario"`
	State        State    `json:"state"`
	Step         Step     `json:"step,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	Error        string   `json:"error,omitempty"`
	Asset        string   `json:"asset,omitempty"`
	Vault        string   `json:"vault,omitempty"`
	VaultID      string   `json:"vault_id,omitempty"`
	Deposited    []uint64 `json:"deposited,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	Transactions int      `json:"transactions"`
	History      []State  `json:"history"`
}

func (o Outcome) OK() bool { return o.State.Succeeded() }

type Report struct {
	Outcomes []Outcome `json:"outcomes"`
}

func (r Report) OK() bool {
	return r.Failed() == 0
}

func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// Outcome looks up a scenario by id.
func (r Report) Outcome(id string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Scenario == id {
			return o, true
		}
	}
	return Outcome{}, false
}

// Summary writes one row per scenario.
func (r Report) Summary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATE\tASSET\tVAULT\tDEPOSITED\tDETAIL")
	for _, o := range r.Outcomes {
		detail := strings.Join(o.Labels, ",")
		if !o.OK() {
			detail = fmt.Sprintf("%s at %s: %s", o.Kind, o.Step, o.Error)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", o.Scenario, o.State, dash(o.Asset), dash(o.Vault), len(o.Deposited), detail)
	}
	fmt.Fprintf(tw, "\n%d scenarios, %d failed\n", len(r.Outcomes), r.Failed())
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ErrorKind maps err to the stable kind string used in logs and reports.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	var pe *PostConditionError
	if errors.As(err, &pe) {
		return KindPostCondition
	}
	var fe *factory.Error
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	var de *receipt.DecodeError
	if errors.As(err, &de) {
		return string(de.Kind)
	}
	var re *resolver.Error
	if errors.As(err, &re) {
		return string(re.Kind)
	}
	var ce *chain.Error
	if errors.As(err, &ce) {
		return string(ce.Kind)
	}
	return KindInternal
}

// PostConditionError lists every post-condition that did not hold.
type PostConditionError struct {
	Scenario string
	Failures []string
}

func (e *PostConditionError) Error() string {
	return fmt.Sprintf("scenario %s: post-conditions failed: %s", e.Scenario, strings.Join(e.Failures, "; "))
}

// verifyPost reads the owner of every minted token and checks the counts
// the scenario declares.
func (o *Orchestrator) verifyPost(ctx context.Context, s scenario.Spec, asset provision.Asset, vault factory.Vault) error {
	owned := make(map[common.Address]int)
	for _, m := range s.MintSplit() {
		owner, err := o.prov.OwnerOf(ctx, asset, m.TokenID)
		if err != nil {
			return err
		}
		owned[owner]++
	}

	var failures []string
	for _, p := range s.Post {
		switch {
		case p.HolderOwns != nil:
			addr := o.holders[p.HolderOwns.Holder]
			if got := owned[addr]; got != p.HolderOwns.Count {
				failures = append(failures, fmt.Sprintf("%s owns %d, want %d", p.HolderOwns.Holder, got, p.HolderOwns.Count))
			}
		case p.VaultHolds != nil:
			if got := owned[vault.Address]; got != p.VaultHolds.Count {
				failures = append(failures, fmt.Sprintf("vault holds %d, want %d", got, p.VaultHolds.Count))
			}
		}
	}
	if len(failures) > 0 {
		return &PostConditionError{Scenario: s.ID, Failures: failures}
	}
	return nil
}
