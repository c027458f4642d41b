// Package runrecord content-addresses seed runs.
//
// A Plan binds everything that decides what a run writes to the chain.
// Plans and reports are stored in a storage.CAS under their CIDv1 (raw +
// sha2-256), so two runs with the same plan share a CID and the second
// one can be refused.
package runrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"

	"xdao.co/vaultseed/orchestrator"
	"xdao.co/vaultseed/scenario"
	"xdao.co/vaultseed/storage"
)

const (
	PlanFormat   = "vaultseed-plan-1"
	ReportFormat = "vaultseed-report-1"
)

// Plan is rendered as compact JSON with fields in declared order. Addresses
// use their checksummed form.
type Plan struct {
	Format    string   `json:"format"`
	ChainID   string   `json:"chain_id"`
	Operator  string   `json:"operator"`
	Registry  string   `json:"registry"`
	Factory   string   `json:"factory"`
	TableCID  string   `json:"table_cid"`
	Scenarios []string `json:"scenarios"`
	// RunLabel is free text. Changing it is how an operator asks for a
	// second, independent dataset from the same table.
	RunLabel string `json:"run_label,omitempty"`
}

func NewPlan(chainID *big.Int, operator, registry common.Address, factory string, tbl scenario.Table, label string) (Plan, error) {
	if chainID == nil {
		return Plan{}, fmt.Errorf("runrecord: chain id required")
	}
	canon, err := tbl.Canonical()
	if err != nil {
		return Plan{}, fmt.Errorf("runrecord: canonical table: %w", err)
	}
	tableCID, err := storage.Sum(canon)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Format:    PlanFormat,
		ChainID:   chainID.String(),
		Operator:  operator.Hex(),
		Registry:  registry.Hex(),
		Factory:   factory,
		TableCID:  tableCID.String(),
		Scenarios: tbl.IDs(),
		RunLabel:  label,
	}, nil
}

func (p Plan) Bytes() ([]byte, error) {
	return json.Marshal(p)
}

func (p Plan) CID() (cid.Cid, error) {
	b, err := p.Bytes()
	if err != nil {
		return cid.Undef, err
	}
	return storage.Sum(b)
}

// Record is the stored form of a finished run.
type Record struct {
	Format   string              `json:"format"`
	PlanCID  string              `json:"plan_cid"`
	Started  time.Time           `json:"started"`
	Finished time.Time           `json:"finished"`
	Report   orchestrator.Report `json:"report"`
}

// Guard claims plans and stores reports.
type Guard struct {
	CAS storage.CAS
}

// Claim stores p and returns its CID. A plan that is already stored is
// refused with KindAlreadyRun. Stores that implement storage.Claimer, the
// record daemon among them, let exactly one of several concurrent claims of
// the same plan through.
func (g Guard) Claim(ctx context.Context, p Plan) (cid.Cid, error) {
	if g.CAS == nil {
		return cid.Undef, storage.ErrNoBackends
	}
	b, err := p.Bytes()
	if err != nil {
		return cid.Undef, err
	}
	id, created, err := storage.Claim(ctx, g.CAS, b)
	if err != nil {
		return cid.Undef, &Error{Kind: KindStore, Message: "claim plan", Cause: err}
	}
	if !created {
		return id, &Error{Kind: KindAlreadyRun, CID: id.String(), Message: fmt.Sprintf("plan for %v (label %q) was already run", p.Scenarios, p.RunLabel)}
	}
	return id, nil
}

// StoreReport stores the outcome of the run claimed under planCID.
func (g Guard) StoreReport(ctx context.Context, planCID cid.Cid, started, finished time.Time, rep orchestrator.Report) (cid.Cid, error) {
	if g.CAS == nil {
		return cid.Undef, storage.ErrNoBackends
	}
	b, err := json.Marshal(Record{
		Format:   ReportFormat,
		PlanCID:  planCID.String(),
		Started:  started.UTC(),
		Finished: finished.UTC(),
		Report:   rep,
	})
	if err != nil {
		return cid.Undef, err
	}
	id, err := g.CAS.Put(ctx, b)
	if err != nil {
		return cid.Undef, &Error{Kind: KindStore, Message: "store report", Cause: err}
	}
	return id, nil
}

// Get returns a stored plan or report, checked against its CID.
func (g Guard) Get(ctx context.Context, s string) ([]byte, error) {
	if g.CAS == nil {
		return nil, storage.ErrNoBackends
	}
	id, err := storage.ParseCID(s)
	if err != nil {
		return nil, err
	}
	b, err := g.CAS.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := storage.Verify(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Closure returns ids plus the plan of every report among them, and names
// each such plan "<report cid>/plan".
func (g Guard) Closure(ctx context.Context, ids []cid.Cid) ([]cid.Cid, map[string]cid.Cid, error) {
	if g.CAS == nil {
		return nil, nil, storage.ErrNoBackends
	}
	out := append([]cid.Cid(nil), ids...)
	names := map[string]cid.Cid{}
	for _, id := range ids {
		b, err := g.CAS.Get(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("runrecord: %s: %w", id, err)
		}
		var head struct {
			Format  string `json:"format"`
			PlanCID string `json:"plan_cid"`
		}
		if json.Unmarshal(b, &head) != nil || head.Format != ReportFormat {
			continue
		}
		plan, err := storage.ParseCID(head.PlanCID)
		if err != nil {
			return nil, nil, fmt.Errorf("runrecord: report %s: plan: %w", id, err)
		}
		out = append(out, plan)
		names[id.String()+"/plan"] = plan
	}
	return out, names, nil
}
