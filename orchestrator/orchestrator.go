// Package orchestrator runs the scenario table: for each scenario it
// provisions the asset, creates the vault, approves it, deposits the
// population and checks the post-conditions.
//
// Everything runs on one goroutine. All transactions come from one account
// and every one of them is confirmed before the next is sent, so scenarios
// and the steps inside them are strictly sequential. A failing scenario
// stops at the failing step; the next scenario still runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"xdao.co/vaultseed/chain"
	"xdao.co/vaultseed/factory"
	"xdao.co/vaultseed/provision"
	"xdao.co/vaultseed/scenario"
)

const tracerName = "xdao.co/vaultseed/orchestrator"

// DefaultApprovalGas bounds setApprovalForAll.
const DefaultApprovalGas uint64 = 150_000

type Config struct {
	Operator    *chain.Operator
	Provisioner *provision.Provisioner
	Factory     *factory.Client
	// Holders resolves every holder ref used by the table, including
	// scenario.OperatorRef.
	Holders map[string]common.Address
	// Verify checks post-conditions and moves passing scenarios to
	// Complete. Without it scenarios end in Populated.
	Verify      bool
	ApprovalGas uint64
	Logger      zerolog.Logger
	Tracer      trace.Tracer
}

type Orchestrator struct {
	op      *chain.Operator
	prov    *provision.Provisioner
	fac     *factory.Client
	holders map[string]common.Address
	verify  bool
	gas     uint64
	log     zerolog.Logger
	tracer  trace.Tracer
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Operator == nil || cfg.Provisioner == nil || cfg.Factory == nil {
		return nil, errors.New("orchestrator: operator, provisioner and factory are required")
	}
	op, ok := cfg.Holders[scenario.OperatorRef]
	if !ok || op != cfg.Operator.Address() {
		return nil, fmt.Errorf("orchestrator: holder %q must resolve to the operator %s", scenario.OperatorRef, cfg.Operator.Address().Hex())
	}
	if cfg.ApprovalGas == 0 {
		cfg.ApprovalGas = DefaultApprovalGas
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{
		op:      cfg.Operator,
		prov:    cfg.Provisioner,
		fac:     cfg.Factory,
		holders: cfg.Holders,
		verify:  cfg.Verify,
		gas:     cfg.ApprovalGas,
		log:     cfg.Logger,
		tracer:  cfg.Tracer,
	}, nil
}

// Run executes every scenario in table order. The table must validate and
// every holder ref must resolve before anything is submitted.
func (o *Orchestrator) Run(ctx context.Context, tbl scenario.Table) (Report, error) {
	if err := tbl.Validate(); err != nil {
		return Report{}, err
	}
	if err := o.checkHolders(tbl); err != nil {
		return Report{}, err
	}

	ctx, span := o.tracer.Start(ctx, "seed", trace.WithAttributes(attribute.Int("scenarios", len(tbl.Scenarios))))
	defer span.End()

	var rep Report
	for _, s := range tbl.Scenarios {
		rep.Outcomes = append(rep.Outcomes, o.RunScenario(ctx, s))
	}
	if !rep.OK() {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d scenarios failed", rep.Failed(), len(rep.Outcomes)))
	}
	return rep, nil
}

func (o *Orchestrator) checkHolders(tbl scenario.Table) error {
	need := func(id, ref string) error {
		if _, ok := o.holders[ref]; !ok {
			return fmt.Errorf("orchestrator: scenario %s: holder %q has no address", id, ref)
		}
		return nil
	}
	for _, s := range tbl.Scenarios {
		for _, m := range s.Mints {
			if err := need(s.ID, m.Holder); err != nil {
				return err
			}
		}
		for _, d := range s.Deposits {
			if err := need(s.ID, d.RecipientRef()); err != nil {
				return err
			}
		}
		for _, p := range s.Post {
			if p.HolderOwns != nil {
				if err := need(s.ID, p.HolderOwns.Holder); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// run carries one scenario through its states.
type run struct {
	o    *Orchestrator
	out  *Outcome
	log  zerolog.Logger
	span trace.Span
}

func (r *run) advance(to State) error {
	if err := ValidateTransition(r.out.State, to); err != nil {
		return err
	}
	r.out.State = to
	r.out.History = append(r.out.History, to)
	r.span.AddEvent("state", trace.WithAttributes(attribute.String("state", string(to))))
	r.log.Debug().Str("state", string(to)).Msg("advanced")
	return nil
}

func (r *run) fail(step Step, err error) {
	kind := ErrorKind(err)
	r.out.Step = step
	r.out.Kind = kind
	r.out.Error = err.Error()
	if terr := ValidateTransition(r.out.State, StateFailed); terr == nil {
		r.out.State = StateFailed
		r.out.History = append(r.out.History, StateFailed)
	}
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, kind)
	r.log.Error().Str("step", string(step)).Str("kind", kind).Err(err).Msg("scenario failed")
}

// step runs fn inside a child span and advances to next on success.
func (r *run) step(ctx context.Context, step Step, next State, fn func(context.Context) error) bool {
	ctx, span := r.o.tracer.Start(ctx, string(step))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
		r.fail(step, err)
		return false
	}
	if err := r.advance(next); err != nil {
		r.fail(step, err)
		return false
	}
	return true
}

// RunScenario drives one scenario as far as it goes and reports where it
// stopped.
func (o *Orchestrator) RunScenario(ctx context.Context, s scenario.Spec) Outcome {
	out := Outcome{
		Scenario: s.ID,
		State:    StateDefined,
		History:  []State{StateDefined},
		Labels:   s.Labels(),
	}
	sent := len(o.op.Sent())
	o.drive(ctx, s, &out)
	out.Transactions = len(o.op.Sent()) - sent
	return out
}

func (o *Orchestrator) drive(ctx context.Context, s scenario.Spec, out *Outcome) {
	ctx, span := o.tracer.Start(ctx, "scenario", trace.WithAttributes(attribute.String("scenario.id", s.ID)))
	defer span.End()

	r := &run{o: o, out: out, log: o.log.With().Str("scenario", s.ID).Logger(), span: span}
	if err := ctx.Err(); err != nil {
		r.fail(StepProvision, err)
		return
	}
	r.log.Info().Str("title", s.Title).Int("items", s.ItemCount()).Int("population", len(s.Population())).Msg("scenario started")

	var asset provision.Asset
	var vault factory.Vault

	ok := r.step(ctx, StepProvision, StateAssetDeployed, func(ctx context.Context) error {
		req := provision.Request{Kind: s.Asset.Kind, Name: s.Asset.Name, Symbol: s.Asset.Symbol, BaseURI: s.Asset.BaseURI}
		for _, m := range s.MintSplit() {
			req.Mints = append(req.Mints, provision.Mint{Holder: o.holders[m.Holder], TokenID: m.TokenID})
		}
		var err error
		asset, err = o.prov.Provision(ctx, req)
		if asset.Address != (common.Address{}) {
			out.Asset = asset.Address.Hex()
		}
		return err
	})
	if !ok {
		return
	}

	ok = r.step(ctx, StepCreateVault, StateVaultCreated, func(ctx context.Context) error {
		var err error
		vault, err = o.fac.CreateVault(ctx, asset.Address, factory.Params{
			Is1155:        s.Vault.Is1155,
			AllowAllItems: s.Vault.AllowAll(),
			Name:          s.Vault.Name,
			Symbol:        s.Vault.Symbol,
		})
		if err != nil {
			return err
		}
		out.Vault = vault.Address.Hex()
		if vault.ID != nil {
			out.VaultID = vault.ID.String()
		}
		return nil
	})
	if !ok {
		return
	}

	ok = r.step(ctx, StepAuthorize, StateAuthorized, func(ctx context.Context) error {
		return o.prov.SetApprovalForAll(ctx, asset, vault.Address, true, o.gas)
	})
	if !ok {
		return
	}

	ok = r.step(ctx, StepPopulate, StatePopulated, func(ctx context.Context) error {
		for _, d := range s.Deposits {
			ids := d.Expand()
			if err := o.fac.MintTo(ctx, vault, ids, o.holders[d.RecipientRef()]); err != nil {
				return err
			}
			out.Deposited = append(out.Deposited, ids...)
		}
		return nil
	})
	if !ok {
		return
	}

	if o.verify {
		if !r.step(ctx, StepVerify, StateComplete, func(ctx context.Context) error {
			return o.verifyPost(ctx, s, asset, vault)
		}) {
			return
		}
	}
	r.log.Info().Str("state", string(out.State)).Str("asset", out.Asset).Str("vault", out.Vault).Msg("scenario finished")
}
