package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"xdao.co/vaultseed/artifacts"
	"xdao.co/vaultseed/chain"
	"xdao.co/vaultseed/chaintest"
	"xdao.co/vaultseed/factory"
	"xdao.co/vaultseed/provision"
	"xdao.co/vaultseed/resolver"
	"xdao.co/vaultseed/scenario"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	sim     *chaintest.Sim
	op      *chain.Operator
	holders map[string]common.Address
	orch    *Orchestrator
}

func setup(t *testing.T, tbl scenario.Table, verify bool) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := artifacts.LoadFS(chaintest.Hardhat(), chaintest.ArtifactsDir, chaintest.DeploymentsDir)
	require.NoError(t, err)
	sim := chaintest.New()
	opts := chain.DefaultOptions()
	opts.PollInterval = time.Millisecond
	op, err := chain.NewOperator(ctx, sim, chaintest.DeployerKey(), big.NewInt(chaintest.DefaultChainID), opts)
	require.NoError(t, err)

	entry, err := resolver.New(sim, chaintest.RegistryAddress, store).Resolve(ctx, factory.Name)
	require.NoError(t, err)
	vaultABI, err := store.Schema(factory.VaultContract)
	require.NoError(t, err)
	fac, err := factory.New(op, entry, vaultABI, factory.DefaultGasLimits(), zerolog.Nop())
	require.NoError(t, err)

	holders, err := tbl.ResolveHolders(op.Address(), nil)
	require.NoError(t, err)
	orch, err := New(Config{
		Operator:    op,
		Provisioner: provision.New(op, store, provision.DefaultGasLimits(), zerolog.Nop()),
		Factory:     fac,
		Holders:     holders,
		Verify:      verify,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return &fixture{sim: sim, op: op, holders: holders, orch: orch}
}

func only(t *testing.T, ids ...string) scenario.Table {
	t.Helper()
	tbl, err := scenario.Default().Filter(ids)
	require.NoError(t, err)
	return tbl
}

func TestRun_DefaultTable(t *testing.T) {
	tbl := scenario.Default()
	f := setup(t, tbl, true)

	rep, err := f.orch.Run(context.Background(), tbl)
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, len(tbl.Scenarios))
	for _, o := range rep.Outcomes {
		assert.Equal(t, StateComplete, o.State, "%s: %s", o.Scenario, o.Error)
		assert.NotEmpty(t, o.Vault, o.Scenario)
	}
	assert.True(t, rep.OK())
	assert.Len(t, f.sim.Vaults(), len(tbl.Scenarios))
}

func TestRunScenario_FullVault(t *testing.T) {
	tbl := only(t, "nft1")
	f := setup(t, tbl, true)

	o := f.orch.RunScenario(context.Background(), tbl.Scenarios[0])
	require.Equal(t, StateComplete, o.State, o.Error)
	assert.Equal(t, []State{StateDefined, StateAssetDeployed, StateVaultCreated, StateAuthorized, StatePopulated, StateComplete}, o.History)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, o.Deposited)
	assert.Equal(t, "0", o.VaultID)
	// deploy, setBaseURI, five mints, createVault, approval, one mintTo
	assert.Equal(t, 10, o.Transactions)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, f.sim.Holdings(common.HexToAddress(o.Vault)))
	assert.Equal(t, "ipfs://QmVTuf8VqSjJ6ma6ykTJiuVtvAY9CHJiJnXsgSMf5rBRtZ/", f.sim.BaseURI(common.HexToAddress(o.Asset)))
}

func TestRunScenario_EmptyVault(t *testing.T) {
	tbl := only(t, "nft3")
	f := setup(t, tbl, true)

	o := f.orch.RunScenario(context.Background(), tbl.Scenarios[0])
	require.Equal(t, StateComplete, o.State, o.Error)
	assert.Empty(t, o.Deposited)
	assert.Empty(t, f.sim.Holdings(common.HexToAddress(o.Vault)))
	for id := uint64(1); id <= 5; id++ {
		owner, ok := f.sim.OwnerOf(common.HexToAddress(o.Asset), id)
		require.True(t, ok)
		assert.Equal(t, f.op.Address(), owner)
	}
}

func TestRunScenario_SplitHolders(t *testing.T) {
	tbl := only(t, "nft8")
	f := setup(t, tbl, true)

	o := f.orch.RunScenario(context.Background(), tbl.Scenarios[0])
	require.Equal(t, StateComplete, o.State, o.Error)
	asset := common.HexToAddress(o.Asset)
	chosen := f.holders["chosen"]
	for _, id := range []uint64{4, 5} {
		owner, ok := f.sim.OwnerOf(asset, id)
		require.True(t, ok)
		assert.Equal(t, chosen, owner)
	}
	assert.Equal(t, []uint64{1, 2, 3}, f.sim.Holdings(common.HexToAddress(o.Vault)))
}

func TestRun_FailureDoesNotStopLaterScenarios(t *testing.T) {
	tbl := only(t, "nft1", "nft2")
	f := setup(t, tbl, true)
	f.sim.RevertNext("createVault")

	rep, err := f.orch.Run(context.Background(), tbl)
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 2)

	first := rep.Outcomes[0]
	assert.Equal(t, StateFailed, first.State)
	assert.Equal(t, StepCreateVault, first.Step)
	assert.Equal(t, string(factory.KindVaultCreationReverted), first.Kind)
	assert.NotEmpty(t, first.Asset)
	assert.Empty(t, first.Vault)

	assert.Equal(t, StateComplete, rep.Outcomes[1].State, rep.Outcomes[1].Error)
	assert.False(t, rep.OK())
	assert.Equal(t, 1, rep.Failed())
	require.Len(t, f.sim.Vaults(), 1)
	assert.Equal(t, common.HexToAddress(rep.Outcomes[1].Vault), f.sim.Vaults()[0])
}

func TestRunScenario_ApprovalReverted(t *testing.T) {
	tbl := only(t, "nft1")
	f := setup(t, tbl, true)
	f.sim.RevertNext("setApprovalForAll")

	o := f.orch.RunScenario(context.Background(), tbl.Scenarios[0])
	assert.Equal(t, StateFailed, o.State)
	assert.Equal(t, StepAuthorize, o.Step)
	assert.Equal(t, string(chain.KindReverted), o.Kind)
	assert.NotEmpty(t, o.Vault)
	assert.Empty(t, f.sim.Holdings(common.HexToAddress(o.Vault)))
}

func TestRun_RerunCreatesIndependentVaults(t *testing.T) {
	tbl := only(t, "nft2")
	f := setup(t, tbl, true)
	ctx := context.Background()

	a, err := f.orch.Run(ctx, tbl)
	require.NoError(t, err)
	b, err := f.orch.Run(ctx, tbl)
	require.NoError(t, err)
	require.True(t, a.OK())
	require.True(t, b.OK())

	assert.NotEqual(t, a.Outcomes[0].Asset, b.Outcomes[0].Asset)
	assert.NotEqual(t, a.Outcomes[0].Vault, b.Outcomes[0].Vault)
	assert.Equal(t, "1", b.Outcomes[0].VaultID)
	assert.Equal(t, []uint64{1}, f.sim.Holdings(common.HexToAddress(a.Outcomes[0].Vault)))
}

func TestRun_NoncesStrictlyIncrease(t *testing.T) {
	tbl := only(t, "nft1", "nft3", "nft8")
	f := setup(t, tbl, true)

	_, err := f.orch.Run(context.Background(), tbl)
	require.NoError(t, err)
	txs := f.sim.Transactions()
	require.NotEmpty(t, txs)
	for i, tx := range txs {
		assert.Equal(t, uint64(i), tx.Nonce())
	}
}

func TestRun_WithoutVerifyStopsAtPopulated(t *testing.T) {
	tbl := only(t, "nft2")
	f := setup(t, tbl, false)

	rep, err := f.orch.Run(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, StatePopulated, rep.Outcomes[0].State)
	assert.True(t, rep.OK())
}

func TestRunScenario_PostConditionFailed(t *testing.T) {
	tbl := only(t, "nft2")
	tbl.Scenarios[0].Post = []scenario.PostCondition{{VaultHolds: &scenario.VaultHolds{Count: 5}}}
	f := setup(t, tbl, true)

	o := f.orch.RunScenario(context.Background(), tbl.Scenarios[0])
	assert.Equal(t, StateFailed, o.State)
	assert.Equal(t, StepVerify, o.Step)
	assert.Equal(t, KindPostCondition, o.Kind)
	assert.Contains(t, o.Error, "vault holds 1, want 5")
}

func TestRunScenario_Canceled(t *testing.T) {
	tbl := only(t, "nft1")
	f := setup(t, tbl, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := f.orch.RunScenario(ctx, tbl.Scenarios[0])
	assert.Equal(t, StateFailed, o.State)
	assert.Equal(t, StepProvision, o.Step)
	assert.Equal(t, KindCanceled, o.Kind)
	assert.Zero(t, o.Transactions)
	assert.Empty(t, f.sim.Transactions())
}

func TestRun_RejectsInvalidTable(t *testing.T) {
	tbl := only(t, "nft1")
	f := setup(t, tbl, true)

	bad := tbl
	bad.Scenarios = []scenario.Spec{tbl.Scenarios[0], tbl.Scenarios[0]}
	_, err := f.orch.Run(context.Background(), bad)
	require.Error(t, err)
	assert.Empty(t, f.sim.Transactions())
}

func TestRun_RejectsUnknownHolder(t *testing.T) {
	tbl := only(t, "nft8")
	f := setup(t, tbl, true)
	delete(f.orch.holders, "chosen")

	_, err := f.orch.Run(context.Background(), tbl)
	require.ErrorContains(t, err, `holder "chosen"`)
	assert.Empty(t, f.sim.Transactions())
}

func TestNew_OperatorHolderMustMatch(t *testing.T) {
	f := setup(t, only(t, "nft1"), true)
	_, err := New(Config{
		Operator:    f.op,
		Provisioner: f.orch.prov,
		Factory:     f.orch.fac,
		Holders:     map[string]common.Address{scenario.OperatorRef: common.HexToAddress("0x01")},
	})
	require.Error(t, err)
}

func TestReport_Summary(t *testing.T) {
	rep := Report{Outcomes: []Outcome{
		{Scenario: "nft1", State: StateComplete, Asset: "0xa", Vault: "0xb", Deposited: []uint64{1, 2}},
		{Scenario: "nft2", State: StateFailed, Step: StepCreateVault, Kind: "VaultCreationReverted", Error: "boom"},
	}}
	var buf bytes.Buffer
	require.NoError(t, rep.Summary(&buf))
	out := buf.String()
	assert.Contains(t, out, "nft1")
	assert.Contains(t, out, "VaultCreationReverted at create-vault: boom")
	assert.Contains(t, out, "2 scenarios, 1 failed")
}

func TestErrorKind(t *testing.T) {
	wait := &chain.Error{Kind: chain.KindConfirmationTimeout, Message: "await", Cause: context.Canceled}
	cases := map[string]error{
		"":                    nil,
		"TransactionReverted": &chain.Error{Kind: chain.KindReverted, Message: "reverted"},
		"ReceiptUnavailable":  fmt.Errorf("step: %w", &chain.Error{Kind: chain.KindReceipt, Message: "fetch", Cause: chaintest.ErrClosed}),
		"ConfirmationTimeout": &chain.Error{Kind: chain.KindConfirmationTimeout, Message: "await"},
		KindCanceled:          wait,
		KindPostCondition:     &PostConditionError{Scenario: "nft1"},
		KindInternal:          errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ErrorKind(err), "%v", err)
	}
}
