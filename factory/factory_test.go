package factory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/vaultseed/artifacts"
	"xdao.co/vaultseed/chain"
	"xdao.co/vaultseed/chaintest"
	"xdao.co/vaultseed/provision"
	"xdao.co/vaultseed/receipt"
	"xdao.co/vaultseed/resolver"
)

type fixture struct {
	sim    *chaintest.Sim
	op     *chain.Operator
	prov   *provision.Provisioner
	client *Client
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := artifacts.LoadFS(chaintest.Hardhat(), chaintest.ArtifactsDir, chaintest.DeploymentsDir)
	require.NoError(t, err)
	sim := chaintest.New()
	opts := chain.DefaultOptions()
	opts.PollInterval = time.Millisecond
	op, err := chain.NewOperator(ctx, sim, chaintest.DeployerKey(), big.NewInt(chaintest.DefaultChainID), opts)
	require.NoError(t, err)

	entry, err := resolver.New(sim, chaintest.RegistryAddress, store).Resolve(ctx, Name)
	require.NoError(t, err)
	vaultABI, err := store.Schema(VaultContract)
	require.NoError(t, err)
	client, err := New(op, entry, vaultABI, DefaultGasLimits(), zerolog.Nop())
	require.NoError(t, err)
	return &fixture{sim: sim, op: op, prov: provision.New(op, store, provision.DefaultGasLimits(), zerolog.Nop()), client: client}
}

func (f *fixture) asset(t *testing.T, ids ...uint64) provision.Asset {
	t.Helper()
	req := provision.Request{Kind: provision.KindStandard, Name: "NFT1 Name", Symbol: "NFT1"}
	for _, id := range ids {
		req.Mints = append(req.Mints, provision.Mint{Holder: f.op.Address(), TokenID: id})
	}
	a, err := f.prov.Provision(context.Background(), req)
	require.NoError(t, err)
	return a
}

var params = Params{AllowAllItems: true, Name: "FNFT Collection 1", Symbol: "FNFTC1"}

func TestCreateVault(t *testing.T) {
	f := setup(t)
	a := f.asset(t)

	v, err := f.client.CreateVault(context.Background(), a.Address, params)
	require.NoError(t, err)
	require.Len(t, f.sim.Vaults(), 1)
	assert.Equal(t, f.sim.Vaults()[0], v.Address)
	assert.Equal(t, a.Address, v.Asset)
	assert.Equal(t, int64(0), v.ID.Int64())
	assert.Equal(t, chaintest.FNFTCollection, f.sim.ContractName(v.Address))
}

func TestCreateVault_TwoAssetsTwoVaults(t *testing.T) {
	f := setup(t)
	a, b := f.asset(t), f.asset(t)
	va, err := f.client.CreateVault(context.Background(), a.Address, params)
	require.NoError(t, err)
	vb, err := f.client.CreateVault(context.Background(), b.Address, params)
	require.NoError(t, err)
	assert.NotEqual(t, va.Address, vb.Address)
	assert.Equal(t, int64(1), vb.ID.Int64())
}

func TestCreateVault_Reverted(t *testing.T) {
	f := setup(t)
	a := f.asset(t)
	f.sim.RevertNext("createVault")

	v, err := f.client.CreateVault(context.Background(), a.Address, params)
	require.True(t, IsKind(err, KindVaultCreationReverted), "got %v", err)
	assert.True(t, chain.IsKind(err, chain.KindReverted))
	assert.Empty(t, v.Address)
	assert.Empty(t, f.sim.Vaults())
}

func TestCreateVault_NoEvent(t *testing.T) {
	f := setup(t)
	a := f.asset(t)
	f.sim.DropEventsNext("createVault")

	_, err := f.client.CreateVault(context.Background(), a.Address, params)
	require.True(t, receipt.IsKind(err, receipt.KindEventNotFound), "got %v", err)
}

func TestMintTo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.asset(t, 1, 2, 3)
	v, err := f.client.CreateVault(ctx, a.Address, params)
	require.NoError(t, err)

	err = f.client.MintTo(ctx, v, []uint64{1}, f.op.Address())
	require.True(t, chain.IsKind(err, chain.KindReverted), "deposit before approval: %v", err)

	require.NoError(t, f.prov.SetApprovalForAll(ctx, a, v.Address, true, 100_000))
	require.NoError(t, f.client.MintTo(ctx, v, []uint64{1, 3}, f.op.Address()))
	assert.Equal(t, []uint64{1, 3}, f.sim.Holdings(v.Address))
}

func TestNew_RequiresInterfaces(t *testing.T) {
	_, err := New(nil, resolver.Entry{Name: Name}, nil, DefaultGasLimits(), zerolog.Nop())
	require.Error(t, err)
}
