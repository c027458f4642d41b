package resolver

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/vaultseed/artifacts"
	"xdao.co/vaultseed/chaintest"
)

func newResolver(t *testing.T) (*Resolver, *chaintest.Sim) {
	t.Helper()
	store, err := artifacts.LoadFS(chaintest.Hardhat(), chaintest.ArtifactsDir, chaintest.DeploymentsDir)
	require.NoError(t, err)
	sim := chaintest.New()
	return New(sim, chaintest.RegistryAddress, store), sim
}

func TestResolve_RegisteredName(t *testing.T) {
	r, _ := newResolver(t)
	e, err := r.Resolve(context.Background(), "FNFTCollectionFactory")
	require.NoError(t, err)
	assert.Equal(t, chaintest.FactoryAddress, e.Address)
	assert.Equal(t, "FNFTCollectionFactory", e.Label)
	require.NotNil(t, e.ABI)
	assert.Contains(t, e.ABI.Methods, "createVault")
}

func TestResolve_Unregistered(t *testing.T) {
	r, _ := newResolver(t)
	e, err := r.Resolve(context.Background(), "FNFTSingleFactory")
	require.True(t, IsKind(err, KindUnregistered), "got %v", err)
	assert.Equal(t, common.Address{}, e.Address)
}

func TestResolve_AlwaysRequeries(t *testing.T) {
	r, sim := newResolver(t)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "FNFTCollectionFactory")
	require.NoError(t, err)

	upgraded := common.HexToAddress("0x0000000000000000000000000000000000002001")
	sim.SetProxy("FNFTCollectionFactory", upgraded)
	e, err := r.Resolve(ctx, "FNFTCollectionFactory")
	require.NoError(t, err)
	assert.Equal(t, upgraded, e.Address)

	sim.SetProxy("FNFTCollectionFactory", common.Address{})
	_, err = r.Resolve(ctx, "FNFTCollectionFactory")
	assert.True(t, IsKind(err, KindUnregistered))
}

func TestResolve_MissingSchema(t *testing.T) {
	r, sim := newResolver(t)
	sim.SetProxy("VaultManager", common.HexToAddress("0x0000000000000000000000000000000000003000"))

	e, err := r.Resolve(context.Background(), "VaultManager")
	require.True(t, IsKind(err, KindMissingSchema), "got %v", err)
	require.ErrorIs(t, err, artifacts.ErrNotFound)
	assert.NotEqual(t, common.Address{}, e.Address)
}

func TestResolve_InvalidNameNeverQueries(t *testing.T) {
	r, sim := newResolver(t)
	require.NoError(t, sim.Close())
	_, err := r.Resolve(context.Background(), "")
	assert.True(t, IsKind(err, KindInvalidName))
}

func TestResolve_RegistryWithoutCode(t *testing.T) {
	store, err := artifacts.LoadFS(chaintest.Hardhat(), chaintest.ArtifactsDir, chaintest.DeploymentsDir)
	require.NoError(t, err)
	r := New(chaintest.New(), common.HexToAddress("0x00000000000000000000000000000000000000ff"), store)
	_, err = r.Resolve(context.Background(), "FNFTCollectionFactory")
	assert.True(t, IsKind(err, KindQuery), "got %v", err)
}
