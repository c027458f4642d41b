package provision

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/vaultseed/artifacts"
	"xdao.co/vaultseed/chain"
	"xdao.co/vaultseed/chaintest"
)

func setup(t *testing.T) (*Provisioner, *chaintest.Sim, *chain.Operator) {
	t.Helper()
	store, err := artifacts.LoadFS(chaintest.Hardhat(), chaintest.ArtifactsDir, chaintest.DeploymentsDir)
	require.NoError(t, err)
	sim := chaintest.New()
	opts := chain.DefaultOptions()
	opts.PollInterval = time.Millisecond
	op, err := chain.NewOperator(context.Background(), sim, chaintest.DeployerKey(), big.NewInt(chaintest.DefaultChainID), opts)
	require.NoError(t, err)
	return New(op, store, DefaultGasLimits(), zerolog.Nop()), sim, op
}

func TestProvision_StandardWithSplitHolders(t *testing.T) {
	p, sim, op := setup(t)
	holder := crypto.PubkeyToAddress(chaintest.HolderKey().PublicKey)
	req := Request{
		Kind:    KindStandard,
		Name:    "NFT8 Name",
		Symbol:  "NFT8",
		BaseURI: "ipfs://QmQNdnPx1K6a8jd5XJEJvGorx73U9pmpqU2YAhEfQZDwcw/",
		Mints: []Mint{
			{Holder: op.Address(), TokenID: 1},
			{Holder: op.Address(), TokenID: 2},
			{Holder: op.Address(), TokenID: 3},
			{Holder: holder, TokenID: 4},
			{Holder: holder, TokenID: 5},
		},
	}

	asset, err := p.Provision(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "StandardMockNFT", asset.Contract)
	assert.Equal(t, op.Address(), asset.Owner)
	assert.Equal(t, req.BaseURI, sim.BaseURI(asset.Address))
	assert.Len(t, sim.Transactions(), 7)

	for _, m := range req.Mints {
		owner, err := p.OwnerOf(context.Background(), asset, m.TokenID)
		require.NoError(t, err)
		assert.Equal(t, m.Holder, owner, "token %d", m.TokenID)
	}
}

func TestProvision_MetadataLessSkipsBaseURI(t *testing.T) {
	p, sim, op := setup(t)
	asset, err := p.Provision(context.Background(), Request{
		Kind:    KindMetadataLess,
		Name:    "NFT6 Name",
		Symbol:  "NFT6",
		BaseURI: "ignored://",
		Mints:   []Mint{{Holder: op.Address(), TokenID: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "NoURIMockNFT", asset.Contract)
	assert.Len(t, sim.Transactions(), 2)

	err = p.SetBaseURI(context.Background(), asset, "ipfs://x/")
	require.ErrorContains(t, err, "no setBaseURI")
}

func TestProvision_DuplicateMintReverts(t *testing.T) {
	p, _, op := setup(t)
	asset, err := p.Provision(context.Background(), Request{
		Kind:   KindStandard,
		Name:   "NFT1 Name",
		Symbol: "NFT1",
		Mints:  []Mint{{Holder: op.Address(), TokenID: 1}, {Holder: op.Address(), TokenID: 1}},
	})
	require.True(t, chain.IsKind(err, chain.KindReverted), "got %v", err)
	assert.NotEqual(t, common.Address{}, asset.Address)
}

func TestProvision_DeployRevert(t *testing.T) {
	p, sim, _ := setup(t)
	sim.RevertNext("StandardMockNFT")
	asset, err := p.Provision(context.Background(), Request{Kind: KindStandard, Name: "n", Symbol: "s"})
	require.True(t, chain.IsKind(err, chain.KindReverted), "got %v", err)
	assert.Equal(t, common.Address{}, asset.Address)
}

func TestProvision_UnknownKind(t *testing.T) {
	p, sim, _ := setup(t)
	_, err := p.Provision(context.Background(), Request{Kind: "erc1155"})
	require.Error(t, err)
	assert.Empty(t, sim.Transactions())
}

func TestOwnerOf_Unminted(t *testing.T) {
	p, _, _ := setup(t)
	asset, err := p.Deploy(context.Background(), KindStandard, "n", "s")
	require.NoError(t, err)
	_, err = p.OwnerOf(context.Background(), asset, 9)
	require.True(t, chain.IsKind(err, chain.KindCall), "got %v", err)
}
