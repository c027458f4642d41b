package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/vaultseed/keys"
)

const hardhat0 = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func valid() Config {
	c := Default()
	c.RPCURL = "http://127.0.0.1:8545"
	c.Key.PrivateKey = hardhat0
	return c
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, int64(2_000_000_000), c.Gas.FeeCap)
	assert.Equal(t, int64(1_000_000_000), c.Gas.TipCap)
	assert.Equal(t, "FNFTCollectionFactory", c.Factory)
	assert.True(t, c.Verify)
	require.NoError(t, valid().Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc_url: http://node:8545
chain_id: 1337
key:
  private_key: "`+hardhat0+`"
confirm:
  timeout: 30s
  poll_interval: 500ms
holders:
  chosen: "0x0000000000000000000000000000000000000abc"
verify: false
records:
  write_policy: all
  backends:
    - name: memory
`), 0o600))

	c, err := Load(path, env(map[string]string{"RPC_URL": "http://env:8545", "DEPLOYMENTS_DIR": "deployments/goerli"}))
	require.NoError(t, err)
	assert.Equal(t, "http://env:8545", c.RPCURL)
	assert.Equal(t, int64(1337), c.ChainID)
	assert.Equal(t, 30*time.Second, c.Confirm.Timeout)
	assert.Equal(t, 500*time.Millisecond, c.Confirm.PollInterval)
	assert.Equal(t, "deployments/goerli", c.DeploymentsDir)
	assert.False(t, c.Verify)
	require.NotNil(t, c.Records)
	assert.Equal(t, "all", c.Records.WritePolicy)
	// untouched fields keep their defaults
	assert.Equal(t, Default().Gas.Deploy, c.Gas.Deploy)
	require.NoError(t, c.Validate())
}

func TestLoad_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpc_urll: x\n"), 0o600))
	_, err := Load(path, env(nil))
	require.Error(t, err)
}

func TestLoad_BadChainID(t *testing.T) {
	_, err := Load("", env(map[string]string{"CHAIN_ID": "hardhat"}))
	require.ErrorContains(t, err, "CHAIN_ID")
}

func TestApplyFlags(t *testing.T) {
	c, err := Load("", env(map[string]string{"RPC_URL": "http://env:8545", "PRIVATE_KEY": hardhat0}))
	require.NoError(t, err)

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--rpc-url", "http://flag:8545",
		"--chain-id", "5",
		"--holder", "chosen=0x0000000000000000000000000000000000000001",
		"--holder", "other=0x0000000000000000000000000000000000000002",
		"--confirm-timeout", "1m",
	}))
	require.NoError(t, ApplyFlags(&c, fs))

	assert.Equal(t, "http://flag:8545", c.RPCURL)
	assert.Equal(t, int64(5), c.ChainID)
	assert.Equal(t, time.Minute, c.Confirm.Timeout)
	assert.Equal(t, hardhat0, c.Key.PrivateKey)
	h, err := c.HolderOverrides()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2"), h["other"])
}

func TestApplyFlags_BadHolder(t *testing.T) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(nopWriter{})
	RegisterFlags(fs)
	require.Error(t, fs.Parse([]string{"--holder", "nope"}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		msg  string
	}{
		{"no rpc", func(c *Config) { c.RPCURL = "" }, "rpc url"},
		{"chain id", func(c *Config) { c.ChainID = 0 }, "chain id"},
		{"no key", func(c *Config) { c.Key.PrivateKey = "" }, "private key or keystore"},
		{"keystore without password", func(c *Config) { c.Key.PrivateKey = ""; c.Key.KeystoreFile = "k.json" }, "password file"},
		{"tip over fee", func(c *Config) { c.Gas.TipCap = c.Gas.FeeCap + 1 }, "tip cap exceeds"},
		{"zero gas", func(c *Config) { c.Gas.CreateVault = 0 }, "gas.create_vault"},
		{"poll", func(c *Config) { c.Confirm.PollInterval = 0 }, "poll interval"},
		{"registry", func(c *Config) { c.RegistryAddress = "0xzz" }, "registry address"},
		{"no registry source", func(c *Config) { c.DeploymentsDir = "" }, "deployments dir"},
		{"holder", func(c *Config) { c.Holders = map[string]string{"chosen": "x"} }, "holder"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mut(&c)
			require.ErrorContains(t, c.Validate(), tc.msg)
		})
	}

	c := valid()
	c.Key.KeystoreFile = "k.json"
	require.ErrorIs(t, c.Validate(), keys.ErrAmbiguousSource)
}

type addrs map[string]common.Address

func (a addrs) Address(name string) (common.Address, error) {
	if v, ok := a[name]; ok {
		return v, nil
	}
	return common.Address{}, os.ErrNotExist
}

func TestRegistry(t *testing.T) {
	fromFile := common.HexToAddress("0x1000")
	c := valid()
	got, err := c.Registry(addrs{RegistryContract: fromFile})
	require.NoError(t, err)
	assert.Equal(t, fromFile, got)

	c.RegistryAddress = "0x0000000000000000000000000000000000002000"
	got, err = c.Registry(addrs{})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2000"), got)

	c.RegistryAddress = ""
	_, err = c.Registry(addrs{})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDerivedOptions(t *testing.T) {
	c := valid()
	c.Confirm.Retries = 4
	o := c.ChainOptions(zerolog.Nop())
	assert.Equal(t, int64(2_000_000_000), o.GasFeeCap.Int64())
	assert.Equal(t, 4, o.ConfirmRetries)
	assert.Equal(t, c.Gas.Mint, c.ProvisionGas().Mint)
	assert.Equal(t, c.Gas.MintToPerItem, c.FactoryGas().MintToPerItem)
	assert.Equal(t, c.Key.PrivateKey, c.KeySource().Hex)
}
