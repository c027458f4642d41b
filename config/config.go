// Package config assembles the seed run configuration from a YAML file,
// the environment and command-line flags, in that order of precedence
// (flags win).
package config

import (
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"

	"xdao.co/vaultseed/chain"
	"xdao.co/vaultseed/factory"
	"xdao.co/vaultseed/keys"
	"xdao.co/vaultseed/provision"
	"xdao.co/vaultseed/storage/casconfig"
)

// RegistryContract is the deployment name of the proxy registry.
const RegistryContract = "MultiProxyController"

type Config struct {
	RPCURL  string `yaml:"rpc_url"`
	ChainID int64  `yaml:"chain_id"`

	Key     KeyConfig     `yaml:"key"`
	Gas     GasConfig     `yaml:"gas"`
	Confirm ConfirmConfig `yaml:"confirm"`

	// RegistryAddress overrides the MultiProxyController deployment file.
	RegistryAddress string `yaml:"registry_address,omitempty"`
	ArtifactsDir    string `yaml:"artifacts_dir"`
	DeploymentsDir  string `yaml:"deployments_dir"`
	Factory         string `yaml:"factory"`

	// Holders overrides holder refs in the scenario table.
	Holders map[string]string `yaml:"holders,omitempty"`
	// Scenarios is a scenario table file; empty means the built-in table.
	Scenarios string `yaml:"scenarios,omitempty"`
	Verify    bool   `yaml:"verify"`
	RunLabel  string `yaml:"run_label,omitempty"`

	// Records configures where plans and reports are kept. Nil disables
	// the rerun guard.
	Records *casconfig.Config `yaml:"records,omitempty"`
}

type KeyConfig struct {
	PrivateKey   string `yaml:"private_key,omitempty"`
	KeystoreFile string `yaml:"keystore_file,omitempty"`
	PasswordFile string `yaml:"password_file,omitempty"`
	Address      string `yaml:"address,omitempty"`
}

// GasConfig holds fee caps in wei and fixed per-call gas limits.
type GasConfig struct {
	FeeCap        int64  `yaml:"fee_cap"`
	TipCap        int64  `yaml:"tip_cap"`
	Deploy        uint64 `yaml:"deploy"`
	SetBaseURI    uint64 `yaml:"set_base_uri"`
	Mint          uint64 `yaml:"mint"`
	Approval      uint64 `yaml:"approval"`
	CreateVault   uint64 `yaml:"create_vault"`
	MintToBase    uint64 `yaml:"mint_to_base"`
	MintToPerItem uint64 `yaml:"mint_to_per_item"`
}

type ConfirmConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Retries      int           `yaml:"retries"`
	Backoff      time.Duration `yaml:"backoff"`
}

func Default() Config {
	co := chain.DefaultOptions()
	pg := provision.DefaultGasLimits()
	fg := factory.DefaultGasLimits()
	return Config{
		ChainID: 31337,
		Gas: GasConfig{
			FeeCap:        co.GasFeeCap.Int64(),
			TipCap:        co.GasTipCap.Int64(),
			Deploy:        pg.Deploy,
			SetBaseURI:    pg.SetBaseURI,
			Mint:          pg.Mint,
			Approval:      150_000,
			CreateVault:   fg.CreateVault,
			MintToBase:    fg.MintToBase,
			MintToPerItem: fg.MintToPerItem,
		},
		Confirm: ConfirmConfig{
			Timeout:      co.ConfirmTimeout,
			PollInterval: co.PollInterval,
			Retries:      co.ConfirmRetries,
			Backoff:      co.ConfirmBackoff,
		},
		ArtifactsDir:   "artifacts",
		DeploymentsDir: "deployments/localhost",
		Factory:        factory.Name,
		Verify:         true,
	}
}

// Load starts from Default, reads path when it is set, then applies the
// environment through getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.UnmarshalWithOptions(b, &cfg, yaml.Strict()); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("RPC_URL", &c.RPCURL)
	str("PRIVATE_KEY", &c.Key.PrivateKey)
	str("KEYSTORE_FILE", &c.Key.KeystoreFile)
	str("KEYSTORE_PASSWORD_FILE", &c.Key.PasswordFile)
	str("PUBLIC_ADDRESS", &c.Key.Address)
	str("REGISTRY_ADDRESS", &c.RegistryAddress)
	str("ARTIFACTS_DIR", &c.ArtifactsDir)
	str("DEPLOYMENTS_DIR", &c.DeploymentsDir)
	if v := strings.TrimSpace(getenv("CHAIN_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: CHAIN_ID: %w", err)
		}
		c.ChainID = id
	}
	return nil
}

// Validate reports the first problem found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return errors.New("config: rpc url is required (--rpc-url or RPC_URL)")
	}
	if c.ChainID <= 0 {
		return errors.New("config: chain id must be positive")
	}
	if c.Key.PrivateKey != "" && c.Key.KeystoreFile != "" {
		return keys.ErrAmbiguousSource
	}
	if c.Key.PrivateKey == "" && c.Key.KeystoreFile == "" {
		return errors.New("config: a private key or keystore file is required")
	}
	if c.Key.KeystoreFile != "" && c.Key.PasswordFile == "" {
		return errors.New("config: keystore file needs a password file")
	}
	if c.Key.Address != "" && !common.IsHexAddress(c.Key.Address) {
		return fmt.Errorf("config: operator address %q is not an address", c.Key.Address)
	}
	if c.Gas.FeeCap <= 0 || c.Gas.TipCap <= 0 {
		return errors.New("config: gas fee and tip caps must be positive")
	}
	if c.Gas.TipCap > c.Gas.FeeCap {
		return errors.New("config: gas tip cap exceeds fee cap")
	}
	for name, v := range map[string]uint64{
		"deploy": c.Gas.Deploy, "set_base_uri": c.Gas.SetBaseURI, "mint": c.Gas.Mint,
		"approval": c.Gas.Approval, "create_vault": c.Gas.CreateVault, "mint_to_base": c.Gas.MintToBase,
	} {
		if v == 0 {
			return fmt.Errorf("config: gas.%s must be positive", name)
		}
	}
	if c.Confirm.Timeout <= 0 || c.Confirm.PollInterval <= 0 {
		return errors.New("config: confirm timeout and poll interval must be positive")
	}
	if c.Confirm.Retries < 0 || c.Confirm.Backoff < 0 {
		return errors.New("config: confirm retries and backoff cannot be negative")
	}
	if c.RegistryAddress != "" && !common.IsHexAddress(c.RegistryAddress) {
		return fmt.Errorf("config: registry address %q is not an address", c.RegistryAddress)
	}
	if c.RegistryAddress == "" && c.DeploymentsDir == "" {
		return errors.New("config: registry address or deployments dir is required")
	}
	if c.ArtifactsDir == "" {
		return errors.New("config: artifacts dir is required")
	}
	if c.Factory == "" {
		return errors.New("config: factory name is required")
	}
	if _, err := c.HolderOverrides(); err != nil {
		return err
	}
	if c.Records != nil {
		if err := c.Records.Validate(); err != nil {
			return fmt.Errorf("config: records: %w", err)
		}
	}
	return nil
}

func (c Config) KeySource() keys.Source {
	return keys.Source{
		Hex:          c.Key.PrivateKey,
		KeystoreFile: c.Key.KeystoreFile,
		PasswordFile: c.Key.PasswordFile,
		Expected:     c.Key.Address,
	}
}

func (c Config) ChainOptions(log zerolog.Logger) chain.Options {
	return chain.Options{
		GasFeeCap:      big.NewInt(c.Gas.FeeCap),
		GasTipCap:      big.NewInt(c.Gas.TipCap),
		ConfirmTimeout: c.Confirm.Timeout,
		PollInterval:   c.Confirm.PollInterval,
		ConfirmRetries: c.Confirm.Retries,
		ConfirmBackoff: c.Confirm.Backoff,
		Logger:         log,
	}
}

func (c Config) ProvisionGas() provision.GasLimits {
	return provision.GasLimits{Deploy: c.Gas.Deploy, SetBaseURI: c.Gas.SetBaseURI, Mint: c.Gas.Mint}
}

func (c Config) FactoryGas() factory.GasLimits {
	return factory.GasLimits{CreateVault: c.Gas.CreateVault, MintToBase: c.Gas.MintToBase, MintToPerItem: c.Gas.MintToPerItem}
}

func (c Config) HolderOverrides() (map[string]common.Address, error) {
	out := make(map[string]common.Address, len(c.Holders))
	for ref, addr := range c.Holders {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("config: holder %q: %q is not an address", ref, addr)
		}
		out[ref] = common.HexToAddress(addr)
	}
	return out, nil
}

// Addresses is where the registry address comes from when it is not set
// explicitly. *artifacts.Store satisfies it.
type Addresses interface {
	Address(name string) (common.Address, error)
}

func (c Config) Registry(deployments Addresses) (common.Address, error) {
	if c.RegistryAddress != "" {
		return common.HexToAddress(c.RegistryAddress), nil
	}
	addr, err := deployments.Address(RegistryContract)
	if err != nil {
		return common.Address{}, fmt.Errorf("config: registry address: %w", err)
	}
	return addr, nil
}

// holderFlag collects repeated --holder ref=0xaddr values.
type holderFlag map[string]string

func (h holderFlag) String() string {
	refs := make([]string, 0, len(h))
	for ref, addr := range h {
		refs = append(refs, ref+"="+addr)
	}
	sort.Strings(refs)
	return strings.Join(refs, ",")
}

func (h holderFlag) Set(v string) error {
	ref, addr, ok := strings.Cut(v, "=")
	if !ok || ref == "" {
		return fmt.Errorf("want ref=address, got %q", v)
	}
	h[ref] = addr
	return nil
}

// RegisterFlags declares the flags ApplyFlags understands.
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("rpc-url", "", "JSON-RPC endpoint (env RPC_URL)")
	fs.Int64("chain-id", 0, "expected chain id (env CHAIN_ID)")
	fs.String("private-key", "", "operator key as hex (env PRIVATE_KEY)")
	fs.String("keystore-file", "", "operator keystore file (env KEYSTORE_FILE)")
	fs.String("keystore-password-file", "", "keystore password file (env KEYSTORE_PASSWORD_FILE)")
	fs.String("operator-address", "", "expected operator address (env PUBLIC_ADDRESS)")
	fs.String("registry-address", "", "MultiProxyController address (env REGISTRY_ADDRESS)")
	fs.String("artifacts-dir", "", "hardhat artifacts dir (env ARTIFACTS_DIR)")
	fs.String("deployments-dir", "", "hardhat-deploy deployments dir (env DEPLOYMENTS_DIR)")
	fs.String("factory", "", "registry name of the vault factory")
	fs.Int64("gas-fee-cap", 0, "max fee per gas in wei")
	fs.Int64("gas-tip-cap", 0, "max priority fee per gas in wei")
	fs.Duration("confirm-timeout", 0, "bound on one receipt wait")
	fs.Var(holderFlag{}, "holder", "holder override ref=0xaddr (repeatable)")
}

// ApplyFlags copies every flag that was set on fs into c.
func ApplyFlags(c *Config, fs *flag.FlagSet) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		v := f.Value.String()
		switch f.Name {
		case "rpc-url":
			c.RPCURL = v
		case "chain-id":
			c.ChainID, err = strconv.ParseInt(v, 10, 64)
		case "private-key":
			c.Key.PrivateKey = v
		case "keystore-file":
			c.Key.KeystoreFile = v
		case "keystore-password-file":
			c.Key.PasswordFile = v
		case "operator-address":
			c.Key.Address = v
		case "registry-address":
			c.RegistryAddress = v
		case "artifacts-dir":
			c.ArtifactsDir = v
		case "deployments-dir":
			c.DeploymentsDir = v
		case "factory":
			c.Factory = v
		case "gas-fee-cap":
			c.Gas.FeeCap, err = strconv.ParseInt(v, 10, 64)
		case "gas-tip-cap":
			c.Gas.TipCap, err = strconv.ParseInt(v, 10, 64)
		case "confirm-timeout":
			c.Confirm.Timeout, err = time.ParseDuration(v)
		case "holder":
			if c.Holders == nil {
				c.Holders = map[string]string{}
			}
			for ref, addr := range f.Value.(holderFlag) {
				c.Holders[ref] = addr
			}
		}
		if err != nil {
			err = fmt.Errorf("config: --%s: %w", f.Name, err)
		}
	})
	return err
}
