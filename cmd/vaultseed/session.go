package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"xdao.co/vaultseed/artifacts"
	"xdao.co/vaultseed/chain"
	"xdao.co/vaultseed/config"
	"xdao.co/vaultseed/keys"
	"xdao.co/vaultseed/resolver"
	"xdao.co/vaultseed/scenario"
	"xdao.co/vaultseed/storage"
	"xdao.co/vaultseed/storage/casconfig"
	"xdao.co/vaultseed/storage/casregistry"
)

// commonFlags are shared by every command that talks to the chain or the
// record store.
type commonFlags struct {
	configPath    string
	logLevel      string
	records       string
	recordsConfig string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.logLevel, "log-level", "info", "trace|debug|info|warn|error")
	fs.StringVar(&c.records, "records", "", "record store backend ("+fmt.Sprint(casregistry.Names(casregistry.UsageCLI))+")")
	fs.StringVar(&c.recordsConfig, "records-config", "", "record store config file (YAML or JSON)")
	config.RegisterFlags(fs)
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

func (c *commonFlags) load(fs *flag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(c.configPath, os.Getenv)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.ApplyFlags(&cfg, fs); err != nil {
		return config.Config{}, err
	}
	if c.recordsConfig != "" {
		rc, err := casconfig.LoadFile(c.recordsConfig)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Records = &rc
	}
	return cfg, nil
}

// openRecords opens the record store named by --records, else the one in
// the config. A nil store means records are off.
func (c *commonFlags) openRecords(cfg config.Config) (storage.CAS, func() error, error) {
	if c.records != "" {
		return casregistry.Open(c.records, casregistry.UsageCLI)
	}
	if cfg.Records != nil {
		return cfg.Records.Open(casregistry.UsageCLI)
	}
	return nil, nil, nil
}

func loadTable(path string, only string) (scenario.Table, error) {
	tbl := scenario.Default()
	if path != "" {
		var err error
		if tbl, err = scenario.Load(path); err != nil {
			return scenario.Table{}, err
		}
	}
	return tbl.Filter(splitCSV(only))
}

// session is an open connection plus everything resolved from config.
type session struct {
	cfg      config.Config
	log      zerolog.Logger
	store    *artifacts.Store
	ledger   chain.Ledger
	registry common.Address
}

func openSession(cfg config.Config, log zerolog.Logger) (*session, error) {
	store, err := artifacts.Load(cfg.ArtifactsDir, cfg.DeploymentsDir)
	if err != nil {
		return nil, err
	}
	registry, err := cfg.Registry(store)
	if err != nil {
		return nil, err
	}
	ledger, err := dialLedger(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	return &session{cfg: cfg, log: log, store: store, ledger: ledger, registry: registry}, nil
}

func (s *session) Close() error { return s.ledger.Close() }

func (s *session) resolver() *resolver.Resolver {
	return resolver.New(s.ledger, s.registry, s.store)
}

// resolveDeployed resolves name and checks that code lives at the address.
func (s *session) resolveDeployed(ctx context.Context, name string) (resolver.Entry, error) {
	e, err := s.resolver().Resolve(ctx, name)
	if err != nil {
		return e, err
	}
	code, err := s.ledger.CodeAt(ctx, e.Address)
	if err != nil {
		return e, err
	}
	if len(code) == 0 {
		return e, fmt.Errorf("%s resolves to %s which has no code", name, e.Address.Hex())
	}
	return e, nil
}

func (s *session) operator(ctx context.Context) (*chain.Operator, error) {
	key, addr, err := keys.Load(s.cfg.KeySource())
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("operator", addr.Hex()).Msg("key loaded")
	return chain.NewOperator(ctx, s.ledger, key, big.NewInt(s.cfg.ChainID), s.cfg.ChainOptions(s.log))
}
