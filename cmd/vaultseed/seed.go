package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"xdao.co/vaultseed/factory"
	"xdao.co/vaultseed/orchestrator"
	"xdao.co/vaultseed/provision"
	"xdao.co/vaultseed/runrecord"
)

func cmdSeed(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	cf.register(fs)
	scenariosPath := fs.String("scenarios", "", "scenario table file (default: built-in table)")
	only := fs.String("only", "", "comma-separated scenario ids to run")
	runLabel := fs.String("run-label", "", "label that makes this run's plan distinct")
	noVerify := fs.Bool("no-verify", false, "skip post-condition checks")
	noRecord := fs.Bool("no-record", false, "do not claim the plan or store the report")
	dryRun := fs.Bool("dry-run", false, "validate and resolve, submit nothing")
	reportPath := fs.String("report", "", "write the JSON report to this file (- for stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: vaultseed seed [flags]")
		return 2
	}

	log, err := newLogger(errOut, cf.logLevel)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	cfg, err := cf.load(fs)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if *scenariosPath != "" {
		cfg.Scenarios = *scenariosPath
	}
	if *runLabel != "" {
		cfg.RunLabel = *runLabel
	}
	if *noVerify {
		cfg.Verify = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	tbl, err := loadTable(cfg.Scenarios, *only)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(cfg, log)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer s.Close()

	op, err := s.operator(ctx)
	if err != nil {
		fmt.Fprintf(errOut, "operator: %v\n", err)
		return 1
	}
	entry, err := s.resolveDeployed(ctx, cfg.Factory)
	if err != nil {
		fmt.Fprintf(errOut, "resolve factory: %v\n", err)
		return 1
	}
	vaultABI, err := s.store.Schema(factory.VaultContract)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fac, err := factory.New(op, entry, vaultABI, cfg.FactoryGas(), log)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	overrides, err := cfg.HolderOverrides()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	holders, err := tbl.ResolveHolders(op.Address(), overrides)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	orch, err := orchestrator.New(orchestrator.Config{
		Operator:    op,
		Provisioner: provision.New(op, s.store, cfg.ProvisionGas(), log),
		Factory:     fac,
		Holders:     holders,
		Verify:      cfg.Verify,
		ApprovalGas: cfg.Gas.Approval,
		Logger:      log,
	})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	plan, err := runrecord.NewPlan(op.ChainID(), op.Address(), s.registry, cfg.Factory, tbl, cfg.RunLabel)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	planCID, err := plan.CID()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	log.Info().Str("plan", planCID.String()).Str("factory", entry.Address.Hex()).Strs("scenarios", plan.Scenarios).Msg("plan ready")

	if *dryRun {
		fmt.Fprintf(out, "dry run: %d scenarios, factory %s at %s, operator %s\n", len(tbl.Scenarios), cfg.Factory, entry.Address.Hex(), op.Address().Hex())
		fmt.Fprintf(out, "plan: %s\n", planCID)
		return 0
	}

	var guard *runrecord.Guard
	if !*noRecord {
		cas, closeFn, err := cf.openRecords(cfg)
		if err != nil {
			fmt.Fprintf(errOut, "record store: %v\n", err)
			return 1
		}
		if closeFn != nil {
			defer closeFn()
		}
		if cas != nil {
			guard = &runrecord.Guard{CAS: cas}
			if _, err := guard.Claim(ctx, plan); err != nil {
				if runrecord.IsKind(err, runrecord.KindAlreadyRun) {
					fmt.Fprintf(errOut, "%v\nuse --run-label to seed a second dataset\n", err)
					return 1
				}
				fmt.Fprintf(errOut, "claim plan: %v\n", err)
				return 1
			}
		}
	}

	started := time.Now()
	rep, err := orch.Run(ctx, tbl)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	finished := time.Now()

	if err := rep.Summary(out); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if *reportPath != "" {
		if err := writeReport(*reportPath, out, rep); err != nil {
			fmt.Fprintf(errOut, "write report: %v\n", err)
			return 1
		}
	}
	if guard != nil {
		id, err := guard.StoreReport(ctx, planCID, started, finished, rep)
		if err != nil {
			fmt.Fprintf(errOut, "store report: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "plan: %s\nreport: %s\n", planCID, id)
	}
	if !rep.OK() {
		return 1
	}
	return 0
}

func writeReport(path string, stdout io.Writer, rep orchestrator.Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "-" {
		_, err = stdout.Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
