package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ipfs/go-cid"

	"xdao.co/vaultseed/resolver"
	"xdao.co/vaultseed/runrecord"
	"xdao.co/vaultseed/storage"
	"xdao.co/vaultseed/storage/bundle"
)

func cmdScenarios(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("scenarios", flag.ContinueOnError)
	fs.SetOutput(errOut)
	path := fs.String("scenarios", "", "scenario table file (default: built-in table)")
	only := fs.String("only", "", "comma-separated scenario ids")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	tbl, err := loadTable(*path, *only)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tITEMS\tDEPOSITED\tTITLE\tLABELS")
	for _, s := range tbl.Scenarios {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", s.ID, s.Asset.Kind, s.ItemCount(), len(s.Population()), s.Title, strings.Join(s.Labels(), ","))
	}
	_ = tw.Flush()
	return 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: vaultseed key <name>")
		return 2
	}
	key, err := resolver.Key(args[0])
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, hexutil.Encode(key[:]))
	return 0
}

func cmdResolve(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: vaultseed resolve [flags] <name>")
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
	if cfg.RPCURL == "" {
		fmt.Fprintln(errOut, "rpc url is required (--rpc-url or RPC_URL)")
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

	name := fs.Arg(0)
	e, err := s.resolver().Lookup(ctx, name)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, schemaErr := s.store.Schema(name)
	fmt.Fprintf(out, "name:     %s\n", e.Name)
	fmt.Fprintf(out, "key:      %s\n", hexutil.Encode(e.Key[:]))
	fmt.Fprintf(out, "address:  %s\n", e.Address.Hex())
	if e.Label != "" {
		fmt.Fprintf(out, "label:    %s\n", e.Label)
	}
	fmt.Fprintf(out, "registry: %s\n", s.registry.Hex())
	fmt.Fprintf(out, "abi:      %t\n", schemaErr == nil)
	return 0
}

func cmdRecord(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: vaultseed record <get|export|import> [flags] ...")
		return 2
	}
	sub := args[0]
	switch sub {
	case "get", "export", "import":
	default:
		fmt.Fprintf(errOut, "unknown record subcommand: %s\n", sub)
		return 2
	}

	fs := flag.NewFlagSet("record "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var cf commonFlags
	cf.register(fs)
	outPath := fs.String("out", "", "archive to write (export)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	cfg, err := cf.load(fs)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	cas, closeFn, err := cf.openRecords(cfg)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	if cas == nil {
		fmt.Fprintln(errOut, "no record store configured (--records, --records-config or records: in --config)")
		return 2
	}
	ctx := context.Background()
	guard := runrecord.Guard{CAS: cas}

	switch sub {
	case "get":
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: vaultseed record get [flags] <cid>")
			return 2
		}
		b, err := guard.Get(ctx, fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = out.Write(b)
		fmt.Fprintln(out)
		return 0

	case "export":
		if *outPath == "" || fs.NArg() == 0 {
			fmt.Fprintln(errOut, "usage: vaultseed record export [flags] --out <file.tar> <cid> [<cid> ...]")
			return 2
		}
		var ids []cid.Cid
		for _, a := range fs.Args() {
			id, err := storage.ParseCID(a)
			if err != nil {
				fmt.Fprintf(errOut, "%s: %v\n", a, err)
				return 2
			}
			ids = append(ids, id)
		}
		all, names, err := guard.Closure(ctx, ids)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		var buf bytes.Buffer
		if err := bundle.Export(ctx, &buf, cas, all, bundle.ExportOptions{Index: true, Names: names}); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if err := os.WriteFile(*outPath, buf.Bytes(), 0o644); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "exported %d records to %s\n", len(all), *outPath)
		return 0

	default:
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: vaultseed record import [flags] <file.tar>")
			return 2
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		ids, err := bundle.Import(ctx, f, cas)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return 0
	}
}
