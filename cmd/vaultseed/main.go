package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"xdao.co/vaultseed/chain"

	_ "xdao.co/vaultseed/storage/grpccas"
	_ "xdao.co/vaultseed/storage/ipfs"
	_ "xdao.co/vaultseed/storage/localfs"
	_ "xdao.co/vaultseed/storage/memcas"
)

// dialLedger opens the chain connection. Tests swap it for a simulated
// ledger.
var dialLedger = func(rpcURL string) (chain.Ledger, error) {
	l, err := chain.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "seed":
		return cmdSeed(args[1:], out, errOut)
	case "scenarios":
		return cmdScenarios(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "resolve":
		return cmdResolve(args[1:], out, errOut)
	case "record":
		return cmdRecord(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "vaultseed: seed a vault platform deployment with test collections")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  vaultseed seed [--config <file>] [--scenarios <file>] [--only nft1,nft2] [--run-label <text>] [--no-verify] [--no-record] [--dry-run] [--report <file>|-]")
	fmt.Fprintln(w, "  vaultseed scenarios [--scenarios <file>] [--only nft1,nft2]")
	fmt.Fprintln(w, "  vaultseed key <name>")
	fmt.Fprintln(w, "  vaultseed resolve [--config <file>] <name>")
	fmt.Fprintln(w, "  vaultseed record get [--config <file>] [--records <backend>] <cid>")
	fmt.Fprintln(w, "  vaultseed record export [--records <backend>] --out <file.tar> <cid> [<cid> ...]")
	fmt.Fprintln(w, "  vaultseed record import [--records <backend>] <file.tar>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - chain flags fall back to RPC_URL, CHAIN_ID, PRIVATE_KEY, KEYSTORE_FILE, KEYSTORE_PASSWORD_FILE,")
	fmt.Fprintln(w, "    REGISTRY_ADDRESS, ARTIFACTS_DIR and DEPLOYMENTS_DIR")
	fmt.Fprintln(w, "  - without --scenarios the built-in twelve-scenario table is used")
	fmt.Fprintln(w, "  - a run whose plan was already recorded is refused; pass a new --run-label for a second dataset")
	fmt.Fprintln(w, "  - record export includes the plan of every exported report")
	fmt.Fprintln(w, "  - key prints the bytes32 registry key for a contract name")
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).Level(lvl).With().Timestamp().Logger(), nil
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
