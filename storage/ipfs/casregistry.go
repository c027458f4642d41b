package ipfs

import (
	"flag"

	"xdao.co/vaultseed/storage"
	"xdao.co/vaultseed/storage/casregistry"
)

var (
	flagBin  string
	flagRepo string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Run records as raw blocks in a local Kubo repo (shells out to ipfs)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "ipfs binary (for --records=ipfs)")
			fs.StringVar(&flagRepo, "ipfs-path", "", "IPFS_PATH for the ipfs backend (default: ipfs's own default)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return New(Options{Bin: flagBin, RepoPath: flagRepo}), nil, nil
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return New(Options{Bin: cfg["ipfs-bin"], RepoPath: cfg["ipfs-path"]}), nil, nil
		},
	})
}
