package chaintest

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

//go:embed hardhat
var hardhatFS embed.FS

const (
	ArtifactsDir   = "artifacts"
	DeploymentsDir = "deployments/localhost"
)

// Genesis addresses of the registry and the factory proxy, matching the
// deployment files shipped in Hardhat().
var (
	RegistryAddress = common.HexToAddress("0x0000000000000000000000000000000000001000")
	FactoryAddress  = common.HexToAddress("0x0000000000000000000000000000000000002000")
)

const (
	StandardMockNFT       = "StandardMockNFT"
	NoURIMockNFT          = "NoURIMockNFT"
	FNFTCollectionFactory = "FNFTCollectionFactory"
	FNFTCollection        = "FNFTCollection"
	MultiProxyController  = "MultiProxyController"
)

// Hardhat returns a hardhat project tree with compiled artifacts under
// ArtifactsDir and hardhat-deploy files under DeploymentsDir.
func Hardhat() fs.FS {
	sub, err := fs.Sub(hardhatFS, "hardhat")
	if err != nil {
		panic(err)
	}
	return sub
}

type compiled struct {
	name     string
	abi      abi.ABI
	bytecode []byte
}

func loadCompiled() (map[string]*compiled, error) {
	out := map[string]*compiled{}
	root := Hardhat()
	err := fs.WalkDir(root, ArtifactsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".dbg.json") {
			return err
		}
		b, err := fs.ReadFile(root, path)
		if err != nil {
			return err
		}
		var doc struct {
			ContractName string          `json:"contractName"`
			ABI          json.RawMessage `json:"abi"`
			Bytecode     string          `json:"bytecode"`
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		parsed, err := abi.JSON(strings.NewReader(string(doc.ABI)))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		code, err := hexutil.Decode(doc.Bytecode)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		out[doc.ContractName] = &compiled{name: doc.ContractName, abi: parsed, bytecode: code}
		return nil
	})
	return out, err
}
