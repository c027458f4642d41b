// Package artifacts reads compiled contract artifacts and deployment records
// from a hardhat project.
//
// Artifacts ({contractName, abi, bytecode}) live anywhere under the
// artifacts directory; *.dbg.json files and build-info are skipped.
// Deployments are the flat per-network directory hardhat-deploy writes, one
// {address, abi} file per deployment name.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrNotFound  = errors.New("artifacts: not found")
	ErrNoAddress = errors.New("artifacts: deployment has no address")
)

type Artifact struct {
	ContractName string
	ABI          *abi.ABI
	Bytecode     []byte
	Source       string
}

type Deployment struct {
	Name    string
	Address common.Address
	ABI     *abi.ABI
	Source  string
}

type Store struct {
	artifacts   map[string]*Artifact
	deployments map[string]*Deployment
}

// Load reads artifactsDir and, if non-empty, deploymentsDir from disk.
func Load(artifactsDir, deploymentsDir string) (*Store, error) {
	s := &Store{artifacts: map[string]*Artifact{}, deployments: map[string]*Deployment{}}
	if artifactsDir != "" {
		if err := s.loadArtifacts(os.DirFS(artifactsDir), "."); err != nil {
			return nil, err
		}
	}
	if deploymentsDir != "" {
		if err := s.loadDeployments(os.DirFS(deploymentsDir), "."); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadFS reads both trees out of fsys.
func LoadFS(fsys fs.FS, artifactsDir, deploymentsDir string) (*Store, error) {
	s := &Store{artifacts: map[string]*Artifact{}, deployments: map[string]*Deployment{}}
	if artifactsDir != "" {
		if err := s.loadArtifacts(fsys, artifactsDir); err != nil {
			return nil, err
		}
	}
	if deploymentsDir != "" {
		if err := s.loadDeployments(fsys, deploymentsDir); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type artifactFile struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

type deploymentFile struct {
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

func (s *Store) loadArtifacts(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, ".json") || strings.HasSuffix(p, ".dbg.json") {
			return nil
		}
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		var f artifactFile
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("artifacts: %s: %w", p, err)
		}
		if f.ContractName == "" || len(f.ABI) == 0 {
			// Not an artifact (e.g. a cache or config file).
			return nil
		}
		parsed, err := parseABI(f.ABI)
		if err != nil {
			return fmt.Errorf("artifacts: %s: %w", p, err)
		}
		var code []byte
		if f.Bytecode != "" && f.Bytecode != "0x" {
			if code, err = hexutil.Decode(f.Bytecode); err != nil {
				return fmt.Errorf("artifacts: %s: bytecode: %w", p, err)
			}
		}
		if prev, dup := s.artifacts[f.ContractName]; dup {
			return fmt.Errorf("artifacts: contract %q defined by both %s and %s", f.ContractName, prev.Source, p)
		}
		s.artifacts[f.ContractName] = &Artifact{ContractName: f.ContractName, ABI: parsed, Bytecode: code, Source: p}
		return nil
	})
}

func (s *Store) loadDeployments(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("artifacts: deployments: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		p := path.Join(root, e.Name())
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		var f deploymentFile
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("artifacts: %s: %w", p, err)
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		d := &Deployment{Name: name, Source: p}
		if common.IsHexAddress(f.Address) {
			d.Address = common.HexToAddress(f.Address)
		}
		if len(f.ABI) != 0 {
			if d.ABI, err = parseABI(f.ABI); err != nil {
				return fmt.Errorf("artifacts: %s: %w", p, err)
			}
		}
		s.deployments[name] = d
	}
	return nil
}

func parseABI(raw json.RawMessage) (*abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Schema returns the interface of name. A deployment's ABI wins over the
// artifact's, since for proxied contracts only the deployment carries the
// implementation ABI.
func (s *Store) Schema(name string) (*abi.ABI, error) {
	if d, ok := s.deployments[name]; ok && d.ABI != nil {
		return d.ABI, nil
	}
	if a, ok := s.artifacts[name]; ok {
		return a.ABI, nil
	}
	return nil, fmt.Errorf("%w: schema %q", ErrNotFound, name)
}

func (s *Store) Artifact(name string) (*Artifact, error) {
	a, ok := s.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%w: artifact %q", ErrNotFound, name)
	}
	return a, nil
}

// Bytecode returns the creation code of name.
func (s *Store) Bytecode(name string) ([]byte, error) {
	a, err := s.Artifact(name)
	if err != nil {
		return nil, err
	}
	if len(a.Bytecode) == 0 {
		return nil, fmt.Errorf("artifacts: %q has no creation bytecode (abstract or interface?)", name)
	}
	return append([]byte(nil), a.Bytecode...), nil
}

// Address returns the deployed address recorded for name.
func (s *Store) Address(name string) (common.Address, error) {
	d, ok := s.deployments[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: deployment %q", ErrNotFound, name)
	}
	if d.Address == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrNoAddress, name)
	}
	return d.Address, nil
}

func (s *Store) Contracts() []string {
	out := make([]string, 0, len(s.artifacts))
	for name := range s.artifacts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Deployments() []string {
	out := make([]string, 0, len(s.deployments))
	for name := range s.deployments {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
