// Package ipfs keeps run records in a local Kubo repository by shelling
// out to the ipfs CLI. No daemon is needed; records are stored as raw
// blocks so their CIDs match storage.Sum.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/vaultseed/storage"
)

type CAS struct {
	bin string
	env []string
}

type Options struct {
	// Bin is the ipfs binary; "ipfs" when empty.
	Bin string
	// RepoPath sets IPFS_PATH for every invocation.
	RepoPath string
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	c := &CAS{bin: bin}
	if opts.RepoPath != "" {
		c.env = append(os.Environ(), "IPFS_PATH="+opts.RepoPath)
	}
	return c
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := storage.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	out, err := c.run(ctx, data,
		"block", "put",
		"--cid-codec=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
	)
	if err != nil {
		return cid.Undef, err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := c.run(ctx, nil, "block", "get", "--offline", id.String())
	if err != nil {
		if notFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := storage.Verify(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, storage.ErrInvalidCID
	}
	_, err := c.run(ctx, nil, "block", "stat", "--offline", id.String())
	if err == nil {
		return true, nil
	}
	if notFound(err) {
		return false, nil
	}
	return false, err
}

func (c *CAS) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if s := strings.TrimSpace(string(ee.Stderr)); s != "" {
			return nil, fmt.Errorf("ipfs: %s", s)
		}
		return nil, fmt.Errorf("ipfs: %w", err)
	}
	return nil, err
}

func notFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}
