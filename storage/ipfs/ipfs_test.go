package ipfs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/vaultseed/storage"
	"xdao.co/vaultseed/storage/testkit"
)

// fakeIPFS writes a script that fails every call with stderr msg.
func fakeIPFS(t *testing.T, msg string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	p := filepath.Join(t.TempDir(), "ipfs")
	script := "#!/bin/sh\necho '" + msg + "' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(p, []byte(script), 0o755))
	return p
}

func TestNotFoundMapping(t *testing.T) {
	c := New(Options{Bin: fakeIPFS(t, "Error: block was not found locally (offline): ipld: could not find bafk")})
	id, err := storage.Sum([]byte("x"))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), id)
	require.ErrorIs(t, err, storage.ErrNotFound)

	ok, err := c.Has(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOtherFailures(t *testing.T) {
	c := New(Options{Bin: fakeIPFS(t, "Error: no IPFS repo found in /nowhere")})
	id, err := storage.Sum([]byte("x"))
	require.NoError(t, err)

	_, err = c.Has(context.Background(), id)
	require.ErrorContains(t, err, "no IPFS repo found")
	_, err = c.Put(context.Background(), []byte("x"))
	require.ErrorContains(t, err, "no IPFS repo found")
}

// TestConformance runs against a real Kubo install when one is on PATH.
func TestConformance(t *testing.T) {
	bin, err := exec.LookPath("ipfs")
	if err != nil {
		t.Skip("ipfs not installed")
	}
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		repo := t.TempDir()
		cmd := exec.Command(bin, "init", "--profile=test")
		cmd.Env = append(os.Environ(), "IPFS_PATH="+repo)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("ipfs init: %v: %s", err, out)
		}
		return New(Options{Bin: bin, RepoPath: repo})
	})
}
