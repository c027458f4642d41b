package casregistry_test

import (
	"context"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/vaultseed/storage"
	"xdao.co/vaultseed/storage/casregistry"
	"xdao.co/vaultseed/storage/memcas"
)

func testBackend(name string, usage casregistry.Usage) casregistry.Backend {
	return casregistry.Backend{
		Name:          name,
		Usage:         usage,
		RegisterFlags: func(*flag.FlagSet) {},
		Open: func() (storage.CAS, func() error, error) {
			return memcas.New(), nil, nil
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			if cfg["fail"] == "true" {
				return nil, nil, assert.AnError
			}
			return memcas.New(), nil, nil
		},
	}
}

func TestRegister_RejectsIncompleteBackends(t *testing.T) {
	require.Error(t, casregistry.Register(casregistry.Backend{}))
	b := testBackend("incomplete-test", casregistry.UsageCLI)
	b.OpenConfig = nil
	require.Error(t, casregistry.Register(b))
	b = testBackend("no-usage-test", 0)
	require.Error(t, casregistry.Register(b))
}

func TestRegister_Duplicate(t *testing.T) {
	require.NoError(t, casregistry.Register(testBackend("dup-test", casregistry.UsageCLI)))
	require.Error(t, casregistry.Register(testBackend("dup-test", casregistry.UsageCLI)))
}

func TestOpenWithConfig_UsageAndConfig(t *testing.T) {
	casregistry.MustRegister(testBackend("daemon-only-test", casregistry.UsageDaemon))

	_, _, err := casregistry.OpenWithConfig("daemon-only-test", casregistry.UsageCLI, nil)
	require.Error(t, err)

	cas, _, err := casregistry.OpenWithConfig("daemon-only-test", casregistry.UsageDaemon, nil)
	require.NoError(t, err)
	id, err := cas.Put(context.Background(), []byte("plan"))
	require.NoError(t, err)
	ok, err := cas.Has(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = casregistry.OpenWithConfig("daemon-only-test", casregistry.UsageDaemon, map[string]string{"fail": "true"})
	require.Error(t, err)

	_, _, err = casregistry.OpenWithConfig("missing-test", casregistry.UsageDaemon, nil)
	require.Error(t, err)
}

func TestNames_SortedAndFiltered(t *testing.T) {
	casregistry.MustRegister(testBackend("zz-names-test", casregistry.UsageCLI))
	casregistry.MustRegister(testBackend("aa-names-test", casregistry.UsageCLI))

	names := casregistry.Names(casregistry.UsageCLI)
	ia, iz := -1, -1
	for i, n := range names {
		switch n {
		case "aa-names-test":
			ia = i
		case "zz-names-test":
			iz = i
		case "daemon-only-test":
			t.Fatalf("daemon-only backend listed for CLI usage")
		}
	}
	require.GreaterOrEqual(t, ia, 0)
	require.Greater(t, iz, ia)
}
