package casconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/vaultseed/storage"
	"xdao.co/vaultseed/storage/casregistry"
	_ "xdao.co/vaultseed/storage/localfs"
	_ "xdao.co/vaultseed/storage/memcas"
)

func TestValidate(t *testing.T) {
	require.Error(t, Config{}.Validate())
	require.Error(t, Config{Backends: []BackendConfig{{}}}.Validate())
	require.Error(t, Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory"}}}.Validate())
	require.NoError(t, Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory", ID: "second"}}}.Validate())
	require.Error(t, Config{WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}}.Validate())
}

func TestLoadFile_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "records.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
write_policy: all
backends:
  - name: memory
  - name: localfs
    config:
      localfs-dir: /tmp/records
`), 0o600))
	cfg, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "all", cfg.WritePolicy)
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "/tmp/records", cfg.Backends[1].Config["localfs-dir"])

	jsonPath := filepath.Join(dir, "records.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"backends":[{"name":"memory","id":"scratch"}]}`), 0o600))
	cfg, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "scratch", cfg.Backends[0].ID)
}

func TestOpen_ReplicatesToAllBackends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{
		WritePolicy: "all",
		Backends: []BackendConfig{
			{Name: "memory"},
			{Name: "localfs", Config: map[string]string{"localfs-dir": dir}},
		},
	}
	cas, closeFn, err := cfg.Open(casregistry.UsageCLI)
	require.NoError(t, err)
	defer closeFn()

	id, err := cas.Put(ctx, []byte("plan"))
	require.NoError(t, err)

	sum, err := storage.Sum([]byte("plan"))
	require.NoError(t, err)
	assert.True(t, id.Equals(sum))

	_, statErr := os.Stat(filepath.Join(dir, id.String()[:2], id.String()))
	require.NoError(t, statErr, "record not replicated to localfs")
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, _, err := Config{Backends: []BackendConfig{{Name: "nope"}}}.Open(casregistry.UsageCLI)
	require.Error(t, err)
}
