package grpccas

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/vaultseed/storage"
	"xdao.co/vaultseed/storage/localfs"
	"xdao.co/vaultseed/storage/memcas"
	"xdao.co/vaultseed/storage/testkit"
)

func startDaemon(t *testing.T, backend storage.CAS) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterRecordsServer(srv, &Server{CAS: backend})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	client := NewClient(cc)
	client.Timeout = 2 * time.Second
	return client
}

func TestGRPCCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return startDaemon(t, memcas.New())
	})
}

func TestGRPCCAS_LocalFS_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	client := startDaemon(t, backend)

	payload := []byte(`{"kind":"run-report","scenarios":12}`)
	id, err := client.Put(ctx, payload)
	require.NoError(t, err)
	require.True(t, id.Defined())

	ok, err := client.Has(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// The record is visible directly in the daemon's backend too.
	direct, err := backend.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, direct)
}

func TestGRPCCAS_NotFoundMapsToSentinel(t *testing.T) {
	client := startDaemon(t, memcas.New())
	id, err := storage.Sum([]byte("never stored"))
	require.NoError(t, err)

	_, err = client.Get(context.Background(), id)
	assert.True(t, storage.IsNotFound(err), "got %v", err)
}

func TestGRPCCAS_MissingBackendIsFailedPrecondition(t *testing.T) {
	client := startDaemon(t, nil)
	_, err := client.Put(context.Background(), []byte("x"))
	require.Error(t, err)
}

// plainCAS hides the backend's Claim so the daemon has to serialize.
type plainCAS struct{ storage.CAS }

func TestGRPCCAS_ConcurrentClaimsOneWinner(t *testing.T) {
	backends := map[string]storage.CAS{
		"claimer":     memcas.New(),
		"has-and-put": plainCAS{memcas.New()},
	}
	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			client := startDaemon(t, backend)
			payload := []byte(`{"kind":"run-plan","label":"shared"}`)

			const n = 8
			var wg sync.WaitGroup
			var won atomic.Int32
			for range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, created, err := client.Claim(context.Background(), payload)
					assert.NoError(t, err)
					if created {
						won.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), won.Load())

			ok, err := backend.Has(context.Background(), mustSum(t, payload))
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestGRPCCAS_ClaimWithoutBackend(t *testing.T) {
	client := startDaemon(t, nil)
	_, _, err := client.Claim(context.Background(), []byte("x"))
	require.Error(t, err)
}

func mustSum(t *testing.T, b []byte) cid.Cid {
	t.Helper()
	id, err := storage.Sum(b)
	require.NoError(t, err)
	return id
}
