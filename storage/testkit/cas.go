// Package testkit holds the conformance suite every record store must pass.
package testkit

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/vaultseed/storage"
)

// NewCAS constructs a fresh, empty store for a test.
// The returned store MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte(`{"kind":"run-plan","label":"roundtrip"}`)

		id, err := cas.Put(ctx, want)
		require.NoError(t, err)
		wantID, err := storage.Sum(want)
		require.NoError(t, err)
		require.True(t, id.Equals(wantID), "Put CID mismatch: got %s want %s", id, wantID)

		got, err := cas.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		require.NoError(t, storage.Verify(id, got))
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same record")

		id1, err := cas.Put(ctx, b)
		require.NoError(t, err)
		id2, err := cas.Put(ctx, b)
		require.NoError(t, err)
		assert.True(t, id1.Equals(id2), "Put not idempotent: %s vs %s", id1, id2)
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing record")
		id, err := storage.Sum(b)
		require.NoError(t, err)

		ok, err := cas.Has(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok, "Has returned true for missing CID")

		_, err = cas.Get(ctx, id)
		assert.True(t, storage.IsNotFound(err), "Get missing: got err=%v want ErrNotFound", err)

		_, err = cas.Put(ctx, b)
		require.NoError(t, err)
		ok, err = cas.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok, "Has returned false after Put")
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		ok, _ := cas.Has(ctx, undef)
		assert.False(t, ok)
		_, err := cas.Get(ctx, undef)
		assert.Error(t, err)
	})

	t.Run("ClaimOnlyWhenAbsent", func(t *testing.T) {
		cas := newCAS(t)
		if _, ok := cas.(storage.Claimer); !ok {
			t.Skip("store does not implement storage.Claimer")
		}
		b := []byte(`{"kind":"run-plan","label":"claim"}`)
		want, err := storage.Sum(b)
		require.NoError(t, err)

		id, created, err := storage.Claim(ctx, cas, b)
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, id.Equals(want))

		id, created, err = storage.Claim(ctx, cas, b)
		require.NoError(t, err)
		assert.False(t, created, "second claim of the same record succeeded")
		assert.True(t, id.Equals(want))

		got, err := cas.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, b, got)
	})
}
