// Package storage holds the content-addressed record store used for run plans
// and run reports.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is a content-addressable store for run records.
//
// Contract:
// - Put MUST be idempotent.
// - Stored records MUST be immutable.
// - CIDs MUST be derived from the bytes written (see Sum).
// - Get MUST return ErrNotFound when the CID is absent.
// - Has reports presence; an error means presence could not be determined.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}

// Claimer is implemented by stores that can write a record only when it is
// absent, as one step. created reports whether this call wrote it.
type Claimer interface {
	Claim(ctx context.Context, data []byte) (id cid.Cid, created bool, err error)
}

// Claim writes data to cas unless it is already stored. Stores that do not
// implement Claimer get a Has followed by a Put, which two concurrent
// callers can both win.
func Claim(ctx context.Context, cas CAS, data []byte) (cid.Cid, bool, error) {
	if c, ok := cas.(Claimer); ok {
		return c.Claim(ctx, data)
	}
	id, err := Sum(data)
	if err != nil {
		return cid.Undef, false, err
	}
	seen, err := cas.Has(ctx, id)
	if err != nil {
		return cid.Undef, false, err
	}
	if seen {
		return id, false, nil
	}
	got, err := cas.Put(ctx, data)
	if err != nil {
		return cid.Undef, false, err
	}
	if !got.Equals(id) {
		return cid.Undef, false, ErrCIDMismatch
	}
	return id, true, nil
}
