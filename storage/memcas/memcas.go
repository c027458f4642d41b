// Package memcas is an in-process record store. Records vanish with the
// process, so it only suits dry runs, tests and throwaway daemons.
package memcas

import (
	"bytes"
	"context"
	"flag"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/vaultseed/storage"
	"xdao.co/vaultseed/storage/casregistry"
)

func init() {
	open := func() (storage.CAS, func() error, error) { return New(), nil, nil }
	casregistry.MustRegister(casregistry.Backend{
		Name:          "memory",
		Description:   "In-memory record store (not persisted)",
		Usage:         casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(*flag.FlagSet) {},
		Open:          open,
		OpenConfig:    func(map[string]string) (storage.CAS, func() error, error) { return open() },
	})
}

type CAS struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func New() *CAS {
	return &CAS{records: map[string][]byte{}}
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := c.Claim(ctx, data)
	return id, err
}

func (c *CAS) Claim(ctx context.Context, data []byte) (cid.Cid, bool, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, false, err
	}
	id, err := storage.Sum(data)
	if err != nil {
		return cid.Undef, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.records[id.KeyString()]; ok {
		if !bytes.Equal(existing, data) {
			return cid.Undef, false, storage.ErrImmutable
		}
		return id, false, nil
	}
	c.records[id.KeyString()] = append([]byte(nil), data...)
	return id, true, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.records[id.KeyString()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[id.KeyString()]
	return ok, nil
}
