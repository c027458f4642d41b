// Package bundle moves run records between stores as a tar archive.
//
// Archive layout:
//
//	records/<cid>   one entry per record, raw bytes
//	index.json      optional; record sizes and named pointers, never trusted on import
//
// Export output is byte-for-byte reproducible for the same record set.
package bundle

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/vaultseed/storage"
)

const FormatVersion = 1

const (
	recordsDir = "records/"
	indexName  = "index.json"
)

var epoch = time.Unix(0, 0).UTC()

type ExportOptions struct {
	// Names are informational pointers written to the index, e.g.
	// "nft-run/report" -> CID.
	Names map[string]cid.Cid
	Index bool
}

type Index struct {
	Version int               `json:"version"`
	Records []IndexRecord     `json:"records"`
	Names   map[string]string `json:"names,omitempty"`
}

type IndexRecord struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

// Export writes the records named by ids, each verified against its CID.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) (err error) {
	if cas == nil {
		return storage.ErrNoBackends
	}
	byKey := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		byKey[id.String()] = id
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
	}()

	idx := Index{Version: FormatVersion, Records: make([]IndexRecord, 0, len(keys))}
	for _, k := range keys {
		b, err := cas.Get(ctx, byKey[k])
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", k, err)
		}
		if err := storage.Verify(byKey[k], b); err != nil {
			return fmt.Errorf("bundle: %s: %w", k, err)
		}
		if err := writeEntry(tw, recordsDir+k, b); err != nil {
			return err
		}
		idx.Records = append(idx.Records, IndexRecord{CID: k, Size: len(b)})
	}
	if !opts.Index {
		return nil
	}
	if len(opts.Names) > 0 {
		idx.Names = make(map[string]string, len(opts.Names))
		for name, id := range opts.Names {
			if name == "" || !id.Defined() {
				return fmt.Errorf("bundle: invalid name %q -> %v", name, id)
			}
			idx.Names[name] = id.String()
		}
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return writeEntry(tw, indexName, append(b, '\n'))
}

// Import stores every record in the archive and returns their CIDs in
// archive order. Entries other than records and the index are an error.
func Import(ctx context.Context, r io.Reader, cas storage.CAS) ([]cid.Cid, error) {
	if cas == nil {
		return nil, storage.ErrNoBackends
	}
	tr := tar.NewReader(r)
	seen := map[string]bool{}
	var out []cid.Cid
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		name, ok := cleanPath(h.Name)
		if !ok || h.Typeflag != tar.TypeReg {
			return out, fmt.Errorf("bundle: unexpected entry %q", h.Name)
		}
		if name == indexName {
			continue
		}
		key, ok := strings.CutPrefix(name, recordsDir)
		if !ok || strings.Contains(key, "/") {
			return out, fmt.Errorf("bundle: unexpected entry %q", h.Name)
		}
		id, err := storage.ParseCID(key)
		if err != nil {
			return out, err
		}
		if seen[key] {
			return out, fmt.Errorf("bundle: duplicate record %s", key)
		}
		seen[key] = true

		b, err := io.ReadAll(tr)
		if err != nil {
			return out, err
		}
		if err := storage.Verify(id, b); err != nil {
			return out, err
		}
		got, err := cas.Put(ctx, b)
		if err != nil {
			return out, err
		}
		if !got.Equals(id) {
			return out, storage.ErrCIDMismatch
		}
		out = append(out, id)
	}
}

// ReadIndex returns the index of an archive, or nil when it has none.
func ReadIndex(r io.Reader) (*Index, error) {
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if name, ok := cleanPath(h.Name); !ok || name != indexName {
			continue
		}
		var idx Index
		if err := json.NewDecoder(tr).Decode(&idx); err != nil {
			return nil, fmt.Errorf("bundle: index: %w", err)
		}
		return &idx, nil
	}
}

func writeEntry(tw *tar.Writer, name string, b []byte) error {
	if err := tw.WriteHeader(&tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(b)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatPAX,
	}); err != nil {
		return err
	}
	_, err := tw.Write(b)
	return err
}

// cleanPath rejects absolute paths and any dot segments.
func cleanPath(name string) (string, bool) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "./")
	if name == "" || strings.HasPrefix(name, "/") || path.Clean(name) != name {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	return name, true
}
