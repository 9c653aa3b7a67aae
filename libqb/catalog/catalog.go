// Package catalog holds computed values and minimal graphs in a badger db for lookup without loading a store.
package catalog

import (
	"context"
	"runtime"
	"slices"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
)

/***

Catalog database format:

	gCatalogStateKey => catalogState

	kValue, N (byte), M (byte), Key (graph6)     => value (varint)
	...

	kMinimal, k (varint), Key (graph6)           => (empty)
	...

Since graph6 keys carry their own length, every value entry of a stratum shares the 3 byte prefix and
every minimal of a given value shares the kMinimal + varint prefix.

***/

var (
	gCatalogStateKey = []byte{0x00, 0x00, 0x01}
)

const (
	kValue   byte = 0x10
	kMinimal byte = 0x20

	catalogMajorVers = 2026
	catalogMinorVers = 1
)

// CatalogOpts configures OpenCatalog.
type CatalogOpts struct {
	DbPathName string // empty means in-memory
	ReadOnly   bool
}

type catalogState struct {
	MajorVers   uint64
	MinorVers   uint64
	NumGraphs   map[qbound.Stratum]uint64
	NumMinimals uint64
}

func (state *catalogState) Marshal() ([]byte, error) {
	strata := make([]qbound.Stratum, 0, len(state.NumGraphs))
	for s := range state.NumGraphs {
		strata = append(strata, s)
	}
	sort.Slice(strata, func(i, j int) bool { return strata[i].Less(strata[j]) })

	buf := proto.NewBuffer(nil)
	buf.EncodeVarint(state.MajorVers)
	buf.EncodeVarint(state.MinorVers)
	buf.EncodeVarint(state.NumMinimals)
	buf.EncodeVarint(uint64(len(strata)))
	for _, s := range strata {
		buf.EncodeVarint(uint64(s.N))
		buf.EncodeVarint(uint64(s.M))
		buf.EncodeVarint(state.NumGraphs[s])
	}
	return buf.Bytes(), nil
}

func (state *catalogState) Unmarshal(val []byte) error {
	buf := proto.NewBuffer(val)
	var fields [4]uint64
	for i := range fields {
		x, err := buf.DecodeVarint()
		if err != nil {
			return errors.Wrap(qbound.ErrUnmarshal, "catalog state header")
		}
		fields[i] = x
	}
	state.MajorVers, state.MinorVers, state.NumMinimals = fields[0], fields[1], fields[2]
	state.NumGraphs = make(map[qbound.Stratum]uint64, fields[3])
	for i := uint64(0); i < fields[3]; i++ {
		var entry [3]uint64
		for j := range entry {
			x, err := buf.DecodeVarint()
			if err != nil {
				return errors.Wrap(qbound.ErrUnmarshal, "catalog state strata")
			}
			entry[j] = x
		}
		state.NumGraphs[qbound.Stratum{N: int(entry[0]), M: int(entry[1])}] = entry[2]
	}
	return nil
}

// Catalog is a db wrapper for computed values and minimal graphs.
// It serves the same lookups as a loaded store.
type Catalog struct {
	readOnly   bool
	stateDirty bool
	state      catalogState
	db         *badger.DB
}

func OpenCatalog(opts CatalogOpts) (*Catalog, error) {
	cat := &Catalog{
		readOnly: opts.ReadOnly,
	}

	dbOpts := badger.DefaultOptions(opts.DbPathName)
	dbOpts.ReadOnly = opts.ReadOnly
	dbOpts.DetectConflicts = false // not needed so disable for performance
	dbOpts.Logger = nil
	dbOpts.MetricsEnabled = false

	// Badger for windows currently does not support read-only mode
	if runtime.GOOS == "windows" {
		dbOpts.ReadOnly = false
	}

	if len(opts.DbPathName) == 0 {
		if opts.ReadOnly {
			return nil, errors.Wrap(qbound.ErrBadCatalogParam, "DbPathName must be specified for read-only catalog")
		}
		dbOpts.InMemory = true
	}

	var err error
	cat.db, err = badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}

	err = cat.loadState()
	if errors.Is(err, badger.ErrKeyNotFound) {
		err = nil
		cat.stateDirty = !cat.readOnly
		cat.state = catalogState{
			MajorVers: catalogMajorVers,
			MinorVers: catalogMinorVers,
			NumGraphs: make(map[qbound.Stratum]uint64),
		}
	}
	if err == nil && (cat.state.MajorVers != catalogMajorVers || cat.state.MinorVers != catalogMinorVers) {
		err = errors.Wrapf(qbound.ErrBadCatalogParam, "catalog version %d.%d is incompatible", cat.state.MajorVers, cat.state.MinorVers)
	}
	if err != nil {
		cat.Close()
		return nil, err
	}

	return cat, nil
}

func (cat *Catalog) loadState() error {
	return cat.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gCatalogStateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cat.state.Unmarshal(val)
		})
	})
}

func (cat *Catalog) flushState() error {
	if !cat.stateDirty {
		return nil
	}
	err := cat.db.Update(func(txn *badger.Txn) error {
		stateBuf, err := cat.state.Marshal()
		if err != nil {
			return err
		}
		return txn.Set(gCatalogStateKey, stateBuf)
	})
	if err != nil {
		return err
	}
	cat.stateDirty = false
	return nil
}

func (cat *Catalog) Close() error {
	var err error
	if cat.db != nil {
		err = cat.flushState()
		if closeErr := cat.db.Close(); err == nil {
			err = closeErr
		}
		cat.db = nil
	}
	return err
}

func (cat *Catalog) IsReadOnly() bool {
	return cat.readOnly
}

// NumGraphs returns the number of graphs imported for s.
func (cat *Catalog) NumGraphs(s qbound.Stratum) int64 {
	return int64(cat.state.NumGraphs[s])
}

// NumMinimals returns the number of imported minimal graphs across all values.
func (cat *Catalog) NumMinimals() int64 {
	return int64(cat.state.NumMinimals)
}

func stratumPrefix(s qbound.Stratum) []byte {
	return []byte{kValue, byte(s.N), byte(s.M)}
}

func valueKey(s qbound.Stratum, key qbound.Key) []byte {
	return append(stratumPrefix(s), key...)
}

func minimalPrefix(k int) []byte {
	return append([]byte{kMinimal}, proto.EncodeVarint(uint64(k))...)
}

func (cat *Catalog) checkWritable() error {
	if cat.readOnly {
		return errors.Wrap(qbound.ErrBadCatalogParam, "catalog is read-only")
	}
	return nil
}

// writeBatch flushes the entries set by fill, or discards them all if fill fails.
func (cat *Catalog) writeBatch(fill func(wb *badger.WriteBatch) error) error {
	wb := cat.db.NewWriteBatch()
	if err := fill(wb); err != nil {
		wb.Cancel()
		return err
	}
	return wb.Flush()
}

// ImportStratum replaces the entries of s with the given table.
func (cat *Catalog) ImportStratum(s qbound.Stratum, table stratum.ValueTable) error {
	if err := cat.checkWritable(); err != nil {
		return err
	}
	if !s.Valid() {
		return errors.Wrapf(qbound.ErrBadStratum, "%v", s)
	}
	if err := cat.db.DropPrefix(stratumPrefix(s)); err != nil {
		return err
	}

	err := cat.writeBatch(func(wb *badger.WriteBatch) error {
		for key, v := range table {
			if err := wb.Set(valueKey(s, key), proto.EncodeVarint(uint64(v))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(table) == 0 {
		delete(cat.state.NumGraphs, s)
	} else {
		cat.state.NumGraphs[s] = uint64(len(table))
	}
	cat.stateDirty = true
	return cat.flushState()
}

// ImportMinimals replaces the catalog's minimal graphs with the contents of reg.
func (cat *Catalog) ImportMinimals(reg *stratum.Registry) error {
	if err := cat.checkWritable(); err != nil {
		return err
	}
	if err := cat.db.DropPrefix([]byte{kMinimal}); err != nil {
		return err
	}

	count := uint64(0)
	err := cat.writeBatch(func(wb *badger.WriteBatch) error {
		for _, k := range reg.Values() {
			for _, key := range reg.Keys(k) {
				if err := wb.Set(append(minimalPrefix(k), key...), nil); err != nil {
					return err
				}
				count++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	cat.state.NumMinimals = count
	cat.stateDirty = true
	return cat.flushState()
}

// ImportStore copies every value table and the minimals registry of a loaded store.
func (cat *Catalog) ImportStore(ctx context.Context, st *stratum.Store) error {
	var err error
	total := 0
	qbound.WalkStrata(qbound.Stratum{N: 1, M: 0}, st.MaxVertices(), func(s qbound.Stratum) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		table := st.Values(s)
		if len(table) == 0 {
			return true
		}
		err = cat.ImportStratum(s, table)
		total += len(table)
		return err == nil
	})
	if err != nil {
		return err
	}
	if err = cat.ImportMinimals(st.Registry()); err != nil {
		return err
	}
	klog.Infof("catalog: imported %s graphs and %s minimals", humanize.Comma(int64(total)), humanize.Comma(cat.NumMinimals()))
	return nil
}

// Value returns the imported value of a graph identity.
func (cat *Catalog) Value(ctx context.Context, id qbound.Identity) (int, error) {
	var v uint64
	err := cat.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(valueKey(id.Stratum, id.Key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			x, n := proto.DecodeVarint(val)
			if n == 0 {
				return errors.Wrapf(qbound.ErrUnmarshal, "value of %s", id.Key)
			}
			v = x
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, errors.Wrapf(qbound.ErrNotFound, "%s %v", id.Key, id.Stratum)
	}
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// SelectMinimals calls onHit with each minimal graph in order of value then key.
// Enumeration stops when there are no more minimals or if onHit returns false.
func (cat *Catalog) SelectMinimals(ctx context.Context, prefix []byte, onHit func(k int, key qbound.Key) bool) error {
	if len(prefix) == 0 {
		prefix = []byte{kMinimal}
	}

	txn := cat.db.NewTransaction(false)
	defer txn.Discard()

	it := txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: false,
		Prefix:         prefix,
	})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		curKey := it.Item().Key()
		k, n := proto.DecodeVarint(curKey[1:])
		if n == 0 {
			return errors.Wrapf(qbound.ErrUnmarshal, "minimal entry %x", curKey)
		}
		if !onHit(int(k), qbound.Key(curKey[1+n:])) {
			break
		}
	}
	return nil
}

func (cat *Catalog) Minimals(ctx context.Context, k int) ([]qbound.Key, error) {
	var keys []qbound.Key
	err := cat.SelectMinimals(ctx, minimalPrefix(k), func(_ int, key qbound.Key) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

func (cat *Catalog) MinimalValues(ctx context.Context) ([]int, error) {
	var ks []int
	err := cat.SelectMinimals(ctx, nil, func(k int, _ qbound.Key) bool {
		ks = append(ks, k)
		return true
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(ks)
	return slices.Compact(ks), nil
}
