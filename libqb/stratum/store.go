package stratum

import (
	"context"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/qbound"
)

// ValueTable maps a key to its recorded invariant value.
type ValueTable map[qbound.Key]int

// Relax records value for key if key is absent or value is lower, reporting if the table changed.
func (tbl ValueTable) Relax(key qbound.Key, value int) bool {
	if cur, exists := tbl[key]; exists && cur <= value {
		return false
	}
	tbl[key] = value
	return true
}

// SortedKeys returns the table's keys in ascending order.
func (tbl ValueTable) SortedKeys() []qbound.Key {
	keys := make([]qbound.Key, 0, len(tbl))
	for key := range tbl {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// KeySet is a set of keys.
type KeySet map[qbound.Key]struct{}

func (set KeySet) Has(key qbound.Key) bool {
	_, has := set[key]
	return has
}

func (set KeySet) Add(key qbound.Key) {
	set[key] = struct{}{}
}

func (set KeySet) SortedKeys() []qbound.Key {
	keys := make([]qbound.Key, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

type stratumTables struct {
	values    ValueTable
	seen      KeySet
	completed KeySet
}

// Opts configures a Store.
type Opts struct {
	Dir         string // root directory holding one sub-directory per family
	MaxVertices int    // largest vertex count tracked (defaults to qbound.MaxVertices)
}

// Store owns every per-stratum table and the minimals registry, and persists them as artifacts.
type Store struct {
	dir      string
	maxVerts int
	strata   [qbound.MaxVertices + 1][]stratumTables // indexed [n][m]
	minimals *Registry
}

// Open prepares a store rooted at opts.Dir.  Tables start empty until Load is called.
func Open(opts Opts) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.Wrap(qbound.ErrBadStoreParam, "Dir must be specified")
	}
	if opts.MaxVertices == 0 {
		opts.MaxVertices = qbound.MaxVertices
	}
	if opts.MaxVertices < 1 || opts.MaxVertices > qbound.MaxVertices {
		return nil, errors.Wrapf(qbound.ErrBadStoreParam, "MaxVertices must be in 1..%d", qbound.MaxVertices)
	}

	st := &Store{
		dir:      opts.Dir,
		maxVerts: opts.MaxVertices,
	}
	if err := st.makeDirs(); err != nil {
		return nil, err
	}
	st.reset()
	return st, nil
}

func (st *Store) reset() {
	for n := range st.strata {
		tables := make([]stratumTables, qbound.TopEdges(n)+1)
		for m := range tables {
			tables[m] = stratumTables{
				values:    make(ValueTable),
				seen:      make(KeySet),
				completed: make(KeySet),
			}
		}
		st.strata[n] = tables
	}
	st.minimals = NewRegistry()
}

func (st *Store) MaxVertices() int {
	return st.maxVerts
}

func (st *Store) tables(s qbound.Stratum) *stratumTables {
	if !s.Valid() {
		panic(errors.Wrapf(qbound.ErrBadStratum, "%v", s))
	}
	return &st.strata[s.N][s.M]
}

// Values returns the value table of stratum s for reading and mutation.
func (st *Store) Values(s qbound.Stratum) ValueTable {
	return st.tables(s).values
}

// Seen returns the keys of s whose propagation is final.
func (st *Store) Seen(s qbound.Stratum) KeySet {
	return st.tables(s).seen
}

// Completed returns the keys of s whose minimality is decided.
func (st *Store) Completed(s qbound.Stratum) KeySet {
	return st.tables(s).completed
}

// Registry returns the minimals registry.
func (st *Store) Registry() *Registry {
	return st.minimals
}

// LookupValue returns the recorded value of a graph identity.
func (st *Store) LookupValue(id qbound.Identity) (int, bool) {
	if !id.Stratum.Valid() || id.Stratum.N > st.maxVerts {
		return 0, false
	}
	v, found := st.Values(id.Stratum)[id.Key]
	return v, found
}

// Value implements the query source contract over the in-memory tables.
func (st *Store) Value(ctx context.Context, id qbound.Identity) (int, error) {
	if v, found := st.LookupValue(id); found {
		return v, nil
	}
	return 0, errors.Wrapf(qbound.ErrNotFound, "%s %v", id.Key, id.Stratum)
}

func (st *Store) Minimals(ctx context.Context, k int) ([]qbound.Key, error) {
	return st.minimals.Keys(k), nil
}

func (st *Store) MinimalValues(ctx context.Context) ([]int, error) {
	return st.minimals.Values(), nil
}

// LostArtifact names an artifact whose files existed but could not be decoded.
type LostArtifact struct {
	Family  qbound.Family
	Stratum qbound.Stratum
	Err     error
}

// LoadReport summarizes what Load found on disk.
type LoadReport struct {
	Frontiers map[qbound.Family]qbound.Stratum // families with no artifacts are absent
	Outcomes  map[ReloadOutcome]int
	Lost      []LostArtifact
	Registry  ReloadOutcome
}

// Load replaces the in-memory tables with what is on disk.
//
// For each family, every stratum at or below the family's resume frontier is reloaded: all edge counts for smaller
// vertex counts, and edge counts from the top down to the frontier for the frontier's vertex count.
// Unrecoverable artifacts are reported in LoadReport.Lost and leave their stratum cold.  Temp files left by an
// interrupted write are removed first.
// The base cases K0 and K1 are then injected with value 0 and marked seen.
func (st *Store) Load() (LoadReport, error) {
	st.reset()

	report := LoadReport{
		Frontiers: make(map[qbound.Family]qbound.Stratum),
		Outcomes:  make(map[ReloadOutcome]int),
	}

	var errs error
	if removed, err := st.removeStaleTemps(); err != nil {
		errs = multierror.Append(errs, err)
	} else if removed > 0 {
		klog.Warningf("removed %d temp artifacts left by an interrupted write", removed)
	}

	for _, fam := range qbound.StratumFamilies {
		frontier, found, err := st.ResumeFrontier(fam)
		if err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "scanning %s", fam))
			continue
		}
		if !found {
			continue
		}
		report.Frontiers[fam] = frontier

		numKeys := 0
		for n := 0; n <= frontier.N; n++ {
			mLo := 0
			if n == frontier.N {
				mLo = frontier.M
			}
			for m := qbound.TopEdges(n); m >= mLo; m-- {
				s := qbound.Stratum{N: n, M: m}
				primary, backup := st.artifactPaths(fam, s)
				a, outcome, err := reloadArtifact(fam, s, primary, backup)
				report.Outcomes[outcome]++
				if outcome == Lost {
					report.Lost = append(report.Lost, LostArtifact{Family: fam, Stratum: s, Err: err})
				}
				if a != nil {
					st.apply(a)
					numKeys += len(a.Keys)
				}
			}
		}
		klog.Infof("loaded %s through %v: %s keys", fam, frontier, humanize.Comma(int64(numKeys)))
	}

	primary, backup := st.registryPaths()
	a, outcome, err := reloadArtifact(qbound.FamilyMinimals, qbound.Stratum{}, primary, backup)
	report.Registry = outcome
	if outcome == Lost {
		report.Lost = append(report.Lost, LostArtifact{Family: qbound.FamilyMinimals, Err: err})
	}
	if a != nil {
		st.minimals.fromArtifact(a)
	}

	st.injectBaseCases()
	return report, errs
}

func (st *Store) apply(a *artifact) {
	tables := st.tables(a.Stratum)
	switch a.Family {
	case qbound.FamilyValues:
		for i, key := range a.Keys {
			tables.values.Relax(key, a.Values[i])
		}
	case qbound.FamilySeen:
		for _, key := range a.Keys {
			tables.seen.Add(key)
		}
	case qbound.FamilyCompleted:
		for _, key := range a.Keys {
			tables.completed.Add(key)
		}
	}
}

// K0 and K1 have value 0 and need no propagation.
var baseCases = []qbound.Identity{
	{Key: "?", Stratum: qbound.Stratum{N: 0, M: 0}},
	{Key: "@", Stratum: qbound.Stratum{N: 1, M: 0}},
}

func (st *Store) injectBaseCases() {
	for _, id := range baseCases {
		st.Values(id.Stratum).Relax(id.Key, 0)
		st.Seen(id.Stratum).Add(id.Key)
	}
}

func (st *Store) stratumArtifact(fam qbound.Family, s qbound.Stratum) *artifact {
	a := &artifact{
		Family:  fam,
		Stratum: s,
	}
	tables := st.tables(s)
	switch fam {
	case qbound.FamilyValues:
		a.Keys = tables.values.SortedKeys()
		a.Values = make([]int, len(a.Keys))
		for i, key := range a.Keys {
			a.Values[i] = tables.values[key]
		}
	case qbound.FamilySeen:
		a.Keys = tables.seen.SortedKeys()
	case qbound.FamilyCompleted:
		a.Keys = tables.completed.SortedKeys()
	}
	return a
}

func (st *Store) writeStratum(fam qbound.Family, s qbound.Stratum) error {
	primary, backup := st.artifactPaths(fam, s)
	return writeArtifact(st.stratumArtifact(fam, s), primary, backup)
}

// Checkpoint persists pass 1 progress on s: values of s, values of the stratum below, then the seen set of s.
// Values go first so a seen key never outlives the relaxations it caused.
func (st *Store) Checkpoint(s qbound.Stratum) error {
	if err := st.writeStratum(qbound.FamilyValues, s); err != nil {
		return err
	}
	if s.M > 0 {
		if err := st.writeStratum(qbound.FamilyValues, s.Down()); err != nil {
			return err
		}
	}
	if err := st.writeStratum(qbound.FamilySeen, s); err != nil {
		return err
	}
	klog.V(2).Infof("checkpoint %v: %s values, %s seen", s,
		humanize.Comma(int64(len(st.Values(s)))), humanize.Comma(int64(len(st.Seen(s)))))
	return nil
}

// CheckpointClassified persists pass 2 progress on s: the minimals registry, then the completed set of s.
func (st *Store) CheckpointClassified(s qbound.Stratum) error {
	primary, backup := st.registryPaths()
	if err := writeArtifact(st.minimals.toArtifact(), primary, backup); err != nil {
		return err
	}
	if err := st.writeStratum(qbound.FamilyCompleted, s); err != nil {
		return err
	}
	klog.V(2).Infof("classified checkpoint %v: %s completed, %d minimals", s,
		humanize.Comma(int64(len(st.Completed(s)))), st.minimals.Len())
	return nil
}

// NumGraphs returns the number of keys with a recorded value in s.
func (st *Store) NumGraphs(s qbound.Stratum) int {
	return len(st.Values(s))
}
