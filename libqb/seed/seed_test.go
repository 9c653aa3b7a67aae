package seed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/qbound/qbound/libqb/engine"
	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/libqb/invariant"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
	"github.com/stretchr/testify/require"
)

func TestParseLiterals(t *testing.T) {
	table, err := ParseValueTable("t", []byte("{'Bw': 1, 'BW': 0,\n 'C\\\\': 3}"))
	require.NoError(t, err)
	require.Equal(t, map[string]int{"Bw": 1, "BW": 0, `C\`: 3}, table)

	table, err = ParseValueTable("t", []byte("{}"))
	require.NoError(t, err)
	require.Empty(t, table)

	minimals, err := ParseMinimals("m", []byte("{'0_spectators': {'@'}, '1_spectators': {'Bw', 'C~'}, '2_spectators': set()}"))
	require.NoError(t, err)
	require.Equal(t, map[int][]string{0: {"@"}, 1: {"Bw", "C~"}}, minimals)

	for _, bad := range []string{
		"{'Bw': 'x'}",
		"{'Bw': -1}",
		"{'Bw' 1}",
		"__import__('os').system('true')",
		"{'Bw': 1",
	} {
		_, err := ParseValueTable("bad", []byte(bad))
		require.ErrorIs(t, err, qbound.ErrUnmarshal, bad)
	}
	_, err = ParseMinimals("bad", []byte("{'x_spectators': set()}"))
	require.ErrorIs(t, err, qbound.ErrUnmarshal)
	_, err = ParseMinimals("bad", []byte("{'1_spectators': 4}"))
	require.ErrorIs(t, err, qbound.ErrUnmarshal)
}

// upstream serves literals whose keys use a non-canonical labeling, as the published data does.
type upstream struct {
	files    map[string]string
	requests atomic.Int64
	failures atomic.Int64 // number of 503s to serve before answering
}

func (up *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up.requests.Add(1)
	if up.failures.Load() > 0 {
		up.failures.Add(-1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	body, found := up.files[strings.TrimPrefix(r.URL.Path, "/data/")]
	if !found {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, body)
}

// publish writes every connected graph on up to maxVerts vertices with its cycle rank.
func publish(t *testing.T, maxVerts int) *upstream {
	st := referenceStore(t, maxVerts)

	up := &upstream{files: map[string]string{}}
	qbound.WalkStrata(qbound.Stratum{N: 1, M: 0}, maxVerts, func(s qbound.Stratum) bool {
		var entries []string
		for _, key := range st.Values(s).SortedKeys() {
			entries = append(entries, fmt.Sprintf("'%s': %d", scramble(t, key), st.Values(s)[key]))
		}
		up.files[stratumPath(s)] = "{" + strings.Join(entries, ", ") + "}"
		return true
	})

	var groups []string
	for _, k := range st.Registry().Values() {
		var items []string
		for _, key := range st.Registry().Keys(k) {
			items = append(items, "'"+scramble(t, key)+"'")
		}
		groups = append(groups, fmt.Sprintf("'%d_spectators': {%s}", k, strings.Join(items, ", ")))
	}
	groups = append(groups, fmt.Sprintf("'%d_spectators': set()", len(groups)))
	up.files[minimalsPath] = "{" + strings.Join(groups, ", ") + "}"
	return up
}

func referenceStore(t *testing.T, maxVerts int) *stratum.Store {
	st, err := stratum.Open(stratum.Opts{Dir: t.TempDir(), MaxVertices: maxVerts})
	require.NoError(t, err)
	eng, err := engine.New(engine.Opts{Store: st, Oracle: invariant.CycleRank})
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	require.NoError(t, err)
	return st
}

// scramble relabels a canonical graph by reversing its vertex order.
func scramble(t *testing.T, key qbound.Key) string {
	X, err := graph.FromGraph6(string(key))
	require.NoError(t, err)
	perm := make([]int, X.Order())
	for v := range perm {
		perm[v] = X.Order() - 1 - v
	}
	return X.Relabel(perm).Graph6()
}

func newTestFetcher(srv *httptest.Server) *Fetcher {
	return NewFetcher(FetcherOpts{
		BaseURL:           srv.URL + "/data",
		RequestsPerSecond: 1000,
		MaxRetries:        3,
	})
}

func TestFetchStratum(t *testing.T) {
	up := publish(t, 4)
	srv := httptest.NewServer(up)
	defer srv.Close()
	f := newTestFetcher(srv)
	ctx := context.Background()

	s := qbound.Stratum{N: 4, M: 4}
	table, err := f.FetchStratum(ctx, s)
	require.NoError(t, err)

	C4, _ := graph.FromExpr("1-2-3-4-1")
	paw, _ := graph.FromExpr("1-2-3-1,3-4")
	require.Equal(t, stratum.ValueTable{C4.Key(): 1, paw.Key(): 1}, table)

	// not published
	up.requests.Store(0)
	_, err = f.FetchStratum(ctx, qbound.Stratum{N: 7, M: 9})
	require.ErrorIs(t, err, qbound.ErrSeedNotFound)
	require.Equal(t, int64(1), up.requests.Load(), "404 is not retried")

	// transient failures are retried
	up.requests.Store(0)
	up.failures.Store(2)
	_, err = f.FetchStratum(ctx, s)
	require.NoError(t, err)
	require.Equal(t, int64(3), up.requests.Load())

	// keys in the wrong stratum are rejected
	up.files[stratumPath(qbound.Stratum{N: 3, M: 3})] = "{'C~': 3}"
	_, err = f.FetchStratum(ctx, qbound.Stratum{N: 3, M: 3})
	require.ErrorIs(t, err, qbound.ErrUnmarshal)
}

func TestFetchAllAndMinimals(t *testing.T) {
	up := publish(t, 4)
	delete(up.files, stratumPath(qbound.Stratum{N: 4, M: 3}))
	srv := httptest.NewServer(up)
	defer srv.Close()
	f := newTestFetcher(srv)
	ctx := context.Background()

	tables, err := f.FetchAll(ctx, 4)
	require.NoError(t, err)
	require.NotContains(t, tables, qbound.Stratum{N: 4, M: 3})
	require.Len(t, tables, 1+1+2+3)

	reg, err := f.FetchMinimals(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, reg.Values())
	K4, _ := graph.Complete(4)
	require.Equal(t, []qbound.Key{K4.Key()}, reg.Keys(3))
}

// Upstream values drive propagation to the same result as the oracle that produced them.
func TestCacheOracle(t *testing.T) {
	up := publish(t, 4)
	srv := httptest.NewServer(up)
	defer srv.Close()
	cache := NewCache(newTestFetcher(srv))
	ctx := context.Background()

	st, err := stratum.Open(stratum.Opts{Dir: t.TempDir(), MaxVertices: 4})
	require.NoError(t, err)
	eng, err := engine.New(engine.Opts{Store: st, Oracle: cache.Oracle()})
	require.NoError(t, err)
	report, err := eng.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Stats.Anomalies)

	ks, err := cache.MinimalValues(ctx)
	require.NoError(t, err)
	require.Equal(t, ks, st.Registry().Values())
	for _, k := range ks {
		want, err := cache.Minimals(ctx, k)
		require.NoError(t, err)
		require.Equal(t, want, st.Registry().Keys(k))
	}

	diamond, _ := graph.FromExpr("1-2-3-4-1,1-3")
	v, err := cache.Value(ctx, diamond.Identity())
	require.NoError(t, err)
	require.Equal(t, 2, v)

	E4, _ := graph.New(4)
	_, err = cache.Value(ctx, E4.Identity())
	require.ErrorIs(t, err, qbound.ErrSeedNotFound)
}
