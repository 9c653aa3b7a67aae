package query_test

import (
	"context"
	"strings"
	"testing"

	"github.com/qbound/qbound/libqb/catalog"
	"github.com/qbound/qbound/libqb/engine"
	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/libqb/invariant"
	"github.com/qbound/qbound/libqb/query"
	"github.com/qbound/qbound/libqb/seed"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
	"github.com/stretchr/testify/require"
)

var (
	_ query.Source = (*stratum.Store)(nil)
	_ query.Source = (*catalog.Catalog)(nil)
	_ query.Source = (*seed.Cache)(nil)
)

func computedStore(t *testing.T, maxVerts int) *stratum.Store {
	st, err := stratum.Open(stratum.Opts{Dir: t.TempDir(), MaxVertices: maxVerts})
	require.NoError(t, err)
	eng, err := engine.New(engine.Opts{Store: st, Oracle: invariant.CycleRank})
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	require.NoError(t, err)
	return st
}

func mustExpr(t *testing.T, expr string) *graph.Graph {
	X, err := graph.FromExpr(expr)
	require.NoError(t, err)
	return X
}

func TestValue(t *testing.T) {
	st := computedStore(t, 5)
	ctx := context.Background()

	v, err := query.Value(ctx, st, mustExpr(t, "1-2-3-4-1,1-3"))
	require.NoError(t, err)
	require.Equal(t, 2, v)

	_, err = query.Value(ctx, st, mustExpr(t, "1-2,3-4"))
	require.ErrorIs(t, err, qbound.ErrInvalidGraph)
	var invalid *qbound.InvalidGraphError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, 4, invalid.Vertices)

	_, err = query.Value(ctx, st, nil)
	require.ErrorIs(t, err, qbound.ErrInvalidGraph)

	_, err = query.Value(ctx, st, mustExpr(t, "1-2-3-4-5-6"))
	require.ErrorIs(t, err, qbound.ErrNotFound)

	_, err = query.Minimals(ctx, st, -1)
	require.Error(t, err)
}

func TestRepresentative(t *testing.T) {
	st := computedStore(t, 5)
	ctx := context.Background()

	cat, err := catalog.OpenCatalog(catalog.CatalogOpts{})
	require.NoError(t, err)
	defer cat.Close()
	require.NoError(t, cat.ImportStore(ctx, st))

	K1, _ := graph.New(1)
	K3, _ := graph.Complete(3)
	K4, _ := graph.Complete(4)
	diamond := mustExpr(t, "1-2-3-4-1,1-3")

	for _, src := range []query.Source{st, cat} {
		for _, tc := range []struct {
			X    *graph.Graph
			want *graph.Graph
		}{
			{mustExpr(t, "1-2-3-4-5-1"), K3},
			{mustExpr(t, "1-2-3-1,3-4-5"), K3},
			{mustExpr(t, "1-2-3-4"), K1},
			{mustExpr(t, "3-1-2"), K1},
			{K3, K3},
			{K4, K4},
			{diamond, diamond},
			{mustExpr(t, "1-2-3-4-5-1,1-3,1-4"), mustExpr(t, "1-2-3-4-5-1,1-3,1-4")},
			{mustExpr(t, "1-2-3-1,1-4,2-4,3-5-4"), K4},
		} {
			rep, err := query.Representative(ctx, src, tc.X)
			require.NoError(t, err, tc.X.String())
			require.True(t, rep.Equal(tc.want.Canonical()), "%v: got %v", tc.X, rep)

			v, err := query.Value(ctx, src, rep)
			require.NoError(t, err)
			w, err := query.Value(ctx, src, tc.X)
			require.NoError(t, err)
			require.Equal(t, w, v)
		}

		_, err := query.Representative(ctx, src, mustExpr(t, "1-2,3"))
		require.ErrorIs(t, err, qbound.ErrInvalidGraph)
	}
}

func TestWriteMinimals(t *testing.T) {
	st := computedStore(t, 4)
	ctx := context.Background()

	keys, err := query.Minimals(ctx, st, 1)
	require.NoError(t, err)
	K3, _ := graph.Complete(3)
	require.Equal(t, []qbound.Key{K3.Key()}, keys)

	b := strings.Builder{}
	require.NoError(t, query.WriteMinimals(&b, keys, qbound.PrintOpts{Edges: true, Value: 1}))
	require.Equal(t, []string{"1", "Bw", "1-2,1-3,2-3", "value=1"}, strings.Fields(b.String()))

	require.Error(t, query.WriteMinimals(&b, []qbound.Key{"not graph6"}, qbound.PrintOpts{Value: -1}))
}
