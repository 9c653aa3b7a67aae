package graph

import (
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"github.com/qbound/qbound/qbound"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"
)

var gT *testing.T

func TestGraph6(t *testing.T) {
	gT = t

	checkGraph6("?", 0, 0)
	checkGraph6("@", 1, 0)
	checkGraph6("A_", 2, 1)
	checkGraph6("A?", 2, 0)
	checkGraph6("Bw", 3, 3)
	checkGraph6("C~", 4, 6)
	checkGraph6("DhC", 5, 4)

	K10, _ := Complete(10)
	checkGraph6(K10.Graph6(), 10, 45)

	for _, bad := range []string{"", "K~~~~~~~~~~~", "Bw?", "B", "Bx", "A`"} {
		if _, err := FromGraph6(bad); !errors.Is(err, qbound.ErrInvalidGraph) {
			t.Errorf("graph6 %q: expected ErrInvalidGraph, got %v", bad, err)
		}
	}
}

func checkGraph6(g6 string, n, m int) {
	X, err := FromGraph6(g6)
	if err != nil {
		gT.Fatalf("graph6 %q: %v", g6, err)
	}
	if X.Order() != n || X.Size() != m {
		gT.Fatalf("graph6 %q: got (%d,%d), want (%d,%d)", g6, X.Order(), X.Size(), n, m)
	}
	if X.Graph6() != g6 {
		gT.Fatalf("graph6 %q: re-encoded as %q", g6, X.Graph6())
	}
}

func TestContract(t *testing.T) {
	K4, _ := Complete(4)
	Y := K4.Contract(qbound.Edge{A: 1, B: 3})
	require.Equal(t, qbound.Stratum{N: 3, M: 3}, Y.Stratum())

	P4, err := FromExpr("1-2-3-4")
	require.NoError(t, err)
	Y = P4.Contract(qbound.Edge{A: 1, B: 2})
	require.Equal(t, qbound.Stratum{N: 3, M: 2}, Y.Stratum())
	require.True(t, Y.Connected())
	require.True(t, Y.HasEdge(0, 1) && Y.HasEdge(1, 2))
	require.False(t, Y.HasEdge(0, 2))

	C4, _ := FromExpr("1-2-3-4-1")
	Y = C4.Contract(qbound.Edge{A: 0, B: 3})
	K3, _ := Complete(3)
	require.Equal(t, K3.Key(), Y.Key())

	D := C4.DeleteEdge(qbound.Edge{A: 0, B: 1})
	require.Equal(t, P4.Key(), D.Key())
	require.Equal(t, 4, C4.Size(), "DeleteEdge must not mutate its receiver")
}

func TestConnected(t *testing.T) {
	null, _ := New(0)
	require.False(t, null.Connected())
	require.Equal(t, 0, null.Components())

	K1, _ := New(1)
	require.True(t, K1.Connected())

	X, err := FromExpr("1-2;1-2-3")
	require.NoError(t, err)
	require.Equal(t, 5, X.Order())
	require.Equal(t, 3, X.Size())
	require.False(t, X.Connected())
	require.Equal(t, 2, X.Components())
}

func TestCanonicalRelabel(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := 0; trial < 300; trial++ {
		n := 1 + rng.IntN(qbound.MaxVertices)
		X, _ := New(n)
		for a := 0; a < n; a++ {
			for b := a + 1; b < n; b++ {
				if rng.IntN(2) == 0 {
					X.AddEdge(a, b)
				}
			}
		}

		perm := rng.Perm(n)
		Y := X.Relabel(perm)

		idX, idY := X.Identity(), Y.Identity()
		require.Equal(t, idX, idY, "graph %v relabeled as %v", X, Y)
		require.Equal(t, X.Stratum(), idX.Stratum)

		C := X.Canonical()
		require.Equal(t, string(idX.Key), C.Graph6())
	}
}

func TestCanonicalSymmetric(t *testing.T) {
	petersen, err := FromExpr("1-2-3-4-5-1,1-6,2-7,3-8,4-9,5-10,6-8-10-7-9-6")
	require.NoError(t, err)
	require.Equal(t, qbound.Stratum{N: 10, M: 15}, petersen.Stratum())

	Y := petersen.Relabel([]int{9, 3, 7, 1, 5, 0, 2, 8, 4, 6})
	require.Equal(t, petersen.Key(), Y.Key())

	// Petersen and the pentagonal prism share a degree sequence.
	prism, err := FromExpr("1-2-3-4-5-1,6-7-8-9-10-6,1-6,2-7,3-8,4-9,5-10")
	require.NoError(t, err)
	require.NotEqual(t, petersen.Key(), prism.Key())

	K10, _ := Complete(10)
	require.Equal(t, K10.Graph6(), string(K10.Key()))

	E10, _ := New(10)
	require.Equal(t, E10.Graph6(), string(E10.Key()))
}

// Counts of graphs up to isomorphism (OEIS A000088) and of connected ones (A001349).
func TestIsomorphismClassCounts(t *testing.T) {
	all := []int{1, 1, 2, 4, 11, 34, 156}
	connected := []int{0, 1, 1, 2, 6, 21, 112}

	for n := 0; n <= 6; n++ {
		edges := make([]qbound.Edge, 0, qbound.TopEdges(n))
		for b := 1; b < n; b++ {
			for a := 0; a < b; a++ {
				edges = append(edges, qbound.Edge{A: a, B: b})
			}
		}

		keys := map[qbound.Key]bool{}
		for mask := 0; mask < 1<<len(edges); mask++ {
			X, _ := New(n)
			for i, e := range edges {
				if mask&(1<<i) != 0 {
					X.AddEdge(e.A, e.B)
				}
			}
			keys[X.Key()] = X.Connected()
		}

		numConnected := 0
		for _, isConnected := range keys {
			if isConnected {
				numConnected++
			}
		}
		require.Equal(t, all[n], len(keys), "n=%d", n)
		require.Equal(t, connected[n], numConnected, "n=%d", n)
	}
}

func TestExpr(t *testing.T) {
	X, err := FromExpr("1-2-3-1,3-4")
	require.NoError(t, err)
	require.Equal(t, qbound.Stratum{N: 4, M: 4}, X.Stratum())
	require.Equal(t, "1-2,1-3,2-3,3-4", X.String())

	// duplicate edges collapse
	X, err = FromExpr("1-2-1-2")
	require.NoError(t, err)
	require.Equal(t, 1, X.Size())

	// bare vertex adds an isolated vertex
	X, err = FromExpr("1-2,3")
	require.NoError(t, err)
	require.Equal(t, "1-2,3", X.String())

	for _, bad := range []string{"1-1", "0-1", "1-11", "1-2;1-2;1-2;1-2;1-2;1-2", "1--2", "a-b"} {
		_, err := FromExpr(bad)
		require.ErrorIs(t, err, qbound.ErrInvalidGraph, bad)
	}
}

func TestParse(t *testing.T) {
	X, err := Parse(" Bw ")
	require.NoError(t, err)
	Y, err := Parse("1-2-3-1")
	require.NoError(t, err)
	require.Equal(t, X.Key(), Y.Key())

	Z, err := ParseMatrix("011,101,110")
	require.NoError(t, err)
	require.Equal(t, X.Key(), Z.Key())

	_, err = ParseMatrix("01,11")
	require.ErrorIs(t, err, qbound.ErrInvalidGraph)
	_, err = ParseMatrix("011,101,100")
	require.ErrorIs(t, err, qbound.ErrInvalidGraph)
}

func TestGonum(t *testing.T) {
	A := mat.NewSymDense(4, []float64{
		0, 1, 0, 1,
		1, 0, 1, 0,
		0, 1, 0, 1,
		1, 0, 1, 0,
	})
	C4, err := FromMatrix(A)
	require.NoError(t, err)
	require.Equal(t, qbound.Stratum{N: 4, M: 4}, C4.Stratum())

	G := C4.ToUndirected()
	require.Equal(t, 4, G.Nodes().Len())
	require.Equal(t, 4, G.Edges().Len())

	back, err := FromUndirected(G)
	require.NoError(t, err)
	require.True(t, back.Equal(C4))

	// node IDs need not be contiguous
	H := simple.NewUndirectedGraph()
	H.SetEdge(simple.Edge{F: simple.Node(40), T: simple.Node(7)})
	H.SetEdge(simple.Edge{F: simple.Node(7), T: simple.Node(12)})
	P3, err := FromUndirected(H)
	require.NoError(t, err)
	require.Equal(t, qbound.Stratum{N: 3, M: 2}, P3.Stratum())
	require.True(t, P3.Connected())

	_, err = FromMatrix(mat.NewDense(2, 2, []float64{0, 1, 0, 0}))
	require.ErrorIs(t, err, qbound.ErrInvalidGraph)
	_, err = FromMatrix(mat.NewDense(2, 2, []float64{1, 0, 0, 0}))
	require.ErrorIs(t, err, qbound.ErrInvalidGraph)
}
