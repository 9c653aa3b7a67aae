package minors

import (
	"iter"
	"testing"

	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/qbound"
	"github.com/stretchr/testify/require"
)

func mustExpr(t *testing.T, expr string) *graph.Graph {
	X, err := graph.FromExpr(expr)
	require.NoError(t, err, expr)
	return X
}

func keysOf(seq iter.Seq[Minor]) map[qbound.Key]int {
	keys := map[qbound.Key]int{}
	for minor := range seq {
		keys[minor.Key]++
	}
	return keys
}

func TestDeletionsContractions(t *testing.T) {
	K4, _ := graph.Complete(4)

	dels := keysOf(Deletions(K4))
	require.Len(t, dels, 1, "K4 minus any edge is the diamond")
	for _, count := range dels {
		require.Equal(t, 6, count)
	}

	cons := keysOf(Contractions(K4))
	K3, _ := graph.Complete(3)
	require.Equal(t, map[qbound.Key]int{K3.Key(): 6}, cons)

	// P4 deletions: the middle edge disconnects into two K2s, the end edges leave K2 + K1.
	P4 := mustExpr(t, "1-2-3-4")
	disconnected := 0
	for minor := range Deletions(P4) {
		require.Equal(t, qbound.Stratum{N: 4, M: 2}, minor.Stratum)
		if !minor.Connected {
			disconnected++
		}
	}
	require.Equal(t, 3, disconnected)

	for minor := range Contractions(P4) {
		require.True(t, minor.Connected)
		require.Equal(t, qbound.Stratum{N: 3, M: 2}, minor.Stratum)
	}
}

func TestEarlyStop(t *testing.T) {
	K5, _ := graph.Complete(5)
	count := 0
	for range Deletions(K5) {
		count++
		if count == 3 {
			break
		}
	}
	require.Equal(t, 3, count)
}

func TestHasMinor(t *testing.T) {
	K1, _ := graph.New(1)
	K3, _ := graph.Complete(3)
	K4, _ := graph.Complete(4)
	C5 := mustExpr(t, "1-2-3-4-5-1")
	P5 := mustExpr(t, "1-2-3-4-5")
	star := mustExpr(t, "1-2,1-3,1-4")
	petersen := mustExpr(t, "1-2-3-4-5-1,1-6,2-7,3-8,4-9,5-10,6-8-10-7-9-6")
	wheel := mustExpr(t, "1-2-3-4-5-1,6-1,6-2,6-3,6-4,6-5")

	require.True(t, HasMinor(K4, K4))
	require.True(t, HasMinor(K4, K3))
	require.True(t, HasMinor(C5, K3))
	require.True(t, HasMinor(P5, K1))
	require.True(t, HasMinor(wheel, K4))
	require.True(t, HasMinor(petersen, K4))
	require.True(t, HasMinor(petersen, C5))

	require.False(t, HasMinor(C5, K4))
	require.False(t, HasMinor(P5, K3), "trees have no cycles")
	require.False(t, HasMinor(P5, star), "a path has no vertex of degree 3")
	require.False(t, HasMinor(K3, K4))

	disconnected := mustExpr(t, "1-2,3-4")
	require.False(t, HasMinor(K4, disconnected))
}
