package invariant

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/qbound/qbound/libqb/graph"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		expr      string
		cycleRank int
		maxDegree int
	}{
		{"1", 0, 0},
		{"1-2", 0, 1},
		{"1-2-3-1", 1, 2},
		{"1-2-3-4-1,1-3", 2, 3},
		{"1-2-3-4-1,1-3,2-4", 3, 3},
		{"1-2;1-2-3-1", 1, 2},
	}
	for _, tc := range tests {
		X, err := graph.FromExpr(tc.expr)
		require.NoError(t, err)

		v, err := CycleRank.Value(ctx, X)
		require.NoError(t, err)
		require.Equal(t, tc.cycleRank, v, tc.expr)

		v, err = MaxDegree.Value(ctx, X)
		require.NoError(t, err)
		require.Equal(t, tc.maxDegree, v, tc.expr)
	}
}

func TestLookup(t *testing.T) {
	oracle, err := Lookup("cycle-rank")
	require.NoError(t, err)
	require.NotNil(t, oracle)

	_, err = Lookup("spectators")
	require.ErrorIs(t, err, ErrUnknownOracle)
	require.Equal(t, []string{"cycle-rank", "max-degree"}, Names())
}

const cycleRankScript = `
def invariant(n, edges):
    parent = list(range(n))

    def find(v):
        while parent[v] != v:
            v = parent[v]
        return v

    components = n
    for e in edges:
        a = find(e[0])
        b = find(e[1])
        if a != b:
            parent[a] = b
            components -= 1
    return len(edges) - n + components
`

func writeScript(t *testing.T, src string) string {
	path := filepath.Join(t.TempDir(), "oracle.py")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestScript(t *testing.T) {
	ctx := context.Background()

	oracle, err := Lookup(PythonPrefix + writeScript(t, cycleRankScript))
	require.NoError(t, err)
	script := oracle.(*Script)
	defer script.Close()

	for _, expr := range []string{"1", "1-2", "1-2-3-1", "1-2-3-4-1,1-3,2-4", "1-2;3-4-5-3", "1-2-3-4-5-1,1-3,1-4"} {
		X, err := graph.FromExpr(expr)
		require.NoError(t, err)
		want, _ := CycleRank.Value(ctx, X)
		got, err := script.Value(ctx, X)
		require.NoError(t, err, expr)
		require.Equal(t, want, got, expr)
	}

	require.NoError(t, script.Close())
	K3, _ := graph.Complete(3)
	_, err = script.Value(ctx, K3)
	require.ErrorIs(t, err, ErrScript)
}

func TestScriptErrors(t *testing.T) {
	_, err := LoadScript(writeScript(t, "x = 1\n"))
	require.ErrorIs(t, err, ErrScript)

	_, err = LoadScript(writeScript(t, "def invariant(n, edges)\n"))
	require.ErrorIs(t, err, ErrScript)

	script, err := LoadScript(writeScript(t, "def invariant(n, edges):\n    return 'many'\n"))
	require.NoError(t, err)
	defer script.Close()
	K2, _ := graph.Complete(2)
	_, err = script.Value(context.Background(), K2)
	require.ErrorIs(t, err, ErrScript)

	require.False(t, IsScript(PythonPrefix))
	require.True(t, IsScript(PythonPrefix+"usp.py"))
	_, err = Lookup(PythonPrefix)
	require.ErrorIs(t, err, ErrUnknownOracle)
}
