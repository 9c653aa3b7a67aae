// Package invariant defines the single-graph invariant oracle consumed by propagation.
package invariant

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/qbound/qbound/libqb/graph"
)

// Oracle computes the invariant of a single graph.
type Oracle interface {
	Value(ctx context.Context, X *graph.Graph) (int, error)
}

// Func adapts a plain function to an Oracle.
type Func func(ctx context.Context, X *graph.Graph) (int, error)

func (fn Func) Value(ctx context.Context, X *graph.Graph) (int, error) {
	return fn(ctx, X)
}

// CycleRank is |E| - |V| + #components, which is minor-monotone.
var CycleRank = Func(func(ctx context.Context, X *graph.Graph) (int, error) {
	return X.Size() - X.Order() + X.Components(), nil
})

// MaxDegree is the largest vertex degree.  It is deletion-monotone but contraction can raise it.
var MaxDegree = Func(func(ctx context.Context, X *graph.Graph) (int, error) {
	maxDeg := 0
	for v := 0; v < X.Order(); v++ {
		maxDeg = max(maxDeg, X.Degree(v))
	}
	return maxDeg, nil
})

var ErrUnknownOracle = errors.New("unknown invariant oracle")

var builtins = map[string]Oracle{
	"cycle-rank": CycleRank,
	"max-degree": MaxDegree,
}

// Lookup returns the built-in oracle with the given name, or loads the script named by "python:<path>".
// A script oracle should be closed when no longer needed.
func Lookup(name string) (Oracle, error) {
	if oracle, ok := builtins[name]; ok {
		return oracle, nil
	}
	if path, ok := scriptPath(name); ok {
		return LoadScript(path)
	}
	return nil, errors.Wrapf(ErrUnknownOracle, "%q (known: %v or %s<script>)", name, Names(), PythonPrefix)
}

// Names lists the built-in oracle names.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
