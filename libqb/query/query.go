// Package query answers consumer lookups over computed values and minimal graphs.
//
// A Source is anything holding a value table and a minimals registry: a loaded store, a badger catalog, or the
// upstream dataset.  Inputs must be connected graphs; everything else is rejected with an InvalidGraphError.
package query

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/libqb/minors"
	"github.com/qbound/qbound/qbound"
)

// Source serves recorded values and registered minimal graphs.
type Source interface {

	// Value returns the recorded value of a graph identity, wrapping qbound.ErrNotFound if there is none.
	Value(ctx context.Context, id qbound.Identity) (int, error)

	// Minimals returns the keys of the minimal graphs registered under value k, in key order.
	Minimals(ctx context.Context, k int) ([]qbound.Key, error)

	// MinimalValues returns every value with at least one registered minimal graph, ascending.
	MinimalValues(ctx context.Context) ([]int, error)
}

func checkInput(X *graph.Graph) error {
	if X == nil {
		return qbound.InvalidGraph(0, "no graph given")
	}
	if !X.Connected() {
		return qbound.InvalidGraph(X.Order(), "graph is not connected")
	}
	return nil
}

// Value returns the recorded value of X.
func Value(ctx context.Context, src Source, X *graph.Graph) (int, error) {
	if err := checkInput(X); err != nil {
		return 0, err
	}
	return src.Value(ctx, X.Identity())
}

// Minimals returns the minimal graphs registered under value k.
func Minimals(ctx context.Context, src Source, k int) ([]qbound.Key, error) {
	if k < 0 {
		return nil, errors.Errorf("value %d is negative", k)
	}
	return src.Minimals(ctx, k)
}

// Representative returns a minimal graph with the same value as X that X has as a minor.
// If X is itself registered as minimal, its canonical form is returned.
func Representative(ctx context.Context, src Source, X *graph.Graph) (*graph.Graph, error) {
	v, err := Value(ctx, src, X)
	if err != nil {
		return nil, err
	}
	keys, err := src.Minimals(ctx, v)
	if err != nil {
		return nil, err
	}

	id := X.Identity()
	for _, key := range keys {
		if key == id.Key {
			return X.Canonical(), nil
		}
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		Y, err := graph.FromGraph6(string(key))
		if err != nil {
			return nil, errors.Wrapf(err, "minimal %q", key)
		}
		if minors.HasMinor(X, Y) {
			return Y, nil
		}
	}
	return nil, errors.Wrapf(qbound.ErrNotFound, "no minimal graph with value %d is a minor of %s", v, id.Key)
}

// WriteMinimals writes one numbered line per key: its graph6 key and its edge list.
func WriteMinimals(out io.Writer, keys []qbound.Key, opts qbound.PrintOpts) error {
	for i, key := range keys {
		X, err := graph.FromGraph6(string(key))
		if err != nil {
			return errors.Wrapf(err, "minimal %q", key)
		}
		lineOpts := opts
		lineOpts.Label = fmt.Sprintf("%s%4d  %-12s ", opts.Label, i+1, key)
		X.WriteAsString(out, lineOpts)
		if _, err := io.WriteString(out, "\n"); err != nil {
			return err
		}
	}
	return nil
}
