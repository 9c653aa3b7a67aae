// Package minors enumerates single-step minors of a graph and tests minor containment.
package minors

import (
	"iter"

	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/qbound"
)

// Minor is a single-step minor along with its identity.
type Minor struct {
	qbound.Identity
	Connected bool
	Graph     *graph.Graph
}

func newMinor(Y *graph.Graph) Minor {
	return Minor{
		Identity:  Y.Identity(),
		Connected: Y.Connected(),
		Graph:     Y,
	}
}

// Deletions yields the minor of X obtained by deleting each edge, one per edge.
// The same key appears more than once when X has edges in the same orbit.
func Deletions(X *graph.Graph) iter.Seq[Minor] {
	return func(yield func(Minor) bool) {
		for _, e := range X.Edges() {
			if !yield(newMinor(X.DeleteEdge(e))) {
				return
			}
		}
	}
}

// Contractions yields the minor of X obtained by contracting each edge, one per edge.
func Contractions(X *graph.Graph) iter.Seq[Minor] {
	return func(yield func(Minor) bool) {
		for _, e := range X.Edges() {
			if !yield(newMinor(X.Contract(e))) {
				return
			}
		}
	}
}

// HasMinor reports if H is a minor of G, where both are connected.
//
// Every connected minor of a connected graph is reachable through connected single-step minors,
// so the search only walks connected deletions and contractions.
// A state is abandoned once it cannot shrink to H: each contraction costs at least one edge.
func HasMinor(G, H *graph.Graph) bool {
	if !G.Connected() || !H.Connected() {
		return false
	}

	target := H.Identity()
	viable := func(s qbound.Stratum) bool {
		dn := s.N - target.Stratum.N
		dm := s.M - target.Stratum.M
		return dn >= 0 && dm >= dn
	}

	start := G.Identity()
	if !viable(start.Stratum) {
		return false
	}

	visited := map[qbound.Key]struct{}{start.Key: {}}
	stack := []Minor{{Identity: start, Connected: true, Graph: G}}

	for len(stack) > 0 {
		Y := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if Y.Stratum == target.Stratum {
			if Y.Key == target.Key {
				return true
			}
			continue
		}

		steps := Deletions(Y.Graph)
		if Y.Stratum.N > target.Stratum.N {
			steps = concat(steps, Contractions(Y.Graph))
		}
		for minor := range steps {
			if !minor.Connected || !viable(minor.Stratum) {
				continue
			}
			if _, seen := visited[minor.Key]; seen {
				continue
			}
			visited[minor.Key] = struct{}{}
			stack = append(stack, minor)
		}
	}
	return false
}

func concat[V any](seqs ...iter.Seq[V]) iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, seq := range seqs {
			for v := range seq {
				if !yield(v) {
					return
				}
			}
		}
	}
}
