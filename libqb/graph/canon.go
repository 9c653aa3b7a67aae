package graph

import (
	"bytes"
	"slices"

	"github.com/qbound/qbound/qbound"
)

// Canonical labeling is an individualization-refinement search:
//   - the partition is refined to an ordered equitable partition
//   - the first non-singleton cell is split by individualizing each of its vertices in turn
//   - each discrete partition is a labeling; the least graph6 code over all of them is the canonical form
//
// Refinement and cell order depend only on structure, so the leaf set is the same for every labeling of a graph.
// Twin vertices (same neighborhood apart from each other) yield automorphic subtrees and are explored once.

type cellSig [qbound.MaxVertices]int8

type canonizer struct {
	X        *Graph
	best     []byte
	bestPerm [qbound.MaxVertices]int
	scratch  []byte
}

// Canonicalize returns the canonical key and stratum of X.
func Canonicalize(X *Graph) qbound.Identity {
	key, _ := X.canonize()
	return qbound.Identity{
		Key:     qbound.Key(key),
		Stratum: X.Stratum(),
	}
}

// Identity is shorthand for Canonicalize(X).
func (X *Graph) Identity() qbound.Identity {
	return Canonicalize(X)
}

// Key returns the canonical key of X.
func (X *Graph) Key() qbound.Key {
	key, _ := X.canonize()
	return qbound.Key(key)
}

// Canonical returns X relabeled into its canonical form.
func (X *Graph) Canonical() *Graph {
	_, perm := X.canonize()
	return X.Relabel(perm[:X.order])
}

func (X *Graph) canonize() (string, [qbound.MaxVertices]int) {
	cz := canonizer{
		X:       X,
		scratch: make([]byte, 0, graph6Len(X.order)),
	}
	var root [][]int
	if X.order > 0 {
		all := make([]int, X.order)
		for v := range all {
			all[v] = v
		}
		root = [][]int{all}
	}
	cz.descend(root)
	return string(cz.best), cz.bestPerm
}

func (cz *canonizer) descend(cells [][]int) {
	cells = cz.X.refine(cells)

	target := -1
	for ci, cell := range cells {
		if len(cell) > 1 {
			target = ci
			break
		}
	}
	if target < 0 {
		cz.leaf(cells)
		return
	}

	cell := cells[target]
	tried := make([]int, 0, len(cell))
	for _, v := range cell {
		if slices.ContainsFunc(tried, func(u int) bool { return cz.X.twins(u, v) }) {
			continue
		}
		tried = append(tried, v)

		next := make([][]int, 0, len(cells)+1)
		next = append(next, cells[:target]...)
		next = append(next, []int{v}, without(cell, v))
		next = append(next, cells[target+1:]...)
		cz.descend(next)
	}
}

func (cz *canonizer) leaf(cells [][]int) {
	var perm [qbound.MaxVertices]int
	for i, cell := range cells {
		perm[cell[0]] = i
	}
	code := cz.X.Relabel(perm[:cz.X.order]).appendGraph6(cz.scratch[:0])
	if cz.best == nil || bytes.Compare(code, cz.best) < 0 {
		cz.best = append(cz.best[:0], code...)
		cz.bestPerm = perm
	}
	cz.scratch = code
}

// twins reports if swapping u and v is an automorphism of X.
func (X *Graph) twins(u, v int) bool {
	return X.adj[u]&^(1<<uint(v)) == X.adj[v]&^(1<<uint(u))
}

// refine splits cells until every vertex in a cell has the same neighbor count into each cell.
// Cell order is preserved and sub-cells are ordered by their neighbor counts.
func (X *Graph) refine(cells [][]int) [][]int {
	for {
		masks := make([]VtxSet, len(cells))
		for ci, cell := range cells {
			for _, v := range cell {
				masks[ci] |= 1 << uint(v)
			}
		}

		var sigs [qbound.MaxVertices]cellSig
		for v := 0; v < X.order; v++ {
			for ci, mask := range masks {
				sigs[v][ci] = int8((X.adj[v] & mask).Count())
			}
		}

		next := make([][]int, 0, X.order)
		for _, cell := range cells {
			if len(cell) == 1 {
				next = append(next, cell)
				continue
			}
			sorted := slices.Clone(cell)
			slices.SortStableFunc(sorted, func(a, b int) int {
				return slices.Compare(sigs[a][:], sigs[b][:])
			})
			start := 0
			for i := 1; i <= len(sorted); i++ {
				if i == len(sorted) || sigs[sorted[i]] != sigs[sorted[start]] {
					next = append(next, sorted[start:i])
					start = i
				}
			}
		}

		if len(next) == len(cells) {
			return next
		}
		cells = next
	}
}

func without(cell []int, v int) []int {
	out := make([]int, 0, len(cell)-1)
	for _, u := range cell {
		if u != v {
			out = append(out, u)
		}
	}
	return out
}
