package graph

import (
	"fmt"
	"io"
	"math/bits"
	"strings"

	"github.com/qbound/qbound/qbound"
)

// VtxSet is a bitset of zero-based vertex indices.
type VtxSet uint16

func (vs VtxSet) Has(v int) bool { return vs&(1<<uint(v)) != 0 }
func (vs VtxSet) Count() int     { return bits.OnesCount16(uint16(vs)) }

// Graph is a simple undirected graph on at most qbound.MaxVertices vertices.
type Graph struct {
	order int
	adj   [qbound.MaxVertices]VtxSet
}

// New returns the edgeless graph on n vertices.
func New(n int) (*Graph, error) {
	if n < 0 || n > qbound.MaxVertices {
		return nil, qbound.InvalidGraph(n, "order must be in 0..%d", qbound.MaxVertices)
	}
	return &Graph{order: n}, nil
}

// Complete returns K_n.
func Complete(n int) (*Graph, error) {
	X, err := New(n)
	if err != nil {
		return nil, err
	}
	all := VtxSet(1<<uint(n)) - 1
	for v := 0; v < n; v++ {
		X.adj[v] = all &^ (1 << uint(v))
	}
	return X, nil
}

// FromEdges builds a graph on n vertices from zero-based edges.  Parallel edges collapse; loops are rejected.
func FromEdges(n int, edges []qbound.Edge) (*Graph, error) {
	X, err := New(n)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if err := X.AddEdge(e.A, e.B); err != nil {
			return nil, err
		}
	}
	return X, nil
}

// AddEdge connects a and b.
func (X *Graph) AddEdge(a, b int) error {
	if a < 0 || b < 0 || a >= X.order || b >= X.order {
		return qbound.InvalidGraph(X.order, "edge %d-%d references a missing vertex", a+1, b+1)
	}
	if a == b {
		return qbound.InvalidGraph(X.order, "loop at vertex %d", a+1)
	}
	X.adj[a] |= 1 << uint(b)
	X.adj[b] |= 1 << uint(a)
	return nil
}

// Order is the vertex count.
func (X *Graph) Order() int {
	return X.order
}

// Size is the edge count.
func (X *Graph) Size() int {
	deg := 0
	for v := 0; v < X.order; v++ {
		deg += X.adj[v].Count()
	}
	return deg / 2
}

func (X *Graph) Stratum() qbound.Stratum {
	return qbound.Stratum{N: X.order, M: X.Size()}
}

func (X *Graph) HasEdge(a, b int) bool {
	return X.adj[a].Has(b)
}

func (X *Graph) Degree(v int) int {
	return X.adj[v].Count()
}

// Edges lists all edges with A < B, ordered by A then B.
func (X *Graph) Edges() []qbound.Edge {
	edges := make([]qbound.Edge, 0, qbound.MaxEdges)
	for a := 0; a < X.order; a++ {
		for b := a + 1; b < X.order; b++ {
			if X.adj[a].Has(b) {
				edges = append(edges, qbound.Edge{A: a, B: b})
			}
		}
	}
	return edges
}

// Components returns the number of connected components.
func (X *Graph) Components() int {
	var visited VtxSet
	count := 0
	for v := 0; v < X.order; v++ {
		if visited.Has(v) {
			continue
		}
		count++
		visited |= X.reach(v)
	}
	return count
}

// Connected reports if X has exactly one component.  The null graph is not connected.
func (X *Graph) Connected() bool {
	if X.order == 0 {
		return false
	}
	all := VtxSet(1<<uint(X.order)) - 1
	return X.reach(0) == all
}

func (X *Graph) reach(from int) VtxSet {
	seen := VtxSet(1 << uint(from))
	frontier := seen
	for frontier != 0 {
		var next VtxSet
		for v := 0; v < X.order; v++ {
			if frontier.Has(v) {
				next |= X.adj[v]
			}
		}
		frontier = next &^ seen
		seen |= next
	}
	return seen
}

// Copy returns an independent copy of X.
func (X *Graph) Copy() *Graph {
	Y := *X
	return &Y
}

// DeleteEdge returns X without the given edge.
func (X *Graph) DeleteEdge(e qbound.Edge) *Graph {
	Y := X.Copy()
	Y.adj[e.A] &^= 1 << uint(e.B)
	Y.adj[e.B] &^= 1 << uint(e.A)
	return Y
}

// Contract returns X with the endpoints of e merged into e.A.  Loops and parallel edges are discarded.
func (X *Graph) Contract(e qbound.Edge) *Graph {
	a, b := e.A, e.B
	if a > b {
		a, b = b, a
	}

	Y := &Graph{order: X.order - 1}
	merged := (X.adj[a] | X.adj[b]) &^ (1<<uint(a) | 1<<uint(b))

	for v := 0; v < X.order; v++ {
		if v == b {
			continue
		}
		nbrs := X.adj[v]
		if v == a {
			nbrs = merged
		} else if nbrs.Has(b) {
			nbrs = (nbrs &^ (1 << uint(b))) | 1<<uint(a)
		}
		Y.adj[dropIndex(v, b)] = dropVertex(nbrs, b)
	}
	return Y
}

func dropIndex(v, removed int) int {
	if v > removed {
		return v - 1
	}
	return v
}

// dropVertex removes bit b and shifts the higher bits down by one.
func dropVertex(vs VtxSet, b int) VtxSet {
	low := vs & (1<<uint(b) - 1)
	high := (vs >> uint(b+1)) << uint(b)
	return low | high
}

// Relabel returns the graph where vertex v of X becomes vertex perm[v].
func (X *Graph) Relabel(perm []int) *Graph {
	Y := &Graph{order: X.order}
	for v := 0; v < X.order; v++ {
		for w := v + 1; w < X.order; w++ {
			if X.adj[v].Has(w) {
				pv, pw := perm[v], perm[w]
				Y.adj[pv] |= 1 << uint(pw)
				Y.adj[pw] |= 1 << uint(pv)
			}
		}
	}
	return Y
}

// Equal reports if X and Y have identical labeled adjacency.
func (X *Graph) Equal(Y *Graph) bool {
	return X.order == Y.order && X.adj == Y.adj
}

// WriteAsString writes the graph as a one-based edge list, e.g. "1-2,1-3,2-3".
func (X *Graph) WriteAsString(out io.Writer, opts qbound.PrintOpts) {
	if len(opts.Label) > 0 {
		io.WriteString(out, opts.Label)
	}
	if opts.Edges {
		b := strings.Builder{}
		for i, e := range X.Edges() {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d-%d", e.A+1, e.B+1)
		}
		for v := 0; v < X.order; v++ {
			if X.adj[v] == 0 {
				if b.Len() > 0 {
					b.WriteByte(',')
				}
				fmt.Fprintf(&b, "%d", v+1)
			}
		}
		io.WriteString(out, b.String())
	}
	if opts.Value >= 0 {
		fmt.Fprintf(out, " value=%d", opts.Value)
	}
}

func (X *Graph) String() string {
	b := strings.Builder{}
	X.WriteAsString(&b, qbound.PrintOpts{Edges: true, Value: -1})
	return b.String()
}
