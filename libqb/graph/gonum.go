package graph

import (
	"slices"
	"strings"

	"github.com/qbound/qbound/qbound"
	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"
)

// FromMatrix reads a symmetric 0/1 adjacency matrix with a zero diagonal.
func FromMatrix(A mat.Matrix) (*Graph, error) {
	r, c := A.Dims()
	if r != c {
		return nil, qbound.InvalidGraph(r, "adjacency matrix is %dx%d", r, c)
	}
	X, err := New(r)
	if err != nil {
		return nil, err
	}

	for i := 0; i < r; i++ {
		if A.At(i, i) != 0 {
			return nil, qbound.InvalidGraph(r, "loop at vertex %d", i+1)
		}
		for j := i + 1; j < r; j++ {
			aij, aji := A.At(i, j), A.At(j, i)
			if aij != aji {
				return nil, qbound.InvalidGraph(r, "adjacency matrix is not symmetric at (%d,%d)", i+1, j+1)
			}
			switch aij {
			case 0:
			case 1:
				X.adj[i] |= 1 << uint(j)
				X.adj[j] |= 1 << uint(i)
			default:
				return nil, qbound.InvalidGraph(r, "adjacency entry (%d,%d) is %v", i+1, j+1, aij)
			}
		}
	}
	return X, nil
}

// ParseMatrix reads adjacency rows written as 0/1 digits separated by commas, e.g. "011,101,110".
func ParseMatrix(rows string) (*Graph, error) {
	fields := strings.Split(strings.TrimSpace(rows), ",")
	n := len(fields)
	if n > qbound.MaxVertices {
		return nil, qbound.InvalidGraph(n, "order exceeds %d", qbound.MaxVertices)
	}
	A := mat.NewDense(n, n, nil)
	for i, row := range fields {
		row = strings.TrimSpace(row)
		if len(row) != n {
			return nil, qbound.InvalidGraph(n, "matrix row %d has %d entries", i+1, len(row))
		}
		for j, c := range row {
			switch c {
			case '0':
			case '1':
				A.Set(i, j, 1)
			default:
				return nil, qbound.InvalidGraph(n, "matrix row %d has entry %q", i+1, c)
			}
		}
	}
	return FromMatrix(A)
}

// FromUndirected reads a gonum undirected graph.  Vertices are numbered by ascending node ID.
func FromUndirected(G gonum.Undirected) (*Graph, error) {
	nodes := gonum.NodesOf(G.Nodes())
	if len(nodes) > qbound.MaxVertices {
		return nil, qbound.InvalidGraph(len(nodes), "order exceeds %d", qbound.MaxVertices)
	}
	slices.SortFunc(nodes, func(a, b gonum.Node) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})

	index := make(map[int64]int, len(nodes))
	for i, u := range nodes {
		index[u.ID()] = i
	}

	X, err := New(len(nodes))
	if err != nil {
		return nil, err
	}
	for i, u := range nodes {
		to := G.From(u.ID())
		for to.Next() {
			j := index[to.Node().ID()]
			if err := X.AddEdge(i, j); err != nil {
				return nil, err
			}
		}
	}
	return X, nil
}

// ToUndirected exports X as a gonum graph with node IDs 0..n-1.
func (X *Graph) ToUndirected() *simple.UndirectedGraph {
	G := simple.NewUndirectedGraph()
	for v := 0; v < X.order; v++ {
		G.AddNode(simple.Node(v))
	}
	for _, e := range X.Edges() {
		G.SetEdge(simple.Edge{F: simple.Node(e.A), T: simple.Node(e.B)})
	}
	return G
}
