package graph

import (
	"github.com/qbound/qbound/qbound"
)

// graph6 packs the upper triangle column by column: x(0,1), x(0,2), x(1,2), x(0,3), ...
// six bits per byte, each byte offset by 63.
const g6Bias = 63

func graph6Len(n int) int {
	return 1 + (qbound.TopEdges(n)+5)/6
}

// Graph6 returns the graph6 encoding of X under its current labeling.
func (X *Graph) Graph6() string {
	var buf [1 + (qbound.MaxEdges+5)/6]byte
	return string(X.appendGraph6(buf[:0]))
}

func (X *Graph) appendGraph6(dst []byte) []byte {
	n := X.order
	dst = append(dst, byte(n+g6Bias))

	var cur byte
	bit := 0
	for j := 1; j < n; j++ {
		for i := 0; i < j; i++ {
			cur <<= 1
			if X.adj[i].Has(j) {
				cur |= 1
			}
			bit++
			if bit == 6 {
				dst = append(dst, cur+g6Bias)
				cur, bit = 0, 0
			}
		}
	}
	if bit > 0 {
		dst = append(dst, (cur<<uint(6-bit))+g6Bias)
	}
	return dst
}

// FromGraph6 decodes a graph6 string (no header, single graph).
func FromGraph6(s string) (*Graph, error) {
	if len(s) == 0 {
		return nil, qbound.InvalidGraph(0, "empty graph6 string")
	}
	if s[0] < g6Bias || s[0] > 126 {
		return nil, qbound.InvalidGraph(0, "bad graph6 order byte %q", s[0])
	}
	n := int(s[0] - g6Bias)
	if n > qbound.MaxVertices {
		return nil, qbound.InvalidGraph(n, "graph6 order exceeds %d", qbound.MaxVertices)
	}
	if len(s) != graph6Len(n) {
		return nil, qbound.InvalidGraph(n, "graph6 string %q has length %d, want %d", s, len(s), graph6Len(n))
	}

	X := &Graph{order: n}
	pos := 0
	for j := 1; j < n; j++ {
		for i := 0; i < j; i++ {
			c := s[1+pos/6]
			if c < g6Bias || c > 126 {
				return nil, qbound.InvalidGraph(n, "bad graph6 byte %q", c)
			}
			if (c-g6Bias)&(1<<uint(5-pos%6)) != 0 {
				X.adj[i] |= 1 << uint(j)
				X.adj[j] |= 1 << uint(i)
			}
			pos++
		}
	}

	// Padding bits in the final byte must be zero.
	if pos%6 != 0 {
		c := s[len(s)-1] - g6Bias
		if c&(1<<uint(6-pos%6)-1) != 0 {
			return nil, qbound.InvalidGraph(n, "graph6 string %q has non-zero padding", s)
		}
	}
	return X, nil
}
