package qbound

import (
	"fmt"
	"io"
)

// TopEdges returns the edge count of the complete graph on n vertices.
func TopEdges(n int) int {
	return n * (n - 1) / 2
}

// Top returns the densest stratum for n vertices.
func Top(n int) Stratum {
	return Stratum{N: n, M: TopEdges(n)}
}

// Valid reports if the stratum can hold a simple graph on at most MaxVertices.
func (s Stratum) Valid() bool {
	return s.N >= 0 && s.N <= MaxVertices && s.M >= 0 && s.M <= TopEdges(s.N)
}

// Down is the stratum one edge sparser (where deletion-minors land).
func (s Stratum) Down() Stratum {
	return Stratum{N: s.N, M: s.M - 1}
}

// IsTop reports if this is the complete-graph stratum for its vertex count.
func (s Stratum) IsTop() bool {
	return s.M == TopEdges(s.N)
}

// MinConnectedEdges is the fewest edges a connected graph on n vertices can have.
func MinConnectedEdges(n int) int {
	if n < 2 {
		return 0
	}
	return n - 1
}

func (s Stratum) String() string {
	return fmt.Sprintf("(%d,%d)", s.N, s.M)
}

// Less orders strata the way pass 1 visits them: vertex count ascending, then edge count descending.
func (s Stratum) Less(other Stratum) bool {
	if s.N != other.N {
		return s.N < other.N
	}
	return s.M > other.M
}

// WalkStrata calls onStratum for every stratum holding connected graphs, in pass 1 order, starting at from.
//
// Enumeration stops when onStratum returns false.
func WalkStrata(from Stratum, maxVerts int, onStratum func(s Stratum) bool) {
	for n := from.N; n <= maxVerts; n++ {
		mHi := TopEdges(n)
		if n == from.N && from.M < mHi {
			mHi = from.M
		}
		for m := mHi; m >= MinConnectedEdges(n); m-- {
			if !onStratum(Stratum{N: n, M: m}) {
				return
			}
		}
	}
}

func (id Identity) WriteAsString(out io.Writer, opts PrintOpts) {
	if len(opts.Label) > 0 {
		io.WriteString(out, opts.Label)
	}
	fmt.Fprintf(out, "%s n=%d m=%d", id.Key, id.Stratum.N, id.Stratum.M)
	if opts.Value >= 0 {
		fmt.Fprintf(out, " value=%d", opts.Value)
	}
}
