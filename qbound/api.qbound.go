package qbound

import (
	"fmt"
	"io"
)

const (

	// MaxVertices is the largest graph order the system catalogs.
	MaxVertices = 10

	// MaxEdges is the edge count of the complete graph on MaxVertices.
	MaxEdges = MaxVertices * (MaxVertices - 1) / 2
)

// Key is the canonical identifier of an isomorphism class: the graph6 string of the canonically relabeled graph.
type Key string

// Stratum is the (vertex count, edge count) pair that indexes every table.
type Stratum struct {
	N int // vertex count
	M int // edge count
}

// Identity is what the graph identity adapter produces for any graph representation.
type Identity struct {
	Key     Key
	Stratum Stratum
}

// Family names one of the persisted artifact families.
type Family byte

const (
	FamilyValues Family = iota + 1
	FamilySeen
	FamilyCompleted
	FamilyMinimals
)

var familyNames = map[Family]string{
	FamilyValues:    "values",
	FamilySeen:      "seen",
	FamilyCompleted: "completed",
	FamilyMinimals:  "minimals",
}

func (fam Family) String() string {
	if name, ok := familyNames[fam]; ok {
		return name
	}
	return "unknown"
}

// StratumFamilies are the families persisted per stratum (the minimals registry is a single artifact).
var StratumFamilies = []Family{
	FamilyValues,
	FamilySeen,
	FamilyCompleted,
}

// Edge is a pair of zero-based vertex indices with A < B.
type Edge struct {
	A, B int
}

// MonotonicityAnomaly reports a contraction-minor whose recorded value exceeds its parent's value.
//
// Anomalies are reported and never corrected.
type MonotonicityAnomaly struct {
	Graph      Key
	Value      int
	Minor      Key
	MinorValue int
	Stratum    Stratum // stratum of Graph
}

func (a MonotonicityAnomaly) Error() string {
	return fmt.Sprintf("monotonicity anomaly: %s has value %d with contraction-minor %s of value %d", a.Graph, a.Value, a.Minor, a.MinorValue)
}

// AnomalyHandler is called for each MonotonicityAnomaly found during propagation.
type AnomalyHandler func(anomaly MonotonicityAnomaly)

// PrintOpts specifies what is printed when writing out a graph
type PrintOpts struct {
	Label string // Prefix label
	Edges bool   // If set, prints the edge list
	Value int    // Printed when >= 0
}

// StringWriter is implemented by anything that renders itself for text output.
type StringWriter interface {
	WriteAsString(out io.Writer, opts PrintOpts)
}
