package graph

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/pkg/errors"
	"github.com/qbound/qbound/qbound"
)

// GraphExpr is a graph written as edge runs, e.g. "1-2-3-1,3-4".
// Each ";" starts a disjoint part whose vertex IDs follow the previous part's highest ID.
type GraphExpr struct {
	Parts []*Part `(@@ (";" @@)*)?`
}

type Part struct {
	EdgeRuns []*EdgeRun `(@@ ("," @@)*)?`
}

type EdgeRun struct {
	StartVtx int   `@Int`
	Hops     []int `("-" @Int)*`
}

type graphBuilder struct {
	vtx0     int // offset of the current part
	maxVtxID int
	edges    []qbound.Edge
}

func (Xb *graphBuilder) applyPart(part *Part) error {
	Xb.vtx0 = Xb.maxVtxID

	for _, run := range part.EdgeRuns {
		err := Xb.applyRun(run)
		if err != nil {
			return err
		}
	}
	return nil
}

func (Xb *graphBuilder) tallyVtx(localID int) (int, error) {
	vtxID := Xb.vtx0 + localID
	if localID < 1 || vtxID > qbound.MaxVertices {
		return 0, qbound.InvalidGraph(vtxID, "vertex ID %d out of range", localID)
	}
	if Xb.maxVtxID < vtxID {
		Xb.maxVtxID = vtxID
	}
	return vtxID, nil
}

func (Xb *graphBuilder) applyRun(run *EdgeRun) error {
	curID, err := Xb.tallyVtx(run.StartVtx)
	if err != nil {
		return err
	}

	for _, hop := range run.Hops {
		nxtID, err := Xb.tallyVtx(hop)
		if err != nil {
			return err
		}
		Xb.edges = append(Xb.edges, qbound.Edge{A: curID - 1, B: nxtID - 1})
		curID = nxtID
	}
	return nil
}

var parseGraphExpr = participle.MustBuild[GraphExpr]()

// FromExpr builds a graph from an edge-run expression such as "1-2-3-1,3-4" or "1-2;1-2-3".
func FromExpr(graphExpr string) (*Graph, error) {
	Xexpr, err := parseGraphExpr.ParseString("", graphExpr)
	if err != nil {
		return nil, &qbound.InvalidGraphError{Reason: err.Error()}
	}

	var Xb graphBuilder
	for xi, part := range Xexpr.Parts {
		if err = Xb.applyPart(part); err != nil {
			return nil, errors.Wrapf(err, "error reading part #%d", xi+1)
		}
	}

	return FromEdges(Xb.maxVtxID, Xb.edges)
}

// Parse accepts either a graph6 string or a graph expression.
func Parse(str string) (*Graph, error) {
	str = strings.TrimSpace(str)
	if strings.ContainsAny(str, "0123456789-,;") {
		return FromExpr(str)
	}
	return FromGraph6(str)
}
