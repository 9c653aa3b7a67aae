// Package engine runs invariant propagation (pass 1) and minimality classification (pass 2) over a stratum.Store.
package engine

import (
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/invariant"
	"github.com/qbound/qbound/libqb/metrics"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
)

// Opts configures an Engine.
type Opts struct {
	Store       *stratum.Store
	Oracle      invariant.Oracle
	MaxVertices int                   // defaults to the store's
	Cadence     stratum.CadenceOpts   // checkpoint interval override
	OnAnomaly   qbound.AnomalyHandler // defaults to a logged warning
}

// Engine drives both passes.  It is single-threaded and owns the store while running.
type Engine struct {
	st        *stratum.Store
	oracle    invariant.Oracle
	maxVerts  int
	cadence   stratum.CadenceOpts
	onAnomaly qbound.AnomalyHandler
	stats     RunStats

	// interrupt, when set, is consulted before each graph; an error stops the pass without a checkpoint.
	interrupt func() error
}

// RunStats tallies the work done by an Engine.
type RunStats struct {
	Propagated  int64 // graphs finalized by pass 1
	Classified  int64 // graphs finalized by pass 2
	Relaxations int64
	Anomalies   int64
	Checkpoints int64
}

func New(opts Opts) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.Wrap(qbound.ErrBadStoreParam, "Store must be specified")
	}
	if opts.Oracle == nil {
		return nil, errors.New("Oracle must be specified")
	}
	if opts.MaxVertices == 0 {
		opts.MaxVertices = opts.Store.MaxVertices()
	}
	if opts.MaxVertices < 1 || opts.MaxVertices > opts.Store.MaxVertices() {
		return nil, errors.Wrapf(qbound.ErrBadStoreParam, "MaxVertices must be in 1..%d", opts.Store.MaxVertices())
	}

	eng := &Engine{
		st:        opts.Store,
		oracle:    opts.Oracle,
		maxVerts:  opts.MaxVertices,
		cadence:   opts.Cadence,
		onAnomaly: opts.OnAnomaly,
	}
	if eng.onAnomaly == nil {
		eng.onAnomaly = func(anomaly qbound.MonotonicityAnomaly) {
			klog.Warningf("%v %v", anomaly.Stratum, anomaly)
		}
	}
	return eng, nil
}

func (eng *Engine) Stats() RunStats {
	return eng.stats
}

func (eng *Engine) interrupted() error {
	if eng.interrupt == nil {
		return nil
	}
	return eng.interrupt()
}

func (eng *Engine) reportAnomaly(anomaly qbound.MonotonicityAnomaly) {
	eng.stats.Anomalies++
	metrics.Anomalies.Inc()
	eng.onAnomaly(anomaly)
}

func (eng *Engine) checkpoint(s qbound.Stratum) error {
	eng.stats.Checkpoints++
	return eng.st.Checkpoint(s)
}

func (eng *Engine) checkpointClassified(s qbound.Stratum) error {
	eng.stats.Checkpoints++
	return eng.st.CheckpointClassified(s)
}

func setStratumGauges(s qbound.Stratum) {
	metrics.StratumVertices.Set(float64(s.N))
	metrics.StratumEdges.Set(float64(s.M))
}
