package engine

import (
	"context"
	"iter"

	"github.com/dustin/go-humanize"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/libqb/metrics"
	"github.com/qbound/qbound/libqb/minors"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
)

// Classify runs pass 2 over stratum s: a connected graph is minimal when none of its single-step minors
// has a recorded value equal to its own.  Minimal graphs are registered under their value and every graph is
// marked completed.
//
// Pass 1 must have finished every stratum holding a minor of s.
func (eng *Engine) Classify(ctx context.Context, s qbound.Stratum) error {
	setStratumGauges(s)

	values := eng.st.Values(s)
	completed := eng.st.Completed(s)
	registry := eng.st.Registry()

	keys := values.SortedKeys()
	every := stratum.Cadence(len(keys), eng.cadence)
	klog.Infof("pass 2 %v: %s graphs, %s already completed", s,
		humanize.Comma(int64(len(keys))), humanize.Comma(int64(len(completed))))

	sinceCheckpoint := 0
	for _, key := range keys {
		if completed.Has(key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			if cerr := eng.checkpointClassified(s); cerr != nil {
				klog.Errorf("checkpoint %v on cancel: %v", s, cerr)
			}
			return err
		}
		if err := eng.interrupted(); err != nil {
			return err
		}

		v := values[key]
		if eng.isMinimal(s, key, v) {
			registry.Add(v, key)
		}
		completed.Add(key)
		eng.stats.Classified++
		metrics.GraphsProcessed.WithLabelValues("classify").Inc()

		sinceCheckpoint++
		if sinceCheckpoint >= every {
			sinceCheckpoint = 0
			if err := eng.checkpointClassified(s); err != nil {
				return err
			}
		}
	}

	return eng.checkpointClassified(s)
}

func (eng *Engine) isMinimal(s qbound.Stratum, key qbound.Key, v int) bool {
	X, err := graph.FromGraph6(string(key))
	if err != nil {
		klog.Errorf("%v: skipping undecodable key %q: %v", s, key, err)
		return false
	}
	if !X.Connected() {
		return false
	}

	for _, step := range [...]func(*graph.Graph) iter.Seq[minors.Minor]{
		minors.Deletions,
		minors.Contractions,
	} {
		for minor := range step(X) {
			if !minor.Connected {
				continue
			}
			if mv, exists := eng.st.LookupValue(minor.Identity); exists && mv == v {
				return false
			}
		}
	}
	return true
}
