package engine

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/libqb/metrics"
	"github.com/qbound/qbound/libqb/minors"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
)

// Propagate runs pass 1 over stratum s: each graph not yet seen lowers the values of its connected deletion-minors
// to at most its own value, then has its contraction-minors checked for monotonicity.
//
// Graphs already seen are skipped, so re-running a stratum is a no-op.
// On cancellation or an oracle outage the stratum is checkpointed and the error is returned; the graph being
// processed is left unseen so a resume retries it.
func (eng *Engine) Propagate(ctx context.Context, s qbound.Stratum) error {
	setStratumGauges(s)

	values := eng.st.Values(s)
	seen := eng.st.Seen(s)

	if s.IsTop() {
		if err := eng.injectComplete(ctx, s, values); err != nil {
			return err
		}
	}

	keys := values.SortedKeys()
	every := stratum.Cadence(len(keys), eng.cadence)
	klog.Infof("pass 1 %v: %s graphs, %s already seen", s,
		humanize.Comma(int64(len(keys))), humanize.Comma(int64(len(seen))))

	sinceCheckpoint := 0
	for _, key := range keys {
		if seen.Has(key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			if cerr := eng.checkpoint(s); cerr != nil {
				klog.Errorf("checkpoint %v on cancel: %v", s, cerr)
			}
			return err
		}
		if err := eng.interrupted(); err != nil {
			return err
		}

		if err := eng.propagateOne(ctx, s, key, values[key]); err != nil {
			if cerr := eng.checkpoint(s); cerr != nil {
				klog.Errorf("checkpoint %v after oracle failure: %v", s, cerr)
			}
			return err
		}
		seen.Add(key)
		eng.stats.Propagated++
		metrics.GraphsProcessed.WithLabelValues("propagate").Inc()

		sinceCheckpoint++
		if sinceCheckpoint >= every {
			sinceCheckpoint = 0
			if err := eng.checkpoint(s); err != nil {
				return err
			}
		}
	}

	return eng.checkpoint(s)
}

// injectComplete seeds the top stratum with K_n, the one graph no propagation reaches.
// Every graph on n vertices descends from K_n, so without its value the stratum must not proceed.
func (eng *Engine) injectComplete(ctx context.Context, s qbound.Stratum, values stratum.ValueTable) error {
	Kn, err := graph.Complete(s.N)
	if err != nil {
		return err
	}
	key := Kn.Key()
	if _, exists := values[key]; exists {
		return nil
	}
	v, err := eng.oracle.Value(ctx, Kn)
	if err != nil {
		return errors.Wrapf(err, "oracle failed for K%d (%s)", s.N, key)
	}
	values[key] = v
	return nil
}

// hasNoValue reports an oracle answer that retrying will not change.
func hasNoValue(err error) bool {
	return errors.Is(err, qbound.ErrNotFound) || errors.Is(err, qbound.ErrSeedNotFound)
}

func (eng *Engine) propagateOne(ctx context.Context, s qbound.Stratum, key qbound.Key, v int) error {
	X, err := graph.FromGraph6(string(key))
	if err != nil {
		klog.Errorf("%v: skipping undecodable key %q: %v", s, key, err)
		return nil
	}

	// Disconnected graphs are finalized without propagating; K1 has no minors.
	if !X.Connected() || s.M == 0 {
		return nil
	}

	below := eng.st.Values(s.Down())
	for d := range minors.Deletions(X) {
		if !d.Connected {
			continue
		}
		candidate := v
		if _, exists := below[d.Key]; !exists {
			dv, err := eng.oracle.Value(ctx, d.Graph)
			switch {
			case err == nil:
				candidate = min(v, dv)
			case hasNoValue(err):
				klog.Warningf("%v: oracle has no value for %s, recording bound %d from %s", s, d.Key, v, key)
			default:
				return errors.Wrapf(err, "%v: oracle failed for %s (minor of %s)", s, d.Key, key)
			}
		}
		if below.Relax(d.Key, candidate) {
			eng.stats.Relaxations++
			metrics.Relaxations.Inc()
		}
	}

	checked := make(map[qbound.Key]struct{}, s.M)
	for c := range minors.Contractions(X) {
		if _, dupe := checked[c.Key]; dupe {
			continue
		}
		checked[c.Key] = struct{}{}

		cv, exists := eng.st.LookupValue(c.Identity)
		if !exists {
			klog.Warningf("%v: contraction-minor %s of %s has no recorded value", s, c.Key, key)
			continue
		}
		if cv > v {
			eng.reportAnomaly(qbound.MonotonicityAnomaly{
				Graph:      key,
				Value:      v,
				Minor:      c.Key,
				MinorValue: cv,
				Stratum:    s,
			})
		}
	}
	return nil
}
