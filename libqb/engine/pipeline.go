package engine

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
)

// RunReport summarizes a Run.
type RunReport struct {
	Load        stratum.LoadReport
	Stats       RunStats
	Pass1From   qbound.Stratum
	Pass2From   qbound.Stratum
	NumMinimals int
	Elapsed     time.Duration
}

var (
	pass1Start = qbound.Stratum{N: 2, M: 1}
	pass2Start = qbound.Stratum{N: 1, M: 0}
)

// Run loads the store, resumes pass 1 from the seen frontier, then resumes pass 2 from the completed frontier.
//
// The frontier stratum itself is always re-run since it may have been interrupted; keys already processed are skipped.
func (eng *Engine) Run(ctx context.Context) (RunReport, error) {
	started := time.Now()
	var report RunReport

	load, err := eng.st.Load()
	report.Load = load
	if err != nil {
		return report, err
	}
	report.Pass1From = resumeFrom(load, qbound.FamilySeen, pass1Start)
	report.Pass2From = resumeFrom(load, qbound.FamilyCompleted, pass2Start)
	eng.recoverLost(load.Lost, &report)

	qbound.WalkStrata(report.Pass1From, eng.maxVerts, func(s qbound.Stratum) bool {
		err = eng.Propagate(ctx, s)
		return err == nil
	})
	if err == nil {
		qbound.WalkStrata(report.Pass2From, eng.maxVerts, func(s qbound.Stratum) bool {
			err = eng.Classify(ctx, s)
			return err == nil
		})
	}

	report.Stats = eng.stats
	report.NumMinimals = eng.st.Registry().Len()
	report.Elapsed = time.Since(started)
	if err != nil {
		return report, err
	}

	klog.Infof("run complete in %v: %s propagated, %s classified, %d minimal graphs, %d anomalies",
		report.Elapsed.Round(time.Millisecond),
		humanize.Comma(report.Stats.Propagated), humanize.Comma(report.Stats.Classified),
		report.NumMinimals, report.Stats.Anomalies)
	return report, nil
}

func resumeFrom(load stratum.LoadReport, fam qbound.Family, coldStart qbound.Stratum) qbound.Stratum {
	frontier, found := load.Frontiers[fam]
	if !found || frontier.Less(coldStart) {
		return coldStart
	}
	return frontier
}

// recoverLost rewinds the passes so lost artifacts are rebuilt.
//   - lost values of t: the stratum above t is re-propagated, which rewrites t
//   - lost seen set of t: t is re-propagated
//   - lost completed set of t: t is re-classified
//   - lost registry: every stratum is re-classified
func (eng *Engine) recoverLost(lost []stratum.LostArtifact, report *RunReport) {
	rewind := func(from *qbound.Stratum, to qbound.Stratum) {
		if to.Less(*from) {
			*from = to
		}
	}

	for _, loss := range lost {
		s := loss.Stratum
		switch loss.Family {
		case qbound.FamilyValues:
			if !s.IsTop() {
				s.M++
			}
			clear(eng.st.Seen(s))
			rewind(&report.Pass1From, s)
		case qbound.FamilySeen:
			rewind(&report.Pass1From, s)
		case qbound.FamilyCompleted:
			rewind(&report.Pass2From, s)
		case qbound.FamilyMinimals:
			for n := 0; n <= eng.st.MaxVertices(); n++ {
				for m := 0; m <= qbound.TopEdges(n); m++ {
					clear(eng.st.Completed(qbound.Stratum{N: n, M: m}))
				}
			}
			report.Pass2From = pass2Start
		}
		klog.Errorf("DATA LOSS: %s %v will be rebuilt from %v", loss.Family, loss.Stratum, s)
	}

	if report.Pass1From.Less(pass1Start) {
		report.Pass1From = pass1Start
	}
	if report.Pass2From.Less(pass2Start) {
		report.Pass2From = pass2Start
	}
}
