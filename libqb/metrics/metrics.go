// Package metrics holds the prometheus instruments of the batch job.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qbound"

var (
	// GraphsProcessed counts graphs finalized by a pass.
	// Labels: pass (propagate, classify)
	GraphsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graphs_processed_total",
		Help:      "Graphs finalized, by pass",
	}, []string{"pass"})

	// Relaxations counts deletion-minor entries that were inserted or lowered.
	Relaxations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relaxations_total",
		Help:      "Value table entries inserted or lowered by propagation",
	})

	// Anomalies counts contraction-minors with a value above their parent's.
	Anomalies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anomalies_total",
		Help:      "Monotonicity anomalies reported during propagation",
	})

	// Checkpoints counts artifacts written.
	// Labels: family (values, seen, completed, minimals)
	Checkpoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkpoints_total",
		Help:      "Artifacts written, by family",
	}, []string{"family"})

	// ArtifactReloads counts artifact reload outcomes.
	// Labels: outcome (primary, backup, missing, lost)
	ArtifactReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_reloads_total",
		Help:      "Artifact reloads, by outcome",
	}, []string{"outcome"})

	// SeedRequests counts requests made to the remote seed source.
	// Labels: status (ok, not_found, error)
	SeedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seed_requests_total",
		Help:      "Requests made to the remote seed source, by status",
	}, []string{"status"})

	StratumVertices = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stratum_vertices",
		Help:      "Vertex count of the stratum being processed",
	})

	StratumEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stratum_edges",
		Help:      "Edge count of the stratum being processed",
	})
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	klog.Infof("serving metrics on %s/metrics", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrap(err, "metrics server")
}
