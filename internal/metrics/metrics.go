// Package metrics exposes search progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/search"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "knxunlock"

// Trial outcomes used as label values.
const (
	OutcomeRejected = "rejected"
	OutcomeAccepted = "accepted"
)

// Metrics holds the collectors of one run. It implements search.Observer.
type Metrics struct {
	registry *prometheus.Registry

	Trials      *prometheus.CounterVec // stage, outcome
	Transients  prometheus.Counter
	Checkpoints *prometheus.CounterVec // stage
	Stages      *prometheus.CounterVec // stage, status
	Index       *prometheus.GaugeVec   // stage
	ResumeFrom  *prometheus.GaugeVec   // stage
}

var _ search.Observer = (*Metrics)(nil)

// New registers the collectors on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Trials: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trials_total",
				Help:      "Keys submitted to the device",
			},
			[]string{"stage", "outcome"},
		),
		Transients: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transient_failures_total",
				Help:      "Trials that got no response and were retried",
			},
		),
		Checkpoints: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkpoint_writes_total",
				Help:      "Checkpoint records written",
			},
			[]string{"stage"},
		),
		Stages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_finished_total",
				Help:      "Stages finished, by final status",
			},
			[]string{"stage", "status"},
		),
		Index: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_index",
				Help:      "Logical index of the last candidate tried",
			},
			[]string{"stage"},
		),
		ResumeFrom: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_resume_index",
				Help:      "Index the stage resumed from",
			},
			[]string{"stage"},
		),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StageStarted(stage keyspace.Stage, resumeFrom uint64) {
	m.ResumeFrom.WithLabelValues(stage.String()).Set(float64(resumeFrom))
}

func (m *Metrics) StageFinished(stage keyspace.Stage, status search.StageStatus) {
	m.Stages.WithLabelValues(stage.String(), string(status)).Inc()
}

func (m *Metrics) Trial(stage keyspace.Stage, index uint64, out search.Outcome) {
	outcome := OutcomeRejected
	if out.Accepted {
		outcome = OutcomeAccepted
	}
	m.Trials.WithLabelValues(stage.String(), outcome).Inc()
	m.Index.WithLabelValues(stage.String()).Set(float64(index))
}

func (m *Metrics) Transient(uint32, error) {
	m.Transients.Inc()
}

func (m *Metrics) CheckpointSaved(stage keyspace.Stage, _ uint32) {
	m.Checkpoints.WithLabelValues(stage.String()).Inc()
}

// Serve exposes /metrics and /health on address until ctx is done.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
