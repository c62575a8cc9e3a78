// Package metrics exposes rxfilter's Prometheus instrumentation. All metrics
// live in a private registry and every Record helper is a no-op until
// EnableMetrics has been called.
package metrics

/*
rxfilter — prunes dead and redirecting domains from ad-blocking filter lists
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	registry           = prometheus.NewRegistry()
	defaultRegisterer  = promauto.With(registry)
	metricsInitialized sync.Once
	metricsEnabled     atomic.Bool
	metricsServer      *http.Server
)

// Metrics contains all the Prometheus metrics for the application
type Metrics struct {
	// Probe metrics
	ProbeAttemptsTotal   *prometheus.CounterVec
	ProbeAttemptDuration *prometheus.HistogramVec
	ClassificationsTotal *prometheus.CounterVec

	// Scheduler metrics
	BatchDuration       prometheus.Histogram
	BatchesCompleted    prometheus.Counter
	ResourcesSweptTotal prometheus.Counter
	LimiterRate         prometheus.Gauge

	// DNS metrics
	DNSLookupsTotal *prometheus.CounterVec

	// Output metrics
	ArtifactsWritten *prometheus.CounterVec
}

// Global instance of metrics
var globalMetrics *Metrics
var metricsOnce sync.Once

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics()
	})
	return globalMetrics
}

// EnableMetrics enables metrics collection
func EnableMetrics() {
	metricsEnabled.Store(true)
}

// IsMetricsEnabled returns whether metrics collection is enabled
func IsMetricsEnabled() bool {
	return metricsEnabled.Load()
}

// Registry returns the private registry the metrics are registered in.
func Registry() *prometheus.Registry {
	return registry
}

func newMetrics() *Metrics {
	buckets := []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 45, 60}
	batchBuckets := []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 180}

	return &Metrics{
		ProbeAttemptsTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxfilter_probe_attempts_total",
				Help: "Navigation attempts by outcome",
			},
			[]string{"outcome"},
		),
		ProbeAttemptDuration: defaultRegisterer.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rxfilter_probe_attempt_duration_seconds",
				Help:    "Time spent on a single navigation attempt",
				Buckets: buckets,
			},
			[]string{"outcome"},
		),
		ClassificationsTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxfilter_classifications_total",
				Help: "Final domain classifications by kind",
			},
			[]string{"kind"},
		),
		BatchDuration: defaultRegisterer.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rxfilter_batch_duration_seconds",
				Help:    "Wall time of one scheduler batch",
				Buckets: batchBuckets,
			},
		),
		BatchesCompleted: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "rxfilter_batches_completed_total",
				Help: "Scheduler batches run to completion",
			},
		),
		ResourcesSweptTotal: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "rxfilter_resources_swept_total",
				Help: "Pages force-closed by the post-batch sweep",
			},
		),
		LimiterRate: defaultRegisterer.NewGauge(
			prometheus.GaugeOpts{
				Name: "rxfilter_limiter_rate",
				Help: "Current navigation launch rate in launches per second (0 when unlimited)",
			},
		),
		DNSLookupsTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxfilter_dns_lookups_total",
				Help: "DNS verification lookups of dead domains by result",
			},
			[]string{"result"},
		),
		ArtifactsWritten: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rxfilter_artifacts_written_total",
				Help: "Output files committed by kind",
			},
			[]string{"artifact"},
		),
	}
}

// StartMetricsServer starts an HTTP server to expose Prometheus metrics
func StartMetricsServer(addr string, logger *zap.Logger) error {
	if !IsMetricsEnabled() {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	metricsInitialized.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("Starting metrics server", zap.String("addr", addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	})

	return nil
}

// ShutdownMetricsServer gracefully shuts down the metrics server
func ShutdownMetricsServer(ctx context.Context) error {
	if metricsServer != nil {
		return metricsServer.Shutdown(ctx)
	}
	return nil
}

// MeasureDuration is a helper to measure the duration of a function
func MeasureDuration(histogram *prometheus.HistogramVec, labels prometheus.Labels) func() {
	if !IsMetricsEnabled() {
		return func() {}
	}

	start := time.Now()
	return func() {
		histogram.With(labels).Observe(time.Since(start).Seconds())
	}
}

// RecordAttempt counts one navigation attempt and its duration.
func RecordAttempt(outcome string, d time.Duration) {
	if !IsMetricsEnabled() {
		return
	}
	m := GetMetrics()
	m.ProbeAttemptsTotal.WithLabelValues(outcome).Inc()
	m.ProbeAttemptDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordClassification counts a final per-domain result.
func RecordClassification(kind string) {
	if !IsMetricsEnabled() {
		return
	}
	GetMetrics().ClassificationsTotal.WithLabelValues(kind).Inc()
}

// ObserveBatch records a finished scheduler batch.
func ObserveBatch(d time.Duration) {
	if !IsMetricsEnabled() {
		return
	}
	m := GetMetrics()
	m.BatchDuration.Observe(d.Seconds())
	m.BatchesCompleted.Inc()
}

// AddResourcesSwept adds n force-closed pages.
func AddResourcesSwept(n int) {
	if !IsMetricsEnabled() || n <= 0 {
		return
	}
	GetMetrics().ResourcesSweptTotal.Add(float64(n))
}

// RecordDNSLookup counts one DNS verification ("resolvable" or "no_record").
func RecordDNSLookup(result string) {
	if !IsMetricsEnabled() {
		return
	}
	GetMetrics().DNSLookupsTotal.WithLabelValues(result).Inc()
}

// SetLimiterRate publishes the adaptive limiter's current rate.
func SetLimiterRate(r float64) {
	if !IsMetricsEnabled() {
		return
	}
	GetMetrics().LimiterRate.Set(r)
}

// RecordArtifact counts a committed output file.
func RecordArtifact(artifact string) {
	if !IsMetricsEnabled() {
		return
	}
	GetMetrics().ArtifactsWritten.WithLabelValues(artifact).Inc()
}
