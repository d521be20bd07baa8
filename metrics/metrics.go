// Package metrics exposes prometheus metrics for the bot.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every promptbot collector plus the process/go collectors.
	Registry = prometheus.NewRegistry()

	wizardActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptbot",
			Subsystem: "wizard",
			Name:      "actions_total",
			Help:      "Wizard actions by action and result",
		},
		[]string{"action", "result"},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptbot",
			Subsystem: "backend",
			Name:      "generations_total",
			Help:      "Submitted prompts by backend and result",
		},
		[]string{"backend", "result"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "promptbot",
			Subsystem: "backend",
			Name:      "generation_duration_seconds",
			Help:      "Time from submitting a prompt until the last image arrived",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9), // 1s to ~4min
		},
		[]string{"backend"},
	)

	imagesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptbot",
			Subsystem: "backend",
			Name:      "images_delivered_total",
			Help:      "Images delivered to chats, and images dropped after a start over",
		},
		[]string{"outcome"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "promptbot",
			Subsystem: "wizard",
			Name:      "sessions",
			Help:      "Chats with a wizard session",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		wizardActions,
		generationsTotal,
		generationDuration,
		imagesDelivered,
		activeSessions,
	)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordAction counts one wizard action.
func RecordAction(action string, err error) {
	wizardActions.WithLabelValues(action, result(err)).Inc()
}

// RecordGeneration records a finished backend call.
func RecordGeneration(backend string, duration time.Duration, err error) {
	generationsTotal.WithLabelValues(backend, result(err)).Inc()
	generationDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func RecordImageDelivered() {
	imagesDelivered.WithLabelValues("delivered").Inc()
}

func RecordImageDiscarded() {
	imagesDelivered.WithLabelValues("discarded").Inc()
}

func SetSessions(n int) {
	activeSessions.Set(float64(n))
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
