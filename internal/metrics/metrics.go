// Package metrics exports command-path measurements for Prometheus.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts and times command submissions. It satisfies the
// engine's recorder contract.
type Recorder struct {
	registry *prometheus.Registry
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder builds a recorder with its own registry, keeping the
// default global registry untouched.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bidline",
		Subsystem: "engine",
		Name:      "commands_total",
		Help:      "Command submissions by kind and outcome.",
	}, []string{"kind", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bidline",
		Subsystem: "engine",
		Name:      "command_duration_seconds",
		Help:      "Command processing time from submission to commit or rejection.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	registry.MustRegister(commands, duration)

	return &Recorder{
		registry: registry,
		commands: commands,
		duration: duration,
	}
}

// ObserveCommand records one command submission.
func (r *Recorder) ObserveCommand(kind string, outcome string, elapsed time.Duration) {
	r.commands.WithLabelValues(kind, outcome).Inc()
	r.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RegisterRoutes exposes the scrape endpoint.
func (r *Recorder) RegisterRoutes(router gin.IRouter) {
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
}
