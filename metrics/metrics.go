// Package metrics counts what the compiler does and exports the counters as
// a Prometheus textfile for node_exporter.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modforge"

// Metrics holds the build counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	entities  *prometheus.CounterVec
	commands  *prometheus.CounterVec
	notices   *prometheus.CounterVec
	files     *prometheus.CounterVec
	builds    *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// New creates the metrics and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		entities: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_imported_total",
			Help:      "Root entities imported per application.",
		}, []string{"app"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_executed_total",
			Help:      "Mod file commands executed by kind.",
		}, []string{"kind"}),
		notices: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "Recoverable problems reported while compiling.",
		}, []string{"message"}),
		files: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_written_total",
			Help:      "Files written per mod.",
		}, []string{"mod"}),
		builds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Builds per mod and result.",
		}, []string{"mod", "result"}),
		durations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Time spent compiling a mod.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"mod"}),
	}
}

// Registry exposes the registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// CommandExecuted counts one interpreted command.
func (m *Metrics) CommandExecuted(kind string) {
	m.commands.WithLabelValues(kind).Inc()
}

// Notice counts one recoverable problem.
func (m *Metrics) Notice(message string) {
	m.notices.WithLabelValues(message).Inc()
}

// EntitiesImported counts root entities read from an application.
func (m *Metrics) EntitiesImported(app string, n int) {
	m.entities.WithLabelValues(app).Add(float64(n))
}

// BuildFinished records the outcome of one build.
func (m *Metrics) BuildFinished(mod string, files int, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.builds.WithLabelValues(mod, result).Inc()
	m.durations.WithLabelValues(mod).Observe(d.Seconds())
	if err == nil {
		m.files.WithLabelValues(mod).Add(float64(files))
	}
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
