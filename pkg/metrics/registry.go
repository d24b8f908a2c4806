// Package metrics holds the Prometheus registry shared by every pexec package.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var defaultRegistry = prometheus.NewRegistry()

func init() {
	defaultRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// MustRegister registers the collectors with the default registry.
// Panics if any of them is already registered.
func MustRegister(cs ...prometheus.Collector) {
	defaultRegistry.MustRegister(cs...)
}

// Gatherer returns the default registry as a gatherer.
func Gatherer() prometheus.Gatherer {
	return defaultRegistry
}

// WriteToTextfile writes every registered metric to the file in the
// Prometheus text format, for collection by the node exporter's textfile collector.
func WriteToTextfile(file string) error {
	if err := prometheus.WriteToTextfile(file, defaultRegistry); err != nil {
		return fmt.Errorf("failed to write metrics to %q: %w", file, err)
	}
	return nil
}
