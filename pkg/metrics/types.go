package metrics

import (
	"context"
	"time"
)

// Metric is one sample of a metric, as kept in the metrics history.
type Metric struct {
	// UnixMilliseconds is when the sample was scraped.
	UnixMilliseconds int64 `json:"unix_milliseconds"`
	// Name is the name of the metric, e.g., "pexec_process_runs_total".
	Name string `json:"name"`
	// Labels is the label pairs of the sample in the form "k1=v1,k2=v2",
	// sorted by label name; empty if the metric has no label.
	Labels string `json:"labels,omitempty"`
	// Value is the counter or gauge value of the sample.
	Value float64 `json:"value"`
}

// Metrics is a slice of Metric.
type Metrics []Metric

// Scraper defines the metrics scraper interface.
type Scraper interface {
	Scrape(context.Context) (Metrics, error)
}

// Store defines the metrics store interface.
type Store interface {
	// Record records metric data points.
	Record(ctx context.Context, ms ...Metric) error

	// Returns the data points selected by the options, oldest first.
	Read(ctx context.Context, opts ...OpOption) (Metrics, error)

	// Purge purges the metrics data points before the given time.
	Purge(ctx context.Context, before time.Time) (int, error)
}
