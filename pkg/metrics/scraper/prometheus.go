// Package scraper reads the samples of the registered metrics.
package scraper

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pexec/pexec/pkg/log"
	pkgmetrics "github.com/pexec/pexec/pkg/metrics"
)

// DefaultPrefix selects the metrics of pexec itself,
// not those of the Go runtime or the process collector.
const DefaultPrefix = "pexec_"

var _ pkgmetrics.Scraper = &promScraper{}

// NewPrometheusScraper returns a scraper of the metrics whose names
// start with the prefix. An empty prefix scrapes every metric.
func NewPrometheusScraper(gatherer prometheus.Gatherer, prefix string) (pkgmetrics.Scraper, error) {
	return &promScraper{
		gatherer: gatherer,
		prefix:   prefix,
	}, nil
}

type promScraper struct {
	gatherer prometheus.Gatherer
	prefix   string
}

func (s *promScraper) Scrape(_ context.Context) (pkgmetrics.Metrics, error) {
	if s == nil || s.gatherer == nil {
		return nil, nil
	}

	gathered, err := s.gatherer.Gather()
	if err != nil {
		return nil, err
	}

	log.Logger.Debugw("scraping prometheus metrics", "families", len(gathered))
	now := time.Now().UTC().UnixMilli()

	ms := make(pkgmetrics.Metrics, 0, len(gathered))
	for _, metricFamily := range gathered {
		name := metricFamily.GetName()
		if !strings.HasPrefix(name, s.prefix) {
			continue
		}

		for _, mtRaw := range metricFamily.GetMetric() {
			pairs := make([]string, 0, len(mtRaw.GetLabel()))
			for _, label := range mtRaw.GetLabel() {
				pairs = append(pairs, label.GetName()+"="+label.GetValue())
			}
			sort.Strings(pairs)
			labels := strings.Join(pairs, ",")

			// histograms are kept as their count and sum
			switch {
			case mtRaw.GetCounter() != nil:
				ms = append(ms, pkgmetrics.Metric{UnixMilliseconds: now, Name: name, Labels: labels, Value: mtRaw.GetCounter().GetValue()})
			case mtRaw.GetGauge() != nil:
				ms = append(ms, pkgmetrics.Metric{UnixMilliseconds: now, Name: name, Labels: labels, Value: mtRaw.GetGauge().GetValue()})
			case mtRaw.GetHistogram() != nil:
				h := mtRaw.GetHistogram()
				ms = append(ms,
					pkgmetrics.Metric{UnixMilliseconds: now, Name: name + "_count", Labels: labels, Value: float64(h.GetSampleCount())},
					pkgmetrics.Metric{UnixMilliseconds: now, Name: name + "_sum", Labels: labels, Value: h.GetSampleSum()},
				)
			}
		}
	}

	return ms, nil
}
