// Package syncer copies the scraped metrics into the metrics store.
package syncer

import (
	"context"
	"time"

	"github.com/pexec/pexec/pkg/log"
	pkgmetrics "github.com/pexec/pexec/pkg/metrics"
)

type Syncer struct {
	scraper        pkgmetrics.Scraper
	store          pkgmetrics.Store
	retainDuration time.Duration
}

// NewSyncer returns a syncer that keeps the samples for the retain duration.
// Zero keeps them forever.
func NewSyncer(scraper pkgmetrics.Scraper, store pkgmetrics.Store, retainDuration time.Duration) *Syncer {
	return &Syncer{
		scraper:        scraper,
		store:          store,
		retainDuration: retainDuration,
	}
}

// Sync records one scrape into the store, then purges the samples
// older than the retain duration. Returns the number of samples recorded.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	ms, err := s.scraper.Scrape(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.store.Record(ctx, ms...); err != nil {
		return 0, err
	}

	if s.retainDuration > 0 {
		before := time.Now().UTC().Add(-s.retainDuration)
		purged, err := s.store.Purge(ctx, before)
		if err != nil {
			log.Logger.Errorw("failed to purge metrics", "error", err)
		} else if purged > 0 {
			log.Logger.Debugw("purged metrics", "purged", purged)
		}
	}
	return len(ms), nil
}
