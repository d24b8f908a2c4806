// Package common implements the flag handling shared by the pexec commands.
package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/pexec/pexec/pkg/config"
	"github.com/pexec/pexec/pkg/log"
	pkgmetrics "github.com/pexec/pexec/pkg/metrics"
	metrics_scraper "github.com/pexec/pexec/pkg/metrics/scraper"
	metrics_store "github.com/pexec/pexec/pkg/metrics/store"
	metrics_syncer "github.com/pexec/pexec/pkg/metrics/syncer"
	"github.com/pexec/pexec/pkg/process/manager"
	"github.com/pexec/pexec/pkg/sqlite"
)

// SetupLogger sets the global logger from the "log-level" and "log-file" flags.
func SetupLogger(cliContext *cli.Context) error {
	zapLvl, err := log.ParseLogLevel(cliContext.String("log-level"))
	if err != nil {
		return err
	}
	log.SetLogger(log.CreateLogger(zapLvl, cliContext.String("log-file")))
	return nil
}

// ConfigFromContext builds the configuration from the defaults, the file
// given with "config" (if any), and then the flags that were set.
func ConfigFromContext(cliContext *cli.Context) (*config.Config, error) {
	var opts []config.OpOption
	if cliContext != nil {
		opts = append(opts,
			config.WithDataDir(cliContext.String("data-dir")),
			config.WithDBInMemory(cliContext.Bool("db-in-memory")),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	cfg, err := config.DefaultConfig(ctx, opts...)
	cancel()
	if err != nil {
		return nil, err
	}
	if cliContext == nil {
		return cfg, cfg.Validate()
	}

	if f := cliContext.String("config"); f != "" {
		if err := cfg.LoadFile(f); err != nil {
			return nil, err
		}
	}

	if cliContext.IsSet("timeout") {
		cfg.DefaultTimeout = metav1.Duration{Duration: cliContext.Duration("timeout")}
	}
	if cliContext.IsSet("kill-grace-period") {
		cfg.KillGracePeriod = metav1.Duration{Duration: cliContext.Duration("kill-grace-period")}
	}
	if cliContext.IsSet("poll-interval") {
		cfg.PollInterval = metav1.Duration{Duration: cliContext.Duration("poll-interval")}
	}
	if cliContext.IsSet("max-output-bytes") {
		cfg.MaxOutputBytes = cliContext.Int("max-output-bytes")
	}
	if cliContext.IsSet("qps") {
		cfg.QPS = cliContext.Int("qps")
	}
	if cliContext.IsSet("retention-period") {
		cfg.RetentionPeriod = metav1.Duration{Duration: cliContext.Duration("retention-period")}
	}
	if f := cliContext.String("metrics-file"); f != "" {
		cfg.MetricsFile = f
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenState opens the run history database of the configuration.
// The returned read-only handle is nil for an in-memory history.
func OpenState(cfg *config.Config) (dbRW *sql.DB, dbRO *sql.DB, err error) {
	if cfg.InMemory {
		dbRW, err = sqlite.Open(sqlite.InMemory)
		return dbRW, nil, err
	}

	dbRW, err = sqlite.Open(cfg.State)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state file: %w", err)
	}
	dbRO, err = sqlite.Open(cfg.State, sqlite.WithReadOnly(true))
	if err != nil {
		_ = dbRW.Close()
		return nil, nil, fmt.Errorf("failed to open state file: %w", err)
	}
	return dbRW, dbRO, nil
}

// Session is an open run history with the manager and the metrics store on top of it.
type Session struct {
	Manager manager.Manager
	Metrics pkgmetrics.Store

	cfg  *config.Config
	dbRW *sql.DB
	dbRO *sql.DB
}

// OpenSession opens the run history of the configuration.
// Close the session once done.
func OpenSession(cfg *config.Config, exclusive bool) (*Session, error) {
	dbRW, dbRO, err := OpenState(cfg)
	if err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, dbRW: dbRW, dbRO: dbRO}

	s.Manager, err = manager.New(manager.Config{
		SQLite:               dbRW,
		SQLiteRO:             dbRO,
		TableName:            cfg.HistoryTable,
		QPS:                  cfg.QPS,
		MinimumRetryInterval: cfg.MinimumRetryInterval.Duration,
		Exclusive:            exclusive,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	s.Metrics, err = metrics_store.NewSQLiteStore(ctx, dbRW, dbRO, metrics_store.DefaultTableName)
	cancel()
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Purge deletes the runs and the metrics samples older than the time.
func (s *Session) Purge(ctx context.Context, before time.Time) (runs int, samples int, err error) {
	runs, err = s.Manager.Purge(ctx, before)
	if err != nil {
		return 0, 0, err
	}
	samples, err = s.Metrics.Purge(ctx, before)
	if err != nil {
		return runs, 0, err
	}
	return runs, samples, nil
}

// FlushMetrics records the metrics of this invocation into the metrics
// history and writes them to the configured textfile, if any.
func (s *Session) FlushMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scraper, err := metrics_scraper.NewPrometheusScraper(pkgmetrics.Gatherer(), metrics_scraper.DefaultPrefix)
	if err == nil {
		var n int
		n, err = metrics_syncer.NewSyncer(scraper, s.Metrics, s.cfg.RetentionPeriod.Duration).Sync(ctx)
		log.Logger.Debugw("recorded metrics", "samples", n)
	}
	if err != nil {
		log.Logger.Warnw("failed to record metrics", "error", err)
	}

	WriteMetrics(s.cfg)
}

func (s *Session) Close() {
	if s.dbRW != nil {
		_ = s.dbRW.Close()
	}
	if s.dbRO != nil {
		_ = s.dbRO.Close()
	}
}

// WriteMetrics writes the metrics to the configured textfile, if any,
// and logs the history database stats.
func WriteMetrics(cfg *config.Config) {
	if m, err := sqlite.ReadMetrics(pkgmetrics.Gatherer()); err == nil && !m.IsZero() {
		log.Logger.Debugw("history database stats",
			"insert_update_total", m.InsertUpdate.Total,
			"insert_update_seconds_avg", m.InsertUpdate.SecondsAvg,
			"select_total", m.Select.Total,
			"select_seconds_avg", m.Select.SecondsAvg,
			"delete_total", m.Delete.Total,
		)
	}

	if cfg == nil || cfg.MetricsFile == "" {
		return
	}
	if err := pkgmetrics.WriteToTextfile(cfg.MetricsFile); err != nil {
		log.Logger.Warnw("failed to write metrics", "file", cfg.MetricsFile, "error", err)
	}
}

// ErrNoCommand is returned when a command needs an argv but none was given.
var ErrNoCommand = errors.New("no command given (pass it after '--')")
