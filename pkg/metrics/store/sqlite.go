// Package store provides the persistent storage layer for the metrics.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pexec/pexec/pkg/log"
	pkgmetrics "github.com/pexec/pexec/pkg/metrics"
	pkgsqlite "github.com/pexec/pexec/pkg/sqlite"
)

var _ pkgmetrics.Store = &sqliteStore{}

type sqliteStore struct {
	dbRW  *sql.DB
	dbRO  *sql.DB
	table string
}

// NewSQLiteStore creates the table if missing.
// dbRO defaults to dbRW if nil.
func NewSQLiteStore(ctx context.Context, dbRW *sql.DB, dbRO *sql.DB, table string) (pkgmetrics.Store, error) {
	if err := CreateTable(ctx, dbRW, table); err != nil {
		return nil, err
	}
	if dbRO == nil {
		dbRO = dbRW
	}
	return &sqliteStore{
		dbRW:  dbRW,
		dbRO:  dbRO,
		table: table,
	}, nil
}

func (s *sqliteStore) Record(ctx context.Context, ms ...pkgmetrics.Metric) error {
	return insert(ctx, s.dbRW, s.table, ms...)
}

func (s *sqliteStore) Read(ctx context.Context, opts ...pkgmetrics.OpOption) (pkgmetrics.Metrics, error) {
	op := &pkgmetrics.Op{}
	if err := op.ApplyOpts(opts); err != nil {
		return nil, err
	}
	return read(ctx, s.dbRO, s.table, op.Since, op.SelectedNames)
}

func (s *sqliteStore) Purge(ctx context.Context, before time.Time) (int, error) {
	return purge(ctx, s.dbRW, s.table, before)
}

const (
	// DefaultTableName is the default table name for the metrics.
	DefaultTableName = "pexec_metrics_v0_1"

	// ColumnUnixMilliseconds represents the Unix timestamp of the metric.
	ColumnUnixMilliseconds = "unix_milliseconds"

	// ColumnMetricName represents the name of the metric.
	ColumnMetricName = "metric_name"

	// ColumnMetricLabels represents the label pairs of the metric.
	ColumnMetricLabels = "metric_labels"

	// ColumnMetricValue represents the numeric value of the metric.
	ColumnMetricValue = "metric_value"
)

var (
	ErrEmptyTableName  = errors.New("table name is empty")
	ErrEmptyMetricName = errors.New("metric name is empty")
)

func CreateTable(ctx context.Context, dbRW *sql.DB, table string) error {
	if table == "" {
		return ErrEmptyTableName
	}

	_, err := dbRW.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	%s INTEGER NOT NULL,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s REAL NOT NULL,
	PRIMARY KEY (%s, %s, %s)
) WITHOUT ROWID;`,
		table,
		ColumnUnixMilliseconds, ColumnMetricName, ColumnMetricLabels, ColumnMetricValue, // columns
		ColumnUnixMilliseconds, ColumnMetricName, ColumnMetricLabels, // primary keys
	))
	return err
}

func insert(ctx context.Context, dbRW *sql.DB, table string, ms ...pkgmetrics.Metric) error {
	if table == "" {
		return ErrEmptyTableName
	}

	if len(ms) == 0 {
		return nil
	}

	for _, m := range ms {
		if m.Name == "" {
			return ErrEmptyMetricName
		}
	}

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s, %s, %s, %s) VALUES ",
		table,
		ColumnUnixMilliseconds,
		ColumnMetricName,
		ColumnMetricLabels,
		ColumnMetricValue,
	)

	placeholders := make([]string, len(ms))
	for i := range placeholders {
		placeholders[i] = "(?, ?, ?, ?)"
	}
	query += strings.Join(placeholders, ", ")

	args := make([]interface{}, 0, len(ms)*4)
	for _, m := range ms {
		args = append(args, m.UnixMilliseconds, m.Name, m.Labels, m.Value)
	}

	log.Logger.Debugw("inserting metrics", "metrics", len(ms))
	start := time.Now()
	_, err := dbRW.ExecContext(ctx, query, args...)
	pkgsqlite.RecordInsertUpdate(time.Since(start).Seconds())

	return err
}

// read returns the metric data in the ascending order of unix milliseconds
// meaning the first element is the oldest sample.
// Samples of the same time are ordered by name and labels.
func read(ctx context.Context, dbRO *sql.DB, table string, since time.Time, names map[string]struct{}) (pkgmetrics.Metrics, error) {
	if table == "" {
		return nil, ErrEmptyTableName
	}

	query := fmt.Sprintf(`
SELECT %s, %s, %s, %s
FROM %s
WHERE %s >= ?`,
		ColumnUnixMilliseconds,
		ColumnMetricName,
		ColumnMetricLabels,
		ColumnMetricValue,
		table,
		ColumnUnixMilliseconds,
	)
	args := []any{since.UnixMilli()}
	if since.IsZero() {
		args[0] = int64(0)
	}

	if len(names) > 0 {
		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)

		query += fmt.Sprintf(" AND %s IN (%s)", ColumnMetricName, strings.TrimSuffix(strings.Repeat("?, ", len(sorted)), ", "))
		for _, name := range sorted {
			args = append(args, name)
		}
	}
	query += fmt.Sprintf("\nORDER BY %s ASC, %s ASC, %s ASC;", ColumnUnixMilliseconds, ColumnMetricName, ColumnMetricLabels)

	start := time.Now()
	defer func() {
		pkgsqlite.RecordSelect(time.Since(start).Seconds())
	}()

	queryRows, err := dbRO.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer queryRows.Close()

	rows := make(pkgmetrics.Metrics, 0)
	for queryRows.Next() {
		m := pkgmetrics.Metric{}
		if err := queryRows.Scan(&m.UnixMilliseconds, &m.Name, &m.Labels, &m.Value); err != nil {
			return nil, err
		}
		rows = append(rows, m)
	}
	if err := queryRows.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// purge deletes the samples older than the given time.
func purge(ctx context.Context, dbRW *sql.DB, table string, before time.Time) (int, error) {
	if table == "" {
		return 0, ErrEmptyTableName
	}

	query := fmt.Sprintf(`
DELETE FROM %s WHERE %s < ?;`, table, ColumnUnixMilliseconds)

	start := time.Now()
	rs, err := dbRW.ExecContext(ctx, query, before.UnixMilli())
	pkgsqlite.RecordDelete(time.Since(start).Seconds())

	if err != nil {
		return 0, err
	}

	affected, err := rs.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
