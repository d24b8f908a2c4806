package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgmetrics "github.com/pexec/pexec/pkg/metrics"
	pkgsqlite "github.com/pexec/pexec/pkg/sqlite"
)

func TestSQLiteNewStore(t *testing.T) {
	dbRW, dbRO, cleanup := pkgsqlite.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()

	store, err := NewSQLiteStore(ctx, dbRW, dbRO, "test_metrics")
	require.NoError(t, err)
	require.NotNil(t, store)

	exists, err := pkgsqlite.TableExists(ctx, dbRW, "test_metrics")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = NewSQLiteStore(ctx, dbRW, dbRO, "")
	assert.Equal(t, ErrEmptyTableName, err)
}

func TestSQLiteStoreRecordAndRead(t *testing.T) {
	dbRW, dbRO, cleanup := pkgsqlite.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, dbRW, dbRO, "test_metrics")
	require.NoError(t, err)

	now := time.Now()
	earlier := now.Add(-time.Hour)
	ms := []pkgmetrics.Metric{
		{UnixMilliseconds: now.UnixMilli(), Name: "pexec_process_runs_total", Labels: "outcome=succeeded", Value: 3},
		{UnixMilliseconds: now.UnixMilli(), Name: "pexec_process_runs_total", Labels: "outcome=failed", Value: 1},
		{UnixMilliseconds: now.UnixMilli(), Name: "pexec_process_kills_total", Value: 0},
		{UnixMilliseconds: earlier.UnixMilli(), Name: "pexec_process_kills_total", Value: 2},
	}
	require.NoError(t, store.Record(ctx, ms...))

	// no-op
	require.NoError(t, store.Record(ctx))

	all, err := store.Read(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, earlier.UnixMilli(), all[0].UnixMilliseconds)
	assert.Equal(t, "pexec_process_kills_total", all[1].Name)
	assert.Equal(t, "outcome=failed", all[2].Labels)
	assert.Equal(t, "outcome=succeeded", all[3].Labels)

	recent, err := store.Read(ctx, pkgmetrics.WithSince(now.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	kills, err := store.Read(ctx, pkgmetrics.WithNames("pexec_process_kills_total"))
	require.NoError(t, err)
	require.Len(t, kills, 2)
	assert.Equal(t, float64(2), kills[0].Value)

	none, err := store.Read(ctx, pkgmetrics.WithNames("missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStoreRecordReplaces(t *testing.T) {
	dbRW, dbRO, cleanup := pkgsqlite.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, dbRW, dbRO, "test_metrics")
	require.NoError(t, err)

	ts := time.Now().UnixMilli()
	require.NoError(t, store.Record(ctx, pkgmetrics.Metric{UnixMilliseconds: ts, Name: "m", Value: 1}))
	require.NoError(t, store.Record(ctx, pkgmetrics.Metric{UnixMilliseconds: ts, Name: "m", Value: 2}))

	ms, err := store.Read(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, float64(2), ms[0].Value)
}

func TestSQLiteStoreRecordEmptyName(t *testing.T) {
	dbRW, dbRO, cleanup := pkgsqlite.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, dbRW, dbRO, "test_metrics")
	require.NoError(t, err)

	err = store.Record(ctx, pkgmetrics.Metric{UnixMilliseconds: time.Now().UnixMilli(), Value: 1})
	assert.Equal(t, ErrEmptyMetricName, err)
}

func TestSQLiteStorePurge(t *testing.T) {
	dbRW, dbRO, cleanup := pkgsqlite.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, dbRW, dbRO, "test_metrics")
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.Record(ctx,
		pkgmetrics.Metric{UnixMilliseconds: now.Add(-2 * time.Hour).UnixMilli(), Name: "m", Value: 1},
		pkgmetrics.Metric{UnixMilliseconds: now.Add(-90 * time.Minute).UnixMilli(), Name: "m", Value: 2},
		pkgmetrics.Metric{UnixMilliseconds: now.UnixMilli(), Name: "m", Value: 3},
	))

	purged, err := store.Purge(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	ms, err := store.Read(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, float64(3), ms[0].Value)
}

func TestSQLiteStoreEmptyTable(t *testing.T) {
	dbRW, dbRO, cleanup := pkgsqlite.OpenTestDB(t)
	defer cleanup()

	ctx := context.Background()
	assert.Equal(t, ErrEmptyTableName, insert(ctx, dbRW, "", pkgmetrics.Metric{Name: "m"}))

	_, err := read(ctx, dbRO, "", time.Time{}, nil)
	assert.Equal(t, ErrEmptyTableName, err)

	_, err = purge(ctx, dbRW, "", time.Now())
	assert.Equal(t, ErrEmptyTableName, err)
}
