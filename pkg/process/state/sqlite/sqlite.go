// Package sqlite provides a SQLite implementation of the state.Interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pexec/pexec/pkg/process/state"
	pkgsqlite "github.com/pexec/pexec/pkg/sqlite"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultTableName is the table the run history is kept in.
const DefaultTableName = "pexec_runs_v0_1"

var _ state.Interface = (*State)(nil)

type State struct {
	dbRW      *sql.DB
	dbRO      *sql.DB
	tableName string
}

// New creates the table if missing. dbRO may be the same handle as dbRW.
func New(ctx context.Context, dbRW *sql.DB, dbRO *sql.DB, tableName string) (*State, error) {
	if dbRW == nil {
		return nil, errors.New("read-write db is nil")
	}
	if dbRO == nil {
		dbRO = dbRW
	}
	if tableName == "" {
		tableName = DefaultTableName
	}
	if err := CreateTable(ctx, dbRW, tableName); err != nil {
		return nil, err
	}
	return &State{
		dbRW:      dbRW,
		dbRO:      dbRO,
		tableName: tableName,
	}, nil
}

func (s *State) RecordStart(ctx context.Context, id string, commandLine string, startedAt time.Time) error {
	return RecordStart(ctx, s.dbRW, s.tableName, id, commandLine, startedAt)
}

func (s *State) RecordOutcome(ctx context.Context, id string, outcome state.Outcome) error {
	return RecordOutcome(ctx, s.dbRW, s.tableName, id, outcome)
}

func (s *State) Get(ctx context.Context, id string) (*state.Row, error) {
	rows, err := query(ctx, s.dbRO, s.tableName, fmt.Sprintf("WHERE %s = ?", ColumnID), id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, state.ErrNotFound
	}
	return &rows[0], nil
}

func (s *State) LatestByCommand(ctx context.Context, commandLine string) (*state.Row, error) {
	rows, err := query(ctx, s.dbRO, s.tableName,
		fmt.Sprintf("WHERE %s = ? ORDER BY %s DESC LIMIT 1", ColumnCommandLine, ColumnStartedUnixMilli),
		commandLine,
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, state.ErrNotFound
	}
	return &rows[0], nil
}

func (s *State) List(ctx context.Context, limit int) ([]state.Row, error) {
	clause := fmt.Sprintf("ORDER BY %s DESC, %s", ColumnStartedUnixMilli, ColumnID)
	if limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", limit)
	}
	return query(ctx, s.dbRO, s.tableName, clause)
}

func (s *State) Purge(ctx context.Context, before time.Time) (int, error) {
	return Purge(ctx, s.dbRW, s.tableName, before)
}

const (
	ColumnID               = "id"
	ColumnCommandLine      = "command_line"
	ColumnStartedUnixMilli = "started_unix_milli"
	ColumnFinished         = "finished"
	ColumnPID              = "pid"
	ColumnExitCode         = "exit_code"
	ColumnSignal           = "signal"
	ColumnTimedOut         = "timed_out"
	ColumnCanceled         = "canceled"
	ColumnDurationMilli    = "duration_milli"
	ColumnStdoutBytes      = "stdout_bytes"
	ColumnStderrBytes      = "stderr_bytes"
	ColumnOutput           = "output"
	ColumnError            = "error"
)

func CreateTable(ctx context.Context, db *sql.DB, tableName string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	%s TEXT PRIMARY KEY,
	%s TEXT NOT NULL,
	%s INTEGER NOT NULL,
	%s INTEGER NOT NULL DEFAULT 0,
	%s INTEGER,
	%s INTEGER,
	%s TEXT,
	%s INTEGER NOT NULL DEFAULT 0,
	%s INTEGER NOT NULL DEFAULT 0,
	%s INTEGER,
	%s INTEGER,
	%s INTEGER,
	%s TEXT,
	%s TEXT
);`, tableName,
		ColumnID,
		ColumnCommandLine,
		ColumnStartedUnixMilli,
		ColumnFinished,
		ColumnPID,
		ColumnExitCode,
		ColumnSignal,
		ColumnTimedOut,
		ColumnCanceled,
		ColumnDurationMilli,
		ColumnStdoutBytes,
		ColumnStderrBytes,
		ColumnOutput,
		ColumnError,
	))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s);`,
		tableName, ColumnStartedUnixMilli, tableName, ColumnStartedUnixMilli))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s);`,
		tableName, ColumnCommandLine, tableName, ColumnCommandLine))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Records the start of a run.
func RecordStart(ctx context.Context, db *sql.DB, tableName string, id string, commandLine string, startedAt time.Time) error {
	insertQuery := fmt.Sprintf(`
INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?);
`, tableName, ColumnID, ColumnCommandLine, ColumnStartedUnixMilli)

	start := time.Now()
	_, err := db.ExecContext(ctx, insertQuery, id, commandLine, startedAt.UTC().UnixMilli())
	pkgsqlite.RecordInsertUpdate(time.Since(start).Seconds())
	return err
}

// Records the outcome of a started run.
func RecordOutcome(ctx context.Context, db *sql.DB, tableName string, id string, outcome state.Outcome) error {
	updateQuery := fmt.Sprintf(`
UPDATE %s SET %s = 1, %s = ?, %s = ?, %s = ?, %s = ?, %s = ?, %s = ?, %s = ?, %s = ?, %s = ?, %s = ?
WHERE %s = ?;
`, tableName,
		ColumnFinished,
		ColumnPID,
		ColumnExitCode,
		ColumnSignal,
		ColumnTimedOut,
		ColumnCanceled,
		ColumnDurationMilli,
		ColumnStdoutBytes,
		ColumnStderrBytes,
		ColumnOutput,
		ColumnError,
		ColumnID,
	)

	start := time.Now()
	result, err := db.ExecContext(ctx, updateQuery,
		outcome.PID,
		outcome.ExitCode,
		nullString(outcome.Signal),
		outcome.TimedOut,
		outcome.Canceled,
		outcome.Duration.Milliseconds(),
		outcome.StdoutBytes,
		outcome.StderrBytes,
		nullString(outcome.Output),
		nullString(outcome.Error),
		id,
	)
	pkgsqlite.RecordInsertUpdate(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return state.ErrNotFound
	}

	if !outcome.StartedAt.IsZero() {
		_, err = db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET %s = ? WHERE %s = ?;`, tableName, ColumnStartedUnixMilli, ColumnID),
			outcome.StartedAt.UTC().UnixMilli(), id,
		)
	}
	return err
}

// Deletes the runs that started before the time.
func Purge(ctx context.Context, db *sql.DB, tableName string, before time.Time) (int, error) {
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s < ?;`, tableName, ColumnStartedUnixMilli)

	start := time.Now()
	rs, err := db.ExecContext(ctx, deleteQuery, before.UTC().UnixMilli())
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

func query(ctx context.Context, db *sql.DB, tableName string, clause string, args ...any) ([]state.Row, error) {
	selectQuery := fmt.Sprintf(`
SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s FROM %s %s;
`,
		ColumnID,
		ColumnCommandLine,
		ColumnStartedUnixMilli,
		ColumnFinished,
		ColumnPID,
		ColumnExitCode,
		ColumnSignal,
		ColumnTimedOut,
		ColumnCanceled,
		ColumnDurationMilli,
		ColumnStdoutBytes,
		ColumnStderrBytes,
		ColumnOutput,
		ColumnError,
		tableName,
		clause,
	)

	start := time.Now()
	rows, err := db.QueryContext(ctx, selectQuery, args...)
	pkgsqlite.RecordSelect(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []state.Row
	for rows.Next() {
		var (
			row            state.Row
			startedMilli   int64
			pid            sql.NullInt64
			exitCode       sql.NullInt64
			signal         sql.NullString
			durationMilli  sql.NullInt64
			stdoutBytes    sql.NullInt64
			stderrBytes    sql.NullInt64
			output, errMsg sql.NullString
		)
		if err := rows.Scan(
			&row.ID,
			&row.CommandLine,
			&startedMilli,
			&row.Finished,
			&pid,
			&exitCode,
			&signal,
			&row.Outcome.TimedOut,
			&row.Outcome.Canceled,
			&durationMilli,
			&stdoutBytes,
			&stderrBytes,
			&output,
			&errMsg,
		); err != nil {
			return nil, err
		}

		row.StartedAt = time.UnixMilli(startedMilli).UTC()
		row.Outcome.StartedAt = row.StartedAt
		row.Outcome.PID = int(pid.Int64)
		row.Outcome.ExitCode = int(exitCode.Int64)
		row.Outcome.Signal = signal.String
		row.Outcome.Duration = time.Duration(durationMilli.Int64) * time.Millisecond
		row.Outcome.StdoutBytes = int(stdoutBytes.Int64)
		row.Outcome.StderrBytes = int(stderrBytes.Int64)
		row.Outcome.Output = output.String
		row.Outcome.Error = errMsg.String
		runs = append(runs, row)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
