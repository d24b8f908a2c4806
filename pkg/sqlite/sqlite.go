// Package sqlite opens the SQLite3 database that keeps the run history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pexec/pexec/pkg/log"

	_ "github.com/mattn/go-sqlite3"
)

// InMemory is the file name that opens a private in-memory database.
const InMemory = ":memory:"

// Open opens the database at file.
// Writers get a single connection so that writes never contend.
func Open(file string, opts ...OpOption) (*sql.DB, error) {
	conns, err := BuildConnectionString(file, opts...)
	if err != nil {
		return nil, err
	}

	op := &Op{}
	_ = op.applyOpts(opts)

	db, err := sql.Open("sqlite3", conns)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w (%q)", err, conns)
	}

	if !op.readOnly {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		// an in-memory database is gone with its last connection
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}
	return db, nil
}

// BuildConnectionString returns the URI filename for the database.
// ref. https://www.sqlite.org/uri.html
// ref. https://github.com/mattn/go-sqlite3?tab=readme-ov-file#connection-string
func BuildConnectionString(file string, opts ...OpOption) (string, error) {
	op := &Op{}
	if err := op.applyOpts(opts); err != nil {
		return "", err
	}
	if file == "" {
		return "", errors.New("no database file")
	}

	// ref. https://www.sqlite.org/pragma.html#pragma_busy_timeout
	// ref. https://www.sqlite.org/pragma.html#pragma_journal_mode
	// ref. https://www.sqlite.org/pragma.html#pragma_synchronous
	conns := "file:" + file + "?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
	if op.readOnly {
		conns += "&mode=ro"
	} else {
		conns += "&_txlock=immediate"
	}
	if op.cache != "" {
		conns += "&cache=" + op.cache
	}
	return conns, nil
}

// ReadDBSize returns the size of the database in bytes.
func ReadDBSize(ctx context.Context, db *sql.DB) (uint64, error) {
	var pageCount uint64
	if err := db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.New("no page count")
		}
		return 0, err
	}

	var pageSize uint64
	if err := db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.New("no page size")
		}
		return 0, err
	}

	return pageCount * pageSize, nil
}

// TableExists returns true if the table exists in the database.
func TableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	start := time.Now()
	var found string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&found)
	RecordSelect(time.Since(start).Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return found != "", nil
}

// Compact runs VACUUM to give the free pages back to the file system.
func Compact(ctx context.Context, db *sql.DB) error {
	log.Logger.Infow("compacting state database")
	if _, err := db.ExecContext(ctx, "VACUUM;"); err != nil {
		return err
	}
	log.Logger.Infow("successfully compacted state database")
	return nil
}

// RunCompact compacts the database file and logs its size before and after.
func RunCompact(ctx context.Context, dbFile string) error {
	dbRW, err := Open(dbFile)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}
	defer dbRW.Close()

	before, err := ReadDBSize(ctx, dbRW)
	if err != nil {
		return fmt.Errorf("failed to read state file size: %w", err)
	}

	if err := Compact(ctx, dbRW); err != nil {
		return fmt.Errorf("failed to compact state file: %w", err)
	}

	after, err := ReadDBSize(ctx, dbRW)
	if err != nil {
		return fmt.Errorf("failed to read state file size: %w", err)
	}
	log.Logger.Infow("compacted state file", "before", humanize.Bytes(before), "after", humanize.Bytes(after))
	return nil
}
