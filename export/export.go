// Package export copies the live contents of a store into a SQLite table so
// they can be inspected with ordinary SQL tooling.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/viant/bitcask/db/sqliteutil"
	"github.com/viant/bitcask/fingerprint"
	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// DefaultTable receives exported pairs when no table is configured.
const DefaultTable = "entries"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Source provides pairs in key order.
type Source interface {
	Fold(fn func(key, value []byte) error) error
}

// Options configures an Exporter.
type Options struct {
	Table string
	// BatchSize is the number of rows committed per transaction.
	BatchSize int
	Pragmas   sqliteutil.Pragmas
}

// Result describes one completed export.
type Result struct {
	Table    string
	Rows     int
	Bytes    int64
	Elapsed  time.Duration
	Exported time.Time
}

// Exporter writes pairs to a SQLite database.
type Exporter struct {
	db    *sql.DB
	table string
	batch int
}

// Open opens or creates the SQLite database at path.
func Open(path string, opts Options) (*Exporter, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if !tableName.MatchString(opts.Table) {
		return nil, fmt.Errorf("export: invalid table name %q", opts.Table)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.Pragmas == (sqliteutil.Pragmas{}) {
		opts.Pragmas = sqliteutil.Pragmas{WAL: true, BusyTimeoutMS: 5000, Synchronous: "NORMAL"}
	}
	db, err := sql.Open("sqlite", sqliteutil.DSN(path, opts.Pragmas))
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	return &Exporter{db: db, table: opts.Table, batch: opts.BatchSize}, nil
}

// EnsureSchema creates the entry and meta tables if missing.
func (e *Exporter) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + e.table + ` (
            key BLOB PRIMARY KEY,
            value BLOB NOT NULL,
            size INTEGER NOT NULL,
            hash INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS export_meta (
            tbl TEXT PRIMARY KEY,
            source TEXT,
            rows INTEGER NOT NULL,
            exported_at DATETIME NOT NULL
        );`,
	}
	for _, s := range stmts {
		if _, err := e.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("export: schema: %w", err)
		}
	}
	return nil
}

// Export replaces the table contents with every pair of src. Rows are
// committed in batches, so a failed export leaves the batches written so far.
func (e *Exporter) Export(ctx context.Context, src Source, source string) (*Result, error) {
	started := time.Now()
	if err := e.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	w := &batchWriter{ctx: ctx, db: e.db, table: e.table, limit: e.batch}
	if err := w.begin(); err != nil {
		return nil, err
	}
	if _, err := w.tx.ExecContext(ctx, `DELETE FROM `+e.table); err != nil {
		w.rollback()
		return nil, fmt.Errorf("export: clear %s: %w", e.table, err)
	}
	if err := src.Fold(w.insert); err != nil {
		w.rollback()
		return nil, err
	}
	if _, err := w.tx.ExecContext(ctx, `INSERT OR REPLACE INTO export_meta(tbl, source, rows, exported_at) VALUES(?, ?, ?, ?)`,
		e.table, source, w.rows, started.UTC()); err != nil {
		w.rollback()
		return nil, fmt.Errorf("export: meta: %w", err)
	}
	if err := w.commit(); err != nil {
		return nil, err
	}
	return &Result{Table: e.table, Rows: w.rows, Bytes: w.bytes, Elapsed: time.Since(started), Exported: started}, nil
}

// Get returns the exported value for key.
func (e *Exporter) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if key == nil {
		key = []byte{}
	}
	var value []byte
	err := e.db.QueryRowContext(ctx, `SELECT value FROM `+e.table+` WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("export: get: %w", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// Count returns the number of exported rows.
func (e *Exporter) Count(ctx context.Context) (int, error) {
	var n int
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+e.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("export: count: %w", err)
	}
	return n, nil
}

func (e *Exporter) Close() error { return e.db.Close() }

// batchWriter inserts rows and commits every limit rows.
type batchWriter struct {
	ctx   context.Context
	db    *sql.DB
	table string
	limit int
	tx    *sql.Tx
	stmt  *sql.Stmt
	rows  int
	bytes int64
	open  int
}

func (w *batchWriter) begin() error {
	tx, err := w.db.BeginTx(w.ctx, nil)
	if err != nil {
		return fmt.Errorf("export: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(w.ctx, `INSERT OR REPLACE INTO `+w.table+`(key, value, size, hash) VALUES(?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("export: prepare: %w", err)
	}
	w.tx, w.stmt, w.open = tx, stmt, 0
	return nil
}

func (w *batchWriter) insert(key, value []byte) error {
	hash, err := fingerprint.Sum64(value)
	if err != nil {
		return err
	}
	if key == nil {
		key = []byte{}
	}
	if value == nil {
		value = []byte{}
	}
	if _, err := w.stmt.ExecContext(w.ctx, key, value, len(value), int64(hash)); err != nil {
		return fmt.Errorf("export: insert %q: %w", key, err)
	}
	w.rows++
	w.open++
	w.bytes += int64(len(value))
	if w.open >= w.limit {
		if err := w.commit(); err != nil {
			return err
		}
		return w.begin()
	}
	return nil
}

func (w *batchWriter) commit() error {
	_ = w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("export: commit: %w", err)
	}
	return nil
}

func (w *batchWriter) rollback() {
	_ = w.stmt.Close()
	_ = w.tx.Rollback()
}
