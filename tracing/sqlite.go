// Package tracing records the requests of a simulation into a SQLite
// database.
package tracing

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"
	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/vmsim/timing/driver"
	"github.com/sarchlab/vmsim/timing/mem"
)

const defaultBatchSize = 100000

// Rows are stored one struct field per column. The db tag names the
// column.
type requestRow struct {
	ID         string `db:"id"`
	Kind       string `db:"kind"`
	VAddr      int64  `db:"vaddr"`
	PAddr      int64  `db:"paddr"`
	IssueTick  int64  `db:"issue_tick"`
	DoneTick   int64  `db:"done_tick"`
	TLBHit     bool   `db:"tlb_hit"`
	CacheHit   bool   `db:"cache_hit"`
	Writeback  bool   `db:"writeback"`
	MemLatency int64  `db:"mem_latency"`
}

type exitRow struct {
	StoppingTick int64  `db:"stopping_tick"`
	Cause        string `db:"cause"`
	Requests     int64  `db:"requests"`
}

// SQLiteRecorder is a driver hook that writes every completed request and
// the exit report into a SQLite database.
type SQLiteRecorder struct {
	*sql.DB
	requestStmt *sql.Stmt

	dbName    string
	batchSize int
	pending   []requestRow
	err       error
}

// NewSQLiteRecorder creates a recorder writing to path. An empty path
// creates a database with a unique name in the working directory.
func NewSQLiteRecorder(path string) *SQLiteRecorder {
	return &SQLiteRecorder{
		dbName:    path,
		batchSize: defaultBatchSize,
	}
}

// NewSQLiteRecorderWithDB creates a recorder using an open database.
func NewSQLiteRecorderWithDB(db *sql.DB) *SQLiteRecorder {
	return &SQLiteRecorder{
		DB:        db,
		batchSize: defaultBatchSize,
	}
}

// WithBatchSize sets the number of rows buffered before they are written.
func (r *SQLiteRecorder) WithBatchSize(n int) *SQLiteRecorder {
	if n > 0 {
		r.batchSize = n
	}

	return r
}

// Path returns the database file name, or an empty string if the recorder
// was given an open database.
func (r *SQLiteRecorder) Path() string {
	return r.dbName
}

// Init opens the database, creates the tables and registers a flush at
// program exit.
func (r *SQLiteRecorder) Init() error {
	if r.DB == nil {
		if r.dbName == "" {
			r.dbName = "vmsim_trace_" + xid.New().String() + ".sqlite3"
		}

		if _, err := os.Stat(r.dbName); err == nil {
			return fmt.Errorf("file %s already exists", r.dbName)
		}

		db, err := sql.Open("sqlite3", r.dbName)
		if err != nil {
			return fmt.Errorf("failed to open trace database: %w", err)
		}

		r.DB = db
	}

	if err := r.createTable("requests", requestRow{}); err != nil {
		return err
	}

	if err := r.createTable("exits", exitRow{}); err != nil {
		return err
	}

	stmt, err := r.Prepare(insertSQL("requests", requestRow{}))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	r.requestStmt = stmt

	atexit.Register(func() { _ = r.Flush() })

	return nil
}

func columnType(kind reflect.Kind) string {
	switch kind {
	case reflect.String:
		return "TEXT"
	case reflect.Float32, reflect.Float64:
		return "REAL"
	default:
		return "INTEGER"
	}
}

func (r *SQLiteRecorder) createTable(name string, sample any) error {
	fields := structs.Fields(sample)

	columns := make([]string, 0, len(fields))
	for _, f := range fields {
		columns = append(columns, f.Tag("db")+" "+columnType(f.Kind()))
	}

	query := "CREATE TABLE IF NOT EXISTS " + name +
		" (\n\t" + strings.Join(columns, ",\n\t") + "\n)"

	if _, err := r.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}

	return nil
}

func insertSQL(table string, sample any) string {
	marks := make([]string, len(structs.Names(sample)))
	for i := range marks {
		marks[i] = "?"
	}

	return "INSERT INTO " + table + " VALUES (" + strings.Join(marks, ", ") + ")"
}

// Func records completed requests and the exit report.
func (r *SQLiteRecorder) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case driver.HookPosRequestDone:
		req, ok := ctx.Item.(mem.Request)
		if !ok {
			return
		}
		detail, _ := ctx.Detail.(driver.RequestDetail)
		r.record(req, detail)
	case driver.HookPosStopped:
		report, ok := ctx.Item.(driver.ExitReport)
		if !ok {
			return
		}
		r.setErr(r.Flush())
		r.setErr(r.recordExit(report))
	}
}

func (r *SQLiteRecorder) record(req mem.Request, detail driver.RequestDetail) {
	r.pending = append(r.pending, requestRow{
		ID:         req.ID,
		Kind:       req.Kind.String(),
		VAddr:      int64(req.VAddr),
		PAddr:      int64(req.PAddr),
		IssueTick:  int64(req.IssueTick),
		DoneTick:   int64(req.CompletionTick),
		TLBHit:     detail.Translation.Hit,
		CacheHit:   detail.Access.Hit,
		Writeback:  detail.Access.Writeback,
		MemLatency: int64(detail.MemLatency),
	})

	if len(r.pending) >= r.batchSize {
		r.setErr(r.Flush())
	}
}

func (r *SQLiteRecorder) recordExit(report driver.ExitReport) error {
	row := exitRow{
		StoppingTick: int64(report.StoppingTick),
		Cause:        report.Cause,
		Requests:     int64(report.Requests),
	}

	_, err := r.Exec(insertSQL("exits", row), structs.Values(row)...)
	if err != nil {
		return fmt.Errorf("failed to record exit: %w", err)
	}

	return nil
}

// Flush writes all buffered rows in a single transaction.
func (r *SQLiteRecorder) Flush() error {
	if len(r.pending) == 0 || r.DB == nil {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt := tx.Stmt(r.requestStmt)
	for _, row := range r.pending {
		if _, err := stmt.Exec(structs.Values(row)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert request %s: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	r.pending = nil

	return nil
}

// Err returns the first error met while recording from the hook.
func (r *SQLiteRecorder) Err() error {
	return r.err
}

func (r *SQLiteRecorder) setErr(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

// Close flushes buffered rows and closes the database.
func (r *SQLiteRecorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}

	if r.requestStmt != nil {
		_ = r.requestStmt.Close()
	}

	return r.DB.Close()
}
