// Package results stores per-run summaries in SQLite so fee sweeps can be
// compared across seeds.
package results

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/uhyunpark/dropmarket/pkg/app/sim"
)

// Row is one finished run
type Row struct {
	RunID        string  `db:"run_id"`
	FeeRate      float64 `db:"fee_rate"`
	Seed         int64   `db:"seed"`
	Steps        int64   `db:"steps"`
	Agents       int     `db:"agents"`
	Sales        int     `db:"sales"`
	Units        int64   `db:"units"`
	Gross        int64   `db:"gross"`
	Fees         int64   `db:"fees"`
	WeightedMean int64   `db:"weighted_mean"`
	MinPrice     int64   `db:"min_price"`
	MaxPrice     int64   `db:"max_price"`
	SelfTrades   int64   `db:"self_trade_skips"`
	Drops        int64   `db:"drops"`
	DurationMS   int64   `db:"duration_ms"`
	CreatedAt    int64   `db:"created_at"` // unix seconds
}

// NewRow flattens a run result
func NewRow(runID string, r sim.Result, at time.Time) Row {
	agents := 0
	for _, n := range r.Agents {
		agents += n
	}
	return Row{
		RunID:        runID,
		FeeRate:      r.FeeRate,
		Seed:         r.Seed,
		Steps:        int64(r.Steps),
		Agents:       agents,
		Sales:        r.Summary.Sales,
		Units:        r.Summary.Units,
		Gross:        r.Summary.Gross,
		Fees:         r.Summary.Fees,
		WeightedMean: r.Summary.WeightedMean,
		MinPrice:     r.Summary.MinPrice,
		MaxPrice:     r.Summary.MaxPrice,
		SelfTrades:   int64(r.Market.SelfTradeSkips),
		Drops:        r.Drops,
		DurationMS:   r.Duration.Milliseconds(),
		CreatedAt:    at.Unix(),
	}
}

// DB wraps a SQLite connection
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates the results database at path
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer; sweep workers share the handle
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		fee_rate REAL NOT NULL,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		sales INTEGER NOT NULL,
		units INTEGER NOT NULL,
		gross INTEGER NOT NULL,
		fees INTEGER NOT NULL,
		weighted_mean INTEGER NOT NULL,
		min_price INTEGER NOT NULL,
		max_price INTEGER NOT NULL,
		self_trade_skips INTEGER NOT NULL,
		drops INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_fee ON runs(fee_rate);
	`
	_, err := db.conn.Exec(schema)
	return err
}

const insertRun = `INSERT OR REPLACE INTO runs
	(run_id, fee_rate, seed, steps, agents, sales, units, gross, fees, weighted_mean,
	 min_price, max_price, self_trade_skips, drops, duration_ms, created_at)
	VALUES (:run_id, :fee_rate, :seed, :steps, :agents, :sales, :units, :gross, :fees, :weighted_mean,
	 :min_price, :max_price, :self_trade_skips, :drops, :duration_ms, :created_at)`

// InsertRun stores a row, replacing an earlier run with the same id
func (db *DB) InsertRun(r Row) error {
	if _, err := db.conn.NamedExec(insertRun, r); err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	return nil
}

// InsertRuns stores rows in one transaction
func (db *DB) InsertRuns(rows []Row) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rows {
		if _, err := tx.NamedExec(insertRun, r); err != nil {
			return fmt.Errorf("insert run %s: %w", r.RunID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns stored runs ordered by fee rate then seed. A non-nil
// feeRate restricts the list to that rate.
func (db *DB) ListRuns(feeRate *float64) ([]Row, error) {
	var rows []Row
	var err error
	if feeRate == nil {
		err = db.conn.Select(&rows, "SELECT * FROM runs ORDER BY fee_rate, seed, run_id")
	} else {
		err = db.conn.Select(&rows, "SELECT * FROM runs WHERE fee_rate = ? ORDER BY seed, run_id", *feeRate)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return rows, nil
}
