// Package sqlite provides the SQLite audit ledger of pipeline runs
package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Timestamp format for RunTable (RFC 3339, UTC)
const timeFormat = time.RFC3339

// Run is one processed input file
type Run struct {
	RunID      string
	Input      string
	HeavyWater string
	Output     string
	Strategy   string
	Status     string
	Error      string
	Peptides   int
	Affected   int
	EngineRuns int
	StartedAt  time.Time
	FinishedAt time.Time
	Omissions  []Omission
}

// Omission is the set of sample columns left out for one peptide
type Omission struct {
	Peptide        string
	Columns        []int
	SamplesOmitted int
}

// Writer records runs into an SQLite database. It is safe for concurrent use.
type Writer struct {
	mu           sync.Mutex
	db           *sql.DB
	path         string
	runStmt      *sql.Stmt
	omissionStmt *sql.Stmt
}

// NewWriter opens (or creates) the ledger at path
func NewWriter(path string) (*Writer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	w := &Writer{
		db:   db,
		path: path,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the ledger schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS RunTable (
		RunId TEXT PRIMARY KEY,
		Input TEXT NOT NULL,
		HeavyWater TEXT,
		Output TEXT,
		Strategy TEXT,
		Status TEXT NOT NULL,
		Error TEXT,
		Peptides INTEGER,
		Affected INTEGER,
		EngineRuns INTEGER,
		StartedAt TEXT,
		FinishedAt TEXT
	);

	CREATE TABLE IF NOT EXISTS OmissionTable (
		RunId TEXT REFERENCES RunTable(RunId),
		Peptide TEXT NOT NULL,
		Columns TEXT,
		SamplesOmitted INTEGER
	);

	CREATE INDEX IF NOT EXISTS OmissionRunIndex ON OmissionTable(RunId);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares the insert statements
func (w *Writer) prepareStatements() error {
	var err error

	w.runStmt, err = w.db.Prepare(`
		INSERT OR REPLACE INTO RunTable (
			RunId, Input, HeavyWater, Output, Strategy, Status, Error,
			Peptides, Affected, EngineRuns, StartedAt, FinishedAt
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare run statement: %w", err)
	}

	w.omissionStmt, err = w.db.Prepare(`
		INSERT INTO OmissionTable (RunId, Peptide, Columns, SamplesOmitted)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare omission statement: %w", err)
	}

	return nil
}

// WriteRun records a run and its omissions in one transaction
func (w *Writer) WriteRun(run *Run) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Stmt(w.runStmt).Exec(
		run.RunID,
		run.Input,
		run.HeavyWater,
		run.Output,
		run.Strategy,
		run.Status,
		run.Error,
		run.Peptides,
		run.Affected,
		run.EngineRuns,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	// A rewritten run replaces its omissions
	if _, err := tx.Exec(`DELETE FROM OmissionTable WHERE RunId = ?`, run.RunID); err != nil {
		return fmt.Errorf("failed to clear omissions: %w", err)
	}

	stmt := tx.Stmt(w.omissionStmt)
	for _, o := range run.Omissions {
		if _, err := stmt.Exec(run.RunID, o.Peptide, encodeColumns(o.Columns), o.SamplesOmitted); err != nil {
			return fmt.Errorf("failed to insert omission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit of 0 returns all runs.
func (w *Writer) Runs(limit int) ([]Run, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	query := `
		SELECT RunId, Input, HeavyWater, Output, Strategy, Status, Error,
			Peptides, Affected, EngineRuns, StartedAt, FinishedAt
		FROM RunTable ORDER BY StartedAt DESC, RunId`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := w.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var heavyWater, output, strategy, errText, started, finished sql.NullString
		var peptides, affected, engineRuns sql.NullInt64
		if err := rows.Scan(
			&r.RunID, &r.Input, &heavyWater, &output, &strategy, &r.Status, &errText,
			&peptides, &affected, &engineRuns, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.HeavyWater = heavyWater.String
		r.Output = output.String
		r.Strategy = strategy.String
		r.Error = errText.String
		r.Peptides = int(peptides.Int64)
		r.Affected = int(affected.Int64)
		r.EngineRuns = int(engineRuns.Int64)
		r.StartedAt = parseTime(started.String)
		r.FinishedAt = parseTime(finished.String)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// Omissions returns the omissions recorded for a run, ordered by peptide
func (w *Writer) Omissions(runID string) ([]Omission, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.db.Query(`
		SELECT Peptide, Columns, SamplesOmitted FROM OmissionTable
		WHERE RunId = ? ORDER BY Peptide, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query omissions: %w", err)
	}
	defer rows.Close()

	var omissions []Omission
	for rows.Next() {
		var o Omission
		var columns sql.NullString
		if err := rows.Scan(&o.Peptide, &columns, &o.SamplesOmitted); err != nil {
			return nil, fmt.Errorf("failed to scan omission: %w", err)
		}
		if o.Columns, err = decodeColumns(columns.String); err != nil {
			return nil, err
		}
		omissions = append(omissions, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read omissions: %w", err)
	}
	return omissions, nil
}

// Path returns the database file path
func (w *Writer) Path() string {
	return w.path
}

// Close closes the prepared statements and the database
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.runStmt != nil {
		w.runStmt.Close()
	}
	if w.omissionStmt != nil {
		w.omissionStmt.Close()
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// encodeColumns stores column offsets as a space-separated list
func encodeColumns(columns []int) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, " ")
}

func decodeColumns(s string) ([]int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	columns := make([]int, len(fields))
	for i, f := range fields {
		c, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid column list %q: %w", s, err)
		}
		columns[i] = c
	}
	return columns, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
