// Package store keeps a SQLite history of equalization runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pixel-equalizer/internal/chip"
	"pixel-equalizer/internal/equalize"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run describes one stored equalization run.
type Run struct {
	ID        string
	Modality  equalize.Modality
	CreatedAt time.Time
	Params    equalize.Params
	Source    string // scan file the run was computed from
	Chips     int
	Grid      chip.Grid
	Consensus float64 // NaN when the run had no usable chip
	Masked    int
	Ranged    int
}

// Store manages the run history database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		modality TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		source TEXT,
		chips INTEGER NOT NULL,
		grid_rows INTEGER NOT NULL,
		grid_cols INTEGER NOT NULL,
		consensus REAL,
		optima_json TEXT NOT NULL,
		masked INTEGER NOT NULL,
		ranged INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS pixels (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		chip INTEGER NOT NULL,
		row INTEGER NOT NULL,
		col INTEGER NOT NULL,
		setting INTEGER NOT NULL,
		range_flag INTEGER NOT NULL,
		mask_flag INTEGER NOT NULL,
		PRIMARY KEY (run_id, chip, row, col)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun records res under run. Missing ID and CreatedAt are filled in and
// the counters are derived from res. The stored run is returned.
func (s *Store) SaveRun(ctx context.Context, run Run, res *equalize.Result) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()
	run.Modality = res.Modality
	run.Chips = res.Chips()
	run.Grid = res.Grid
	run.Consensus = res.Consensus
	run.Masked, run.Ranged = res.Counts()

	params, err := json.Marshal(run.Params)
	if err != nil {
		return run, fmt.Errorf("failed to marshal params: %w", err)
	}
	optima, err := json.Marshal(res.ChipOptima)
	if err != nil {
		return run, fmt.Errorf("failed to marshal chip optima: %w", err)
	}
	consensus := sql.NullFloat64{Float64: run.Consensus, Valid: !math.IsNaN(run.Consensus)}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return run, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, modality, created_at, params_json, source, chips,
			grid_rows, grid_cols, consensus, optima_json, masked, ranged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Modality.String(), run.CreatedAt.UnixNano(), string(params), run.Source, run.Chips,
		run.Grid.Rows, run.Grid.Cols, consensus, string(optima), run.Masked, run.Ranged)
	if err != nil {
		return run, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pixels (run_id, chip, row, col, setting, range_flag, mask_flag)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return run, fmt.Errorf("failed to prepare pixel insert: %w", err)
	}
	defer stmt.Close()

	for c := range res.Settings {
		for i := range res.Settings[c] {
			for j := range res.Settings[c][i] {
				if _, err := stmt.ExecContext(ctx, run.ID, c, i, j, res.Settings[c][i][j],
					res.Range[c][i][j], res.Mask[c][i][j]); err != nil {
					return run, fmt.Errorf("failed to insert pixel: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return run, fmt.Errorf("failed to commit run: %w", err)
	}
	return run, nil
}

const runColumns = `id, modality, created_at, params_json, source, chips, grid_rows, grid_cols, consensus, masked, ranged`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		modality  string
		created   int64
		params    string
		source    sql.NullString
		consensus sql.NullFloat64
	)
	err := row.Scan(&run.ID, &modality, &created, &params, &source, &run.Chips,
		&run.Grid.Rows, &run.Grid.Cols, &consensus, &run.Masked, &run.Ranged)
	if err != nil {
		return run, err
	}
	if run.Modality, err = equalize.ParseModality(modality); err != nil {
		return run, err
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return run, fmt.Errorf("failed to parse params: %w", err)
	}
	run.CreatedAt = time.Unix(0, created).UTC()
	run.Source = source.String
	run.Consensus = math.NaN()
	if consensus.Valid {
		run.Consensus = consensus.Float64
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LoadRun returns a stored run and its reassembled result.
func (s *Store) LoadRun(ctx context.Context, id string) (Run, *equalize.Result, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return run, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return run, nil, fmt.Errorf("failed to load run: %w", err)
	}

	var optima string
	if err := s.db.QueryRowContext(ctx, `SELECT optima_json FROM runs WHERE id = ?`, id).Scan(&optima); err != nil {
		return run, nil, fmt.Errorf("failed to load chip optima: %w", err)
	}

	res := &equalize.Result{
		Modality:  run.Modality,
		Grid:      run.Grid,
		Settings:  make([][][]int32, run.Chips),
		Range:     make([][][]bool, run.Chips),
		Mask:      make([][][]bool, run.Chips),
		Consensus: run.Consensus,
	}
	if err := json.Unmarshal([]byte(optima), &res.ChipOptima); err != nil {
		return run, nil, fmt.Errorf("failed to parse chip optima: %w", err)
	}
	for c := 0; c < run.Chips; c++ {
		res.Settings[c] = make([][]int32, run.Grid.Rows)
		res.Range[c] = make([][]bool, run.Grid.Rows)
		res.Mask[c] = make([][]bool, run.Grid.Rows)
		for i := 0; i < run.Grid.Rows; i++ {
			res.Settings[c][i] = make([]int32, run.Grid.Cols)
			res.Range[c][i] = make([]bool, run.Grid.Cols)
			res.Mask[c][i] = make([]bool, run.Grid.Cols)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chip, row, col, setting, range_flag, mask_flag FROM pixels WHERE run_id = ?`, id)
	if err != nil {
		return run, nil, fmt.Errorf("failed to query pixels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c, i, j int
		var setting int32
		var ranged, masked bool
		if err := rows.Scan(&c, &i, &j, &setting, &ranged, &masked); err != nil {
			return run, nil, fmt.Errorf("failed to scan pixel: %w", err)
		}
		if c >= run.Chips || i >= run.Grid.Rows || j >= run.Grid.Cols {
			return run, nil, fmt.Errorf("pixel (%d, %d, %d) outside stored grid", c, i, j)
		}
		res.Settings[c][i][j] = setting
		res.Range[c][i][j] = ranged
		res.Mask[c][i][j] = masked
	}
	if err := rows.Err(); err != nil {
		return run, nil, err
	}
	return run, res, nil
}

// DeleteRun removes a run and its pixels.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pixels WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pixels: %w", err)
	}
	r, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}
