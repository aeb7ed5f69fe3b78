// Package storage keeps finished runs on disk: a SQLite catalog of run
// metadata and one directory of CSV files per run.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/packsim/internal/output"
)

var ErrNotFound = errors.New("storage: run not found")

type Store struct {
	dir string
	db  *sql.DB
}

// Run is the catalog entry of a stored run.
type Run struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"created_at"`
	Np        int                `json:"np"`
	Ns        int                `json:"ns"`
	Cells     int                `json:"cells"`
	Samples   int                `json:"samples"`
	Complete  bool               `json:"complete"`
	Error     string             `json:"error,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Config    string             `json:"config,omitempty"`
	Variables []string           `json:"variables"`
}

// Open creates the data directory if needed and opens its catalog.
func Open(dir string) (*Store, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	db, err := openCatalog(dir)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }
func (s *Store) Dir() string  { return s.dir }

func (s *Store) runDir(id string) string { return filepath.Join(s.dir, id) }

// Save writes the series files and the catalog entry. Name, Np, Ns and
// Config are taken from meta; everything else is derived from the series.
func (s *Store) Save(meta Run, series *output.Series) (*Run, error) {
	run := meta
	run.ID = uuid.NewString()
	run.CreatedAt = time.Now()
	run.Cells = series.CellCount
	run.Samples = series.Len()
	run.Complete = series.Complete
	run.Error = ""
	if series.Err != nil {
		run.Error = series.Err.Error()
	}
	run.Metrics = series.Metrics
	run.Variables = series.Names()

	dir := s.runDir(run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	if err := s.writeFiles(dir, series); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("write series: %w", err)
	}
	if err := s.insert(&run); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return &run, nil
}

func (s *Store) writeFiles(dir string, series *output.Series) error {
	if err := writePack(dir, series); err != nil {
		return err
	}
	for i, name := range series.CellNames {
		if err := writeVariable(filepath.Join(dir, variableFile(i, name)), series, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insert(run *Run) error {
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, name, created_at, np, ns, cells, samples, complete, error, metrics, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Name, run.CreatedAt.UnixMilli(), run.Np, run.Ns, run.Cells, run.Samples,
		run.Complete, nullString(run.Error), string(metrics), nullString(run.Config))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, name := range run.Variables {
		if _, err := tx.Exec(`
			INSERT INTO run_variables (run_id, position, name, file) VALUES (?, ?, ?, ?)
		`, run.ID, i, name, variableFile(i, name)); err != nil {
			return fmt.Errorf("insert variable: %w", err)
		}
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const runColumns = `id, name, created_at, np, ns, cells, samples, complete, error, metrics, config`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r        Run
		created  int64
		errText  sql.NullString
		metrics  sql.NullString
		cfg      sql.NullString
		complete bool
	)
	if err := row.Scan(&r.ID, &r.Name, &created, &r.Np, &r.Ns, &r.Cells, &r.Samples,
		&complete, &errText, &metrics, &cfg); err != nil {
		return nil, err
	}
	r.CreatedAt = time.UnixMilli(created)
	r.Complete = complete
	r.Error = errText.String
	r.Config = cfg.String
	if metrics.Valid && metrics.String != "" && metrics.String != "null" {
		if err := json.Unmarshal([]byte(metrics.String), &r.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return &r, nil
}

// List returns every stored run, newest first.
func (s *Store) List() ([]Run, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Variables, err = s.variables(runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) Load(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if r.Variables, err = s.variables(id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) variables(id string) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM run_variables WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list variables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// LoadSeries reads a stored run back into a Series.
func (s *Store) LoadSeries(id string) (*output.Series, error) {
	run, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	dir := s.runDir(id)
	series := &output.Series{
		Cells:     make(map[string][][]float64, len(run.Variables)),
		CellNames: run.Variables,
		CellCount: run.Cells,
		Metrics:   run.Metrics,
		Complete:  run.Complete,
	}
	if run.Error != "" {
		series.Err = errors.New(run.Error)
	}
	if err := readPack(dir, series); err != nil {
		return nil, err
	}
	for i, name := range run.Variables {
		m, err := readVariable(filepath.Join(dir, variableFile(i, name)), series.Len(), run.Cells)
		if err != nil {
			return nil, err
		}
		series.Cells[name] = m
	}
	return series, nil
}

// Delete removes the catalog entry and the run's files.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return os.RemoveAll(s.runDir(id))
}
