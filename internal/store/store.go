package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id       TEXT PRIMARY KEY,
	fen          TEXT NOT NULL,
	config_json  TEXT NOT NULL,
	report_json  TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_tensors (
	run_id       TEXT NOT NULL,
	name         TEXT NOT NULL,
	shape_json   TEXT NOT NULL,
	data         BLOB NOT NULL,
	PRIMARY KEY (run_id, name),
	FOREIGN KEY (run_id) REFERENCES analysis_runs(run_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	stage        TEXT NOT NULL,
	decision     TEXT NOT NULL,
	reason       TEXT,
	detail_json  TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES analysis_runs(run_id)
);
`

// #endregion schema

// #region types

// RunRecord is one persisted analysis run. Config and report are stored as
// JSON so the schema survives artifact additions.
type RunRecord struct {
	RunID      string
	FEN        string
	ConfigJSON string
	ReportJSON string
	CreatedAt  time.Time
}

// TensorRecord is a raw float buffer attached to a run, kept so a run can
// be re-analyzed or exported as a fixture without the model.
type TensorRecord struct {
	Name  string
	Shape []int64
	Data  []float32
}

// #endregion types

// #region store-struct

// Store persists analysis runs and their tensors in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region record-run

// RecordRun inserts a run and its tensors atomically.
func (s *Store) RecordRun(rec RunRecord, tensors []TensorRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO analysis_runs (run_id, fen, config_json, report_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.RunID, rec.FEN, rec.ConfigJSON, rec.ReportJSON,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, tr := range tensors {
		shapeJSON, err := json.Marshal(tr.Shape)
		if err != nil {
			return fmt.Errorf("marshal shape: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO run_tensors (run_id, name, shape_json, data) VALUES (?, ?, ?, ?)`,
			rec.RunID, tr.Name, string(shapeJSON), encodeFloats(tr.Data),
		)
		if err != nil {
			return fmt.Errorf("insert tensor %s: %w", tr.Name, err)
		}
	}

	return tx.Commit()
}

// #endregion record-run

// #region get-run

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	var rec RunRecord
	var createdStr string
	err := s.db.QueryRow(
		`SELECT run_id, fen, config_json, report_json, created_at
		 FROM analysis_runs WHERE run_id = ?`, runID,
	).Scan(&rec.RunID, &rec.FEN, &rec.ConfigJSON, &rec.ReportJSON, &createdStr)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion get-run

// #region get-tensor

// GetTensor retrieves one of a run's tensors by name.
func (s *Store) GetTensor(runID, name string) (TensorRecord, error) {
	tr := TensorRecord{Name: name}
	var shapeJSON string
	var blob []byte
	err := s.db.QueryRow(
		`SELECT shape_json, data FROM run_tensors WHERE run_id = ? AND name = ?`,
		runID, name,
	).Scan(&shapeJSON, &blob)
	if err != nil {
		return TensorRecord{}, fmt.Errorf("get tensor %s/%s: %w", runID, name, err)
	}
	if err := json.Unmarshal([]byte(shapeJSON), &tr.Shape); err != nil {
		return TensorRecord{}, fmt.Errorf("unmarshal shape: %w", err)
	}
	tr.Data = decodeFloats(blob)
	return tr, nil
}

// #endregion get-tensor

// #region list-runs

// ListRuns returns the most recent runs.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, fen, config_json, report_json, created_at
		 FROM analysis_runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var createdStr string
		if err := rows.Scan(&rec.RunID, &rec.FEN, &rec.ConfigJSON, &rec.ReportJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-runs

// #region float-encoding
func encodeFloats(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloats(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// #endregion float-encoding
