// Package storage persists measurements, job bookkeeping, and
// optimizer traces in a local SQLite database.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"cmodel/internal/fit"
	"cmodel/internal/image"
	"cmodel/internal/shape"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store wraps SQLite-backed persistence.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS measure_jobs (
            id TEXT PRIMARY KEY,
            status TEXT NOT NULL,
            source TEXT,
            forced BOOLEAN DEFAULT FALSE,
            object_count INTEGER DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS measurements (
            object_id INTEGER PRIMARY KEY,
            job_id TEXT,
            forced BOOLEAN DEFAULT FALSE,
            flags INTEGER NOT NULL,
            flux REAL,
            flux_err REAL,
            frac_dev REAL,
            objective REAL,
            initial_flags INTEGER,
            initial_flux REAL,
            initial_flux_err REAL,
            initial_ixx REAL,
            initial_iyy REAL,
            initial_ixy REAL,
            initial_objective REAL,
            initial_time_ns INTEGER,
            initial_iterations INTEGER,
            exp_flags INTEGER,
            exp_flux REAL,
            exp_flux_err REAL,
            exp_ixx REAL,
            exp_iyy REAL,
            exp_ixy REAL,
            exp_objective REAL,
            exp_time_ns INTEGER,
            exp_iterations INTEGER,
            dev_flags INTEGER,
            dev_flux REAL,
            dev_flux_err REAL,
            dev_ixx REAL,
            dev_iyy REAL,
            dev_ixy REAL,
            dev_objective REAL,
            dev_time_ns INTEGER,
            dev_iterations INTEGER,
            initial_region_json TEXT,
            final_region_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS optimizer_trace (
            object_id INTEGER NOT NULL,
            stage TEXT NOT NULL,
            iteration INTEGER NOT NULL,
            objective REAL,
            trust_radius REAL,
            accepted BOOLEAN,
            params_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_job_id ON measurements(job_id);`,
		`CREATE INDEX IF NOT EXISTS idx_optimizer_trace_object ON optimizer_trace(object_id, stage);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// StageRecord holds one stage's persisted fields.
type StageRecord struct {
	Flags      uint8   `json:"flags"`
	Flux       float64 `json:"flux"`
	FluxErr    float64 `json:"flux_err"`
	Ixx        float64 `json:"ixx"`
	Iyy        float64 `json:"iyy"`
	Ixy        float64 `json:"ixy"`
	Objective  float64 `json:"objective"`
	TimeNS     int64   `json:"time_ns"`
	Iterations int     `json:"iterations"`
}

// MeasurementRecord is the persisted form of one object's result.
type MeasurementRecord struct {
	ObjectID  int64   `json:"object_id"`
	JobID     string  `json:"job_id"`
	Forced    bool    `json:"forced"`
	Flags     uint8   `json:"flags"`
	Flux      float64 `json:"flux"`
	FluxErr   float64 `json:"flux_err"`
	FracDev   float64 `json:"frac_dev"`
	Objective float64 `json:"objective"`

	Initial StageRecord `json:"initial"`
	Exp     StageRecord `json:"exp"`
	Dev     StageRecord `json:"dev"`

	InitialRegion []image.Span `json:"initial_region,omitempty"`
	FinalRegion   []image.Span `json:"final_region,omitempty"`
}

func stageRecord(sr fit.StageResult) StageRecord {
	return StageRecord{
		Flags:      sr.Flags,
		Flux:       sr.Flux,
		FluxErr:    sr.FluxErr,
		Ixx:        sr.Ellipse.Ixx,
		Iyy:        sr.Ellipse.Iyy,
		Ixy:        sr.Ellipse.Ixy,
		Objective:  sr.Objective,
		TimeNS:     sr.Time.Nanoseconds(),
		Iterations: sr.Iterations,
	}
}

func (r StageRecord) stageResult() fit.StageResult {
	return fit.StageResult{
		Flags:      r.Flags,
		Flux:       r.Flux,
		FluxErr:    r.FluxErr,
		Ellipse:    shape.Quadrupole{Ixx: r.Ixx, Iyy: r.Iyy, Ixy: r.Ixy},
		Objective:  r.Objective,
		Time:       time.Duration(r.TimeNS),
		Iterations: r.Iterations,
	}
}

// RecordFromResult maps an aggregate fit result onto the persisted
// layout.
func RecordFromResult(objectID int64, jobID string, forced bool, res fit.Result) MeasurementRecord {
	rec := MeasurementRecord{
		ObjectID:  objectID,
		JobID:     jobID,
		Forced:    forced,
		Flags:     res.Flags,
		Flux:      res.Flux,
		FluxErr:   res.FluxErr,
		FracDev:   res.FracDev,
		Objective: res.Objective,
		Initial:   stageRecord(res.Initial),
		Exp:       stageRecord(res.Exp),
		Dev:       stageRecord(res.Dev),
	}
	if res.InitialRegion != nil {
		rec.InitialRegion = res.InitialRegion.Spans
	}
	if res.FinalRegion != nil {
		rec.FinalRegion = res.FinalRegion.Spans
	}
	return rec
}

// Result reconstructs the aggregate fit result, primarily so a stored
// measurement can serve as a forced-photometry reference.
func (r MeasurementRecord) Result() fit.Result {
	res := fit.Result{
		Flux:      r.Flux,
		FluxErr:   r.FluxErr,
		FracDev:   r.FracDev,
		Objective: r.Objective,
		Flags:     r.Flags,
		Initial:   r.Initial.stageResult(),
		Exp:       r.Exp.stageResult(),
		Dev:       r.Dev.stageResult(),
	}
	if len(r.InitialRegion) > 0 {
		res.InitialRegion = image.NewFootprint(r.InitialRegion)
	}
	if len(r.FinalRegion) > 0 {
		res.FinalRegion = image.NewFootprint(r.FinalRegion)
	}
	return res
}

// WriteMeasurement inserts or replaces one object's measurement.
func (s *Store) WriteMeasurement(rec MeasurementRecord) error {
	if s == nil {
		return nil
	}
	initRegion, err := json.Marshal(rec.InitialRegion)
	if err != nil {
		return err
	}
	finalRegion, err := json.Marshal(rec.FinalRegion)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`INSERT OR REPLACE INTO measurements (
            object_id, job_id, forced, flags, flux, flux_err, frac_dev, objective,
            initial_flags, initial_flux, initial_flux_err, initial_ixx, initial_iyy, initial_ixy, initial_objective, initial_time_ns, initial_iterations,
            exp_flags, exp_flux, exp_flux_err, exp_ixx, exp_iyy, exp_ixy, exp_objective, exp_time_ns, exp_iterations,
            dev_flags, dev_flux, dev_flux_err, dev_ixx, dev_iyy, dev_ixy, dev_objective, dev_time_ns, dev_iterations,
            initial_region_json, final_region_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ObjectID, rec.JobID, rec.Forced, rec.Flags, rec.Flux, rec.FluxErr, rec.FracDev, rec.Objective,
		rec.Initial.Flags, rec.Initial.Flux, rec.Initial.FluxErr, rec.Initial.Ixx, rec.Initial.Iyy, rec.Initial.Ixy, rec.Initial.Objective, rec.Initial.TimeNS, rec.Initial.Iterations,
		rec.Exp.Flags, rec.Exp.Flux, rec.Exp.FluxErr, rec.Exp.Ixx, rec.Exp.Iyy, rec.Exp.Ixy, rec.Exp.Objective, rec.Exp.TimeNS, rec.Exp.Iterations,
		rec.Dev.Flags, rec.Dev.Flux, rec.Dev.FluxErr, rec.Dev.Ixx, rec.Dev.Iyy, rec.Dev.Ixy, rec.Dev.Objective, rec.Dev.TimeNS, rec.Dev.Iterations,
		string(initRegion), string(finalRegion))
	return err
}

func scanMeasurement(row interface {
	Scan(dest ...any) error
}) (MeasurementRecord, error) {
	var rec MeasurementRecord
	var initRegion, finalRegion string
	err := row.Scan(
		&rec.ObjectID, &rec.JobID, &rec.Forced, &rec.Flags, &rec.Flux, &rec.FluxErr, &rec.FracDev, &rec.Objective,
		&rec.Initial.Flags, &rec.Initial.Flux, &rec.Initial.FluxErr, &rec.Initial.Ixx, &rec.Initial.Iyy, &rec.Initial.Ixy, &rec.Initial.Objective, &rec.Initial.TimeNS, &rec.Initial.Iterations,
		&rec.Exp.Flags, &rec.Exp.Flux, &rec.Exp.FluxErr, &rec.Exp.Ixx, &rec.Exp.Iyy, &rec.Exp.Ixy, &rec.Exp.Objective, &rec.Exp.TimeNS, &rec.Exp.Iterations,
		&rec.Dev.Flags, &rec.Dev.Flux, &rec.Dev.FluxErr, &rec.Dev.Ixx, &rec.Dev.Iyy, &rec.Dev.Ixy, &rec.Dev.Objective, &rec.Dev.TimeNS, &rec.Dev.Iterations,
		&initRegion, &finalRegion)
	if err != nil {
		return rec, err
	}
	if initRegion != "" {
		if err := json.Unmarshal([]byte(initRegion), &rec.InitialRegion); err != nil {
			return rec, err
		}
	}
	if finalRegion != "" {
		if err := json.Unmarshal([]byte(finalRegion), &rec.FinalRegion); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

const measurementColumns = `object_id, job_id, forced, flags, flux, flux_err, frac_dev, objective,
            initial_flags, initial_flux, initial_flux_err, initial_ixx, initial_iyy, initial_ixy, initial_objective, initial_time_ns, initial_iterations,
            exp_flags, exp_flux, exp_flux_err, exp_ixx, exp_iyy, exp_ixy, exp_objective, exp_time_ns, exp_iterations,
            dev_flags, dev_flux, dev_flux_err, dev_ixx, dev_iyy, dev_ixy, dev_objective, dev_time_ns, dev_iterations,
            initial_region_json, final_region_json`

// GetMeasurement fetches one object's measurement.
func (s *Store) GetMeasurement(objectID int64) (MeasurementRecord, error) {
	row := s.DB.QueryRow(`SELECT `+measurementColumns+` FROM measurements WHERE object_id = ?;`, objectID)
	rec, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

// RecentMeasurements lists the most recently written measurements.
func (s *Store) RecentMeasurements(limit int) ([]MeasurementRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(`SELECT `+measurementColumns+` FROM measurements ORDER BY created_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MeasurementRecord
	for rows.Next() {
		rec, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TraceRecord is one persisted optimizer iteration.
type TraceRecord struct {
	ObjectID    int64     `json:"object_id"`
	Stage       string    `json:"stage"`
	Iteration   int       `json:"iteration"`
	Objective   float64   `json:"objective"`
	TrustRadius float64   `json:"trust_radius"`
	Accepted    bool      `json:"accepted"`
	Parameters  []float64 `json:"parameters"`
}

// WriteTrace persists a stage's optimizer history for one object.
func (s *Store) WriteTrace(objectID int64, stage string, history []TraceRecord) error {
	if s == nil || len(history) == 0 {
		return nil
	}
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM optimizer_trace WHERE object_id = ? AND stage = ?;`, objectID, stage); err != nil {
		return err
	}
	for _, it := range history {
		params, err := json.Marshal(it.Parameters)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO optimizer_trace (object_id, stage, iteration, objective, trust_radius, accepted, params_json) VALUES (?, ?, ?, ?, ?, ?, ?);`,
			objectID, stage, it.Iteration, it.Objective, it.TrustRadius, it.Accepted, string(params)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Trace fetches one object's persisted optimizer iterations for a
// stage, in order.
func (s *Store) Trace(objectID int64, stage string) ([]TraceRecord, error) {
	rows, err := s.DB.Query(`SELECT object_id, stage, iteration, objective, trust_radius, accepted, params_json FROM optimizer_trace WHERE object_id = ? AND stage = ? ORDER BY iteration;`, objectID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TraceRecord
	for rows.Next() {
		var rec TraceRecord
		var params string
		if err := rows.Scan(&rec.ObjectID, &rec.Stage, &rec.Iteration, &rec.Objective, &rec.TrustRadius, &rec.Accepted, &params); err != nil {
			return nil, err
		}
		if params != "" {
			if err := json.Unmarshal([]byte(params), &rec.Parameters); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// JobRecord captures persisted job info.
type JobRecord struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Source      string     `json:"source"`
	Forced      bool       `json:"forced"`
	ObjectCount int        `json:"object_count"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RecordJobQueued inserts a pending job.
func (s *Store) RecordJobQueued(rec JobRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO measure_jobs (id, status, source, forced) VALUES (?, ?, ?, ?);`,
		rec.ID, rec.Status, rec.Source, rec.Forced)
	return err
}

// RecordJobStart marks a job as running.
func (s *Store) RecordJobStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE measure_jobs SET status = 'running', started_at = CURRENT_TIMESTAMP WHERE id = ?;`, id)
	return err
}

// RecordJobResult records terminal job state.
func (s *Store) RecordJobResult(id, status string, objectCount int, errMsg string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE measure_jobs SET status = ?, object_count = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?;`,
		status, objectCount, errMsg, id)
	return err
}

// RecentJobs lists the most recent jobs.
func (s *Store) RecentJobs(limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(`SELECT id, status, source, forced, object_count, COALESCE(error_message, ''), created_at, started_at, completed_at FROM measure_jobs ORDER BY created_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.Source, &rec.Forced, &rec.ObjectCount, &rec.Error, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
