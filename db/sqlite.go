package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned by GetTrainingRun for an unknown id.
var ErrRunNotFound = errors.New("training run not found")

const schema = `
CREATE TABLE IF NOT EXISTS training_runs (
    id TEXT PRIMARY KEY,
    model_name VARCHAR(50) NOT NULL,
    model_path TEXT NOT NULL,
    means_path TEXT NOT NULL,
    balancer VARCHAR(20) NOT NULL,
    features INTEGER NOT NULL,
    train_rows INTEGER NOT NULL,
    test_rows INTEGER NOT NULL,
    synthetic_rows INTEGER NOT NULL,
    dropped_rows INTEGER NOT NULL,
    auc REAL NOT NULL,
    params TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    trained_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS threshold_metrics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES training_runs(id) ON DELETE CASCADE,
    threshold REAL NOT NULL,
    accuracy REAL NOT NULL,
    precision REAL NOT NULL,
    recall REAL NOT NULL,
    f1 REAL NOT NULL,
    tn INTEGER NOT NULL,
    fp INTEGER NOT NULL,
    fn INTEGER NOT NULL,
    tp INTEGER NOT NULL,
    UNIQUE(run_id, threshold)
);
CREATE INDEX IF NOT EXISTS idx_training_runs_trained_at ON training_runs(trained_at);
`

// TrainingRun is one recorded execution of the trainer.
type TrainingRun struct {
	ID            string             `json:"id"`
	ModelName     string             `json:"model_name"`
	ModelPath     string             `json:"model_path"`
	MeansPath     string             `json:"means_path"`
	Balancer      string             `json:"balancer"`
	Features      int                `json:"features"`
	TrainRows     int                `json:"train_rows"`
	TestRows      int                `json:"test_rows"`
	SyntheticRows int                `json:"synthetic_rows"`
	DroppedRows   int                `json:"dropped_rows"`
	AUC           float64            `json:"auc"`
	Params        string             `json:"params"`
	Duration      time.Duration      `json:"duration"`
	TrainedAt     time.Time          `json:"trained_at"`
	Thresholds    []ThresholdMetrics `json:"thresholds,omitempty"`
}

// ThresholdMetrics holds positive-class scores at one operating threshold.
type ThresholdMetrics struct {
	Threshold float64 `json:"threshold"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	TN        int     `json:"tn"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	TP        int     `json:"tp"`
}

// Store records training runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTrainingRun stores run and its threshold sweep in one transaction. An
// empty ID is filled with a fresh UUID; the stored ID is returned.
func (s *Store) SaveTrainingRun(ctx context.Context, run TrainingRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO training_runs (
            id, model_name, model_path, means_path, balancer, features,
            train_rows, test_rows, synthetic_rows, dropped_rows, auc, params,
            duration_ms, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ModelName, run.ModelPath, run.MeansPath, run.Balancer, run.Features,
		run.TrainRows, run.TestRows, run.SyntheticRows, run.DroppedRows, run.AUC, run.Params,
		run.Duration.Milliseconds(), run.TrainedAt.UTC())
	if err != nil {
		tx.Rollback()
		return "", err
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO threshold_metrics (
            run_id, threshold, accuracy, precision, recall, f1, tn, fp, fn, tp
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return "", err
	}
	defer stmt.Close()
	for _, m := range run.Thresholds {
		if _, err := stmt.ExecContext(ctx, run.ID, m.Threshold, m.Accuracy, m.Precision, m.Recall, m.F1,
			m.TN, m.FP, m.FN, m.TP); err != nil {
			tx.Rollback()
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return run.ID, nil
}

// ListTrainingRuns returns the most recent runs first, without their sweeps.
func (s *Store) ListTrainingRuns(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, model_name, model_path, means_path, balancer, features,
               train_rows, test_rows, synthetic_rows, dropped_rows, auc, params,
               duration_ms, trained_at
        FROM training_runs
        ORDER BY trained_at DESC, id
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetTrainingRun loads one run with its threshold sweep, ordered by threshold.
func (s *Store) GetTrainingRun(ctx context.Context, id string) (*TrainingRun, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, model_name, model_path, means_path, balancer, features,
               train_rows, test_rows, synthetic_rows, dropped_rows, auc, params,
               duration_ms, trained_at
        FROM training_runs
        WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT threshold, accuracy, precision, recall, f1, tn, fp, fn, tp
        FROM threshold_metrics
        WHERE run_id = ?
        ORDER BY threshold`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m ThresholdMetrics
		if err := rows.Scan(&m.Threshold, &m.Accuracy, &m.Precision, &m.Recall, &m.F1,
			&m.TN, &m.FP, &m.FN, &m.TP); err != nil {
			return nil, err
		}
		run.Thresholds = append(run.Thresholds, m)
	}
	return &run, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (TrainingRun, error) {
	var run TrainingRun
	var durationMS int64
	err := row.Scan(&run.ID, &run.ModelName, &run.ModelPath, &run.MeansPath, &run.Balancer, &run.Features,
		&run.TrainRows, &run.TestRows, &run.SyntheticRows, &run.DroppedRows, &run.AUC, &run.Params,
		&durationMS, &run.TrainedAt)
	if err != nil {
		return run, err
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}
