package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/zeu5/crm/types"

	_ "modernc.org/sqlite"
)

// SQLiteStore records finished runs and their per-episode results
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

var _ types.ResultStore = &SQLiteStore{}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// runs of a parallel comparison save concurrently
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, record types.RunRecord) (err error) {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	run := record.Run

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, experiment, run_index, episodes, test_steps)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			experiment = excluded.experiment,
			run_index = excluded.run_index,
			episodes = excluded.episodes,
			test_steps = excluded.test_steps
	`, record.ID, record.Experiment, record.Index, run.Episodes(), run.TestSteps)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM episodes WHERE run_id = ?`, record.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO episodes (run_id, episode, error, reward, steps)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < run.Episodes(); i++ {
		if _, err = stmt.ExecContext(ctx, record.ID, i, run.Errors[i], run.Rewards[i], run.Steps[i]); err != nil {
			return fmt.Errorf("episode %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (types.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return types.RunRecord{}, false, err
	}

	record := types.RunRecord{ID: id, Run: &types.Run{}}
	var episodes int
	err = db.QueryRowContext(ctx, `
		SELECT experiment, run_index, episodes, test_steps FROM runs WHERE id = ?
	`, id).Scan(&record.Experiment, &record.Index, &episodes, &record.Run.TestSteps)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RunRecord{}, false, nil
		}
		return types.RunRecord{}, false, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT error, reward, steps FROM episodes WHERE run_id = ? ORDER BY episode
	`, id)
	if err != nil {
		return types.RunRecord{}, false, err
	}
	defer rows.Close()

	run := record.Run
	run.Errors = make([]float64, 0, episodes)
	run.Rewards = make([]float64, 0, episodes)
	run.Steps = make([]int, 0, episodes)
	for rows.Next() {
		var (
			tdErr, reward float64
			steps         int
		)
		if err := rows.Scan(&tdErr, &reward, &steps); err != nil {
			return types.RunRecord{}, false, err
		}
		run.Errors = append(run.Errors, tdErr)
		run.Rewards = append(run.Rewards, reward)
		run.Steps = append(run.Steps, steps)
	}
	if err := rows.Err(); err != nil {
		return types.RunRecord{}, false, err
	}
	if run.Episodes() != episodes {
		return types.RunRecord{}, false, fmt.Errorf("run %s: stored %d of %d episodes", id, run.Episodes(), episodes)
	}
	return record, true, nil
}

// RunIDs lists the stored runs of an experiment by run index
func (s *SQLiteStore) RunIDs(ctx context.Context, experiment string) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM runs WHERE experiment = ? ORDER BY run_index, id
	`, experiment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			experiment TEXT NOT NULL,
			run_index INTEGER NOT NULL,
			episodes INTEGER NOT NULL,
			test_steps INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS episodes (
			run_id TEXT NOT NULL,
			episode INTEGER NOT NULL,
			error REAL NOT NULL,
			reward REAL NOT NULL,
			steps INTEGER NOT NULL,
			PRIMARY KEY (run_id, episode)
		);
	`)
	return err
}
