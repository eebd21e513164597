// Package repo is the SQLite result store. It is the system of record for
// trials: creates are atomic inserts, finalizes are compare-and-set updates
// keyed on the expected lifecycle state, and every lifecycle change appends
// an audit event in the same transaction.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sweep/internal/events"
	"sweep/internal/store"
	"sweep/internal/trial"
)

type Store struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{
		DB:     db,
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (s *Store) now() string {
	if s.Now != nil {
		return s.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func (s *Store) PutExperiment(ctx context.Context, exp store.Experiment) error {
	if exp.CreatedAt == "" {
		exp.CreatedAt = s.now()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO experiments(key,direction,strategy,seed,fingerprint,created_at) VALUES (?,?,?,?,?,?)`,
		exp.Key, string(exp.Direction), exp.Strategy, int64(exp.Seed), exp.Fingerprint, exp.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("experiment %s: %w", exp.Key, store.ErrDuplicate)
	}
	return err
}

func (s *Store) GetExperiment(ctx context.Context, key string) (store.Experiment, error) {
	var exp store.Experiment
	var direction string
	var seed int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT key,direction,strategy,seed,fingerprint,created_at FROM experiments WHERE key=?`, key).
		Scan(&exp.Key, &direction, &exp.Strategy, &seed, &exp.Fingerprint, &exp.CreatedAt)
	if err == sql.ErrNoRows {
		return store.Experiment{}, fmt.Errorf("experiment %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return store.Experiment{}, err
	}
	exp.Direction = trial.Direction(direction)
	exp.Seed = uint64(seed)
	return exp, nil
}

func (s *Store) PutTrial(ctx context.Context, t trial.Trial) (string, error) {
	values, err := json.Marshal(t.Values)
	if err != nil {
		return "", fmt.Errorf("marshal trial values: %w", err)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trials(id,experiment_key,values_json,state,objective,reason,created_at,completed_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.ExperimentKey, string(values), string(t.State), objectiveArg(t.Objective), nullable(t.Reason), t.CreatedAt, nullable(t.CompletedAt))
	if isUniqueViolation(err) {
		return "", fmt.Errorf("trial %s: %w", t.ID, store.ErrDuplicate)
	}
	if err != nil {
		return "", fmt.Errorf("insert trial: %w", err)
	}
	if err := s.Events.Append(ctx, tx, "trial.created", t.ExperimentKey, t.ID, events.EventPayload{"state": t.State}); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return t.ID, nil
}

const trialColumns = `id,experiment_key,values_json,state,objective,COALESCE(reason,''),created_at,COALESCE(completed_at,'')`

func scanTrial(scan func(dest ...any) error) (trial.Trial, error) {
	var t trial.Trial
	var values, state string
	var objective sql.NullFloat64
	if err := scan(&t.ID, &t.ExperimentKey, &values, &state, &objective, &t.Reason, &t.CreatedAt, &t.CompletedAt); err != nil {
		return t, err
	}
	t.State = trial.State(state)
	if objective.Valid {
		obj := objective.Float64
		t.Objective = &obj
	}
	if err := json.Unmarshal([]byte(values), &t.Values); err != nil {
		return t, fmt.Errorf("unmarshal trial values: %w", err)
	}
	return t, nil
}

func (s *Store) GetTrial(ctx context.Context, id string) (trial.Trial, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+trialColumns+` FROM trials WHERE id=?`, id)
	t, err := scanTrial(row.Scan)
	if err == sql.ErrNoRows {
		return trial.Trial{}, fmt.Errorf("trial %s: %w", id, store.ErrNotFound)
	}
	return t, err
}

func (s *Store) History(ctx context.Context, key string, states ...trial.State) ([]trial.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM trials WHERE experiment_key=?`
	args := []any{key}
	if len(states) > 0 {
		placeholders := make([]string, len(states))
		for i, st := range states {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND state IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY COALESCE(completed_at, created_at) ASC, created_at ASC, id ASC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []trial.Trial
	for rows.Next() {
		t, err := scanTrial(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTrial(ctx context.Context, id string, expect trial.State, upd store.Update) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE trials SET state=?, objective=?, reason=?, completed_at=? WHERE id=? AND state=?`,
		string(upd.State), objectiveArg(upd.Objective), nullable(upd.Reason), nullable(upd.CompletedAt), id, string(expect))
	if err != nil {
		return fmt.Errorf("update trial: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT state FROM trials WHERE id=?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("trial %s: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("trial %s is %s, expected %s: %w", id, current, expect, store.ErrConflict)
	}
	var key string
	if err := tx.QueryRowContext(ctx, `SELECT experiment_key FROM trials WHERE id=?`, id).Scan(&key); err != nil {
		return err
	}
	payload := events.EventPayload{"from": expect, "to": upd.State}
	if upd.Objective != nil {
		payload["objective"] = *upd.Objective
	}
	if upd.Reason != "" {
		payload["reason"] = upd.Reason
	}
	if err := s.Events.Append(ctx, tx, "trial."+string(upd.State), key, id, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Optimum(ctx context.Context, key string, dir trial.Direction) (trial.Trial, error) {
	order := "ASC"
	if dir == trial.Maximize {
		order = "DESC"
	}
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+trialColumns+` FROM trials WHERE experiment_key=? AND state=? ORDER BY objective `+order+`, completed_at ASC, created_at ASC, id ASC LIMIT 1`,
		key, string(trial.Complete))
	t, err := scanTrial(row.Scan)
	if err == sql.ErrNoRows {
		return trial.Trial{}, fmt.Errorf("experiment %s has no complete trials: %w", key, store.ErrNotFound)
	}
	return t, err
}

func objectiveArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
