// Package events appends audit rows for trial lifecycle changes. Events are
// written in the same transaction as the change they describe, so the audit
// log never disagrees with the trial table.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Event is one audit row as read back by the CLI.
type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Type          string `json:"type"`
	ExperimentKey string `json:"experiment_key,omitempty"`
	TrialID       string `json:"trial_id,omitempty"`
	Payload       string `json:"payload_json"`
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, experimentKey, trialID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,experiment_key,trial_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, nullable(experimentKey), nullable(trialID), string(data))
	return err
}

// Tail returns the most recent events for an experiment, newest first.
func (w Writer) Tail(ctx context.Context, experimentKey string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := w.DB.QueryContext(ctx,
		`SELECT id,ts,type,COALESCE(experiment_key,''),COALESCE(trial_id,''),payload_json FROM events WHERE experiment_key=? ORDER BY id DESC LIMIT ?`,
		experimentKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ExperimentKey, &e.TrialID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
