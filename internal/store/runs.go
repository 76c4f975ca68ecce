package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PipelineRun is the journal entry for one pipeline execution. Files and
// Suspended are stored as JSON; a suspended run keeps its full suspension
// payload so it can be inspected after the fact.
type PipelineRun struct {
	ID              string          `json:"id"`
	SwarmID         string          `json:"swarm_id"`
	UserID          string          `json:"user_id,omitempty"`
	Input           string          `json:"input,omitempty"`
	Status          string          `json:"status"`
	Output          string          `json:"output,omitempty"`
	Files           json.RawMessage `json:"files,omitempty"`
	Error           string          `json:"error,omitempty"`
	RetrySuggestion string          `json:"retry_suggestion,omitempty"`
	Suspended       json.RawMessage `json:"suspended,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

const runColumns = `id, swarm_id, user_id, input, status, output, files, error, retry_suggestion, suspended, started_at, completed_at`

func scanRun(sc scanner) (*PipelineRun, error) {
	r := &PipelineRun{}
	var output, files, errMsg, suggestion, suspended sql.NullString
	err := sc.Scan(&r.ID, &r.SwarmID, &r.UserID, &r.Input, &r.Status,
		&output, &files, &errMsg, &suggestion, &suspended, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.Output = output.String
	r.Error = errMsg.String
	r.RetrySuggestion = suggestion.String
	if files.Valid && files.String != "" {
		r.Files = json.RawMessage(files.String)
	}
	if suspended.Valid && suspended.String != "" {
		r.Suspended = json.RawMessage(suspended.String)
	}
	return r, nil
}

func (s *Store) SaveRun(r *PipelineRun) error {
	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (id, swarm_id, user_id, input, status, output, files, error, retry_suggestion, suspended)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			output = excluded.output,
			files = excluded.files,
			error = excluded.error,
			retry_suggestion = excluded.retry_suggestion,
			suspended = excluded.suspended,
			completed_at = CASE WHEN excluded.status IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		r.ID, r.SwarmID, r.UserID, r.Input, r.Status,
		r.Output, nullableJSON(r.Files), r.Error, r.RetrySuggestion, nullableJSON(r.Suspended))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(id string) (*PipelineRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *Store) ListRuns(limit int) ([]PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) DeleteRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM pipeline_runs WHERE id = ?`, id)
	return err
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
