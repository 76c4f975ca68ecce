package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Mission is a scheduled pipeline launch: run the referenced swarm with the
// stored input whenever the schedule fires.
type Mission struct {
	ID         string     `json:"id"`
	SwarmID    string     `json:"swarm_id"`
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule"`
	Input      string     `json:"input,omitempty"`
	Status     string     `json:"status"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

const missionColumns = `id, swarm_id, name, schedule, input, status, next_run_at, last_run_at, last_status, last_error, created_at`

func scanMission(sc scanner) (*Mission, error) {
	m := &Mission{}
	var lastStatus, lastError sql.NullString
	err := sc.Scan(&m.ID, &m.SwarmID, &m.Name, &m.Schedule, &m.Input, &m.Status,
		&m.NextRunAt, &m.LastRunAt, &lastStatus, &lastError, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.LastStatus = lastStatus.String
	m.LastError = lastError.String
	return m, nil
}

func (s *Store) SaveMission(m *Mission) error {
	_, err := s.db.Exec(`
		INSERT INTO missions (id, swarm_id, name, schedule, input, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			schedule = excluded.schedule,
			input = excluded.input,
			status = excluded.status,
			next_run_at = excluded.next_run_at`,
		m.ID, m.SwarmID, m.Name, m.Schedule, m.Input, m.Status, m.NextRunAt)
	if err != nil {
		return fmt.Errorf("save mission: %w", err)
	}
	return nil
}

func (s *Store) GetMission(id string) (*Mission, error) {
	row := s.db.QueryRow(`SELECT `+missionColumns+` FROM missions WHERE id = ?`, id)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	return m, nil
}

func (s *Store) ListMissions() ([]Mission, error) {
	rows, err := s.db.Query(`SELECT ` + missionColumns + ` FROM missions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var missions []Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

func (s *Store) GetDueMissions(now time.Time) ([]Mission, error) {
	rows, err := s.db.Query(`
		SELECT `+missionColumns+` FROM missions
		WHERE status = 'active' AND next_run_at <= ?
		ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("get due missions: %w", err)
	}
	defer rows.Close()

	var missions []Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

func (s *Store) UpdateMissionRun(id, lastStatus, lastError string, nextRunAt *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE missions
		SET last_run_at = CURRENT_TIMESTAMP, last_status = ?, last_error = ?, next_run_at = ?
		WHERE id = ?`, lastStatus, lastError, nextRunAt, id)
	return err
}

func (s *Store) UpdateMissionStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE missions SET status = ? WHERE id = ?`, status, id)
	return err
}

func (s *Store) DeleteMission(id string) error {
	_, err := s.db.Exec(`DELETE FROM missions WHERE id = ?`, id)
	return err
}
