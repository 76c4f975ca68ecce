package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SwarmDef is a persisted swarm blueprint. Agents is the JSON-encoded
// agent list as submitted, kept opaque at this layer.
type SwarmDef struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Mission   string          `json:"mission"`
	Agents    json.RawMessage `json:"agents"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const swarmColumns = `id, name, mission, agents, created_at, updated_at`

func scanSwarmDef(sc scanner) (*SwarmDef, error) {
	d := &SwarmDef{}
	var agents string
	if err := sc.Scan(&d.ID, &d.Name, &d.Mission, &agents, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Agents = json.RawMessage(agents)
	return d, nil
}

func (s *Store) SaveSwarm(d *SwarmDef) error {
	_, err := s.db.Exec(`
		INSERT INTO swarms (id, name, mission, agents)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mission = excluded.mission,
			agents = excluded.agents,
			updated_at = CURRENT_TIMESTAMP`,
		d.ID, d.Name, d.Mission, string(d.Agents))
	if err != nil {
		return fmt.Errorf("save swarm: %w", err)
	}
	return nil
}

func (s *Store) GetSwarm(id string) (*SwarmDef, error) {
	row := s.db.QueryRow(`SELECT `+swarmColumns+` FROM swarms WHERE id = ?`, id)
	d, err := scanSwarmDef(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get swarm: %w", err)
	}
	return d, nil
}

func (s *Store) ListSwarms() ([]SwarmDef, error) {
	rows, err := s.db.Query(`SELECT ` + swarmColumns + ` FROM swarms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list swarms: %w", err)
	}
	defer rows.Close()

	var defs []SwarmDef
	for rows.Next() {
		d, err := scanSwarmDef(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swarm: %w", err)
		}
		defs = append(defs, *d)
	}
	return defs, rows.Err()
}

func (s *Store) DeleteSwarm(id string) error {
	_, err := s.db.Exec(`DELETE FROM swarms WHERE id = ?`, id)
	return err
}
