package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Skill holds the durable half of a cached skill. The embedding lives in
// the vector index; this row carries everything else.
type Skill struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id,omitempty"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Reasoning    string      `json:"reasoning,omitempty"`
	Code         string      `json:"code"`
	Files        []SkillFile `json:"files,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
	QualityScore float64     `json:"quality_score"`
	UsageCount   int         `json:"usage_count"`
	LastUsedAt   *time.Time  `json:"last_used_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// SkillFile is one file of a skill's solution beyond the main code body.
type SkillFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

const skillColumns = `id, user_id, name, description, reasoning, code, files, tags, quality_score, usage_count, last_used_at, created_at, updated_at`

func scanSkill(sc scanner) (*Skill, error) {
	sk := &Skill{}
	var files, tags sql.NullString
	err := sc.Scan(&sk.ID, &sk.UserID, &sk.Name, &sk.Description, &sk.Reasoning, &sk.Code,
		&files, &tags, &sk.QualityScore, &sk.UsageCount, &sk.LastUsedAt, &sk.CreatedAt, &sk.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if files.Valid && files.String != "" {
		if err := json.Unmarshal([]byte(files.String), &sk.Files); err != nil {
			return nil, fmt.Errorf("decode files: %w", err)
		}
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &sk.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return sk, nil
}

func (s *Store) SaveSkill(sk *Skill) error {
	files, err := json.Marshal(sk.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	tags, err := json.Marshal(sk.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO skills (id, user_id, name, description, reasoning, code, files, tags, quality_score, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			reasoning = excluded.reasoning,
			code = excluded.code,
			files = excluded.files,
			tags = excluded.tags,
			quality_score = excluded.quality_score,
			updated_at = CURRENT_TIMESTAMP`,
		sk.ID, sk.UserID, sk.Name, sk.Description, sk.Reasoning, sk.Code,
		string(files), string(tags), sk.QualityScore, sk.UsageCount)
	if err != nil {
		return fmt.Errorf("save skill: %w", err)
	}
	return nil
}

func (s *Store) GetSkill(id string) (*Skill, error) {
	row := s.db.QueryRow(`SELECT `+skillColumns+` FROM skills WHERE id = ?`, id)
	sk, err := scanSkill(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return sk, nil
}

// ListSkills returns skills visible to a user. An empty userID lists the
// shared (unscoped) skills only.
func (s *Store) ListSkills(userID string) ([]Skill, error) {
	rows, err := s.db.Query(`
		SELECT `+skillColumns+` FROM skills
		WHERE user_id = ? OR user_id = ''
		ORDER BY quality_score DESC, usage_count DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var skills []Skill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		skills = append(skills, *sk)
	}
	return skills, rows.Err()
}

// RecordSkillUse bumps the usage counter and the last-used timestamp.
func (s *Store) RecordSkillUse(id string) error {
	res, err := s.db.Exec(`
		UPDATE skills
		SET usage_count = usage_count + 1, last_used_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("record skill use: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateSkillQuality(id string, score float64) error {
	res, err := s.db.Exec(`
		UPDATE skills SET quality_score = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("update skill quality: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteSkill(id string) error {
	_, err := s.db.Exec(`DELETE FROM skills WHERE id = ?`, id)
	return err
}
