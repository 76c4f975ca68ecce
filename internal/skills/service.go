package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/store"
)

var (
	ErrInvalidScore = errors.New("quality score must be between 1 and 10")
	ErrNotFound     = errors.New("skill not found")
)

// Service is the skill cache: reusable generated solutions, retrievable by
// semantic similarity. The relational store holds the skill bodies and
// bookkeeping; the vector index holds the embeddings.
type Service struct {
	store    *store.Store
	index    *Index
	embedder Embedder
	cfg      config.SkillsConfig
	log      *slog.Logger
}

func NewService(st *store.Store, index *Index, embedder Embedder, cfg config.SkillsConfig, log *slog.Logger) *Service {
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = 5
	}
	return &Service{store: st, index: index, embedder: embedder, cfg: cfg, log: log}
}

// Found is a cache hit: the stored skill plus how close it came to the query.
type Found struct {
	Skill      store.Skill `json:"skill"`
	Similarity float32     `json:"similarity"`
}

// SearchOptions tune a cache query. Zero values fall back to the
// configured defaults.
type SearchOptions struct {
	Threshold  float64
	Limit      int
	MinQuality float64
}

// Search returns the skills matching the query, ordered by descending
// similarity and capped at the limit. A match must strictly exceed the
// similarity threshold and meet the minimum quality score; a
// threshold-exact match is a miss. Skills are visible to their owner
// and, when saved without a user scope, to everyone.
func (s *Service) Search(ctx context.Context, userID, query string, opts SearchOptions) ([]Found, error) {
	if query == "" {
		return nil, nil
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = s.cfg.SimilarityThreshold
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.MaxMatches
	}

	matches, err := s.index.Query(ctx, query, limit, userID)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if userID != "" {
		shared, err := s.index.Query(ctx, query, limit, "")
		if err != nil {
			return nil, fmt.Errorf("query shared index: %w", err)
		}
		matches = append(matches, shared...)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })

	var found []Found
	for _, m := range matches {
		if len(found) >= limit {
			break
		}
		if float64(m.Similarity) <= threshold {
			break
		}
		sk, err := s.store.GetSkill(m.SkillID)
		if err != nil {
			return nil, fmt.Errorf("load skill %s: %w", m.SkillID, err)
		}
		if sk == nil {
			// Index entry outlived its row; skip it
			s.log.Warn("skill missing from store", "skill_id", m.SkillID)
			continue
		}
		if sk.QualityScore < opts.MinQuality {
			continue
		}
		found = append(found, Found{Skill: *sk, Similarity: m.Similarity})
	}
	return found, nil
}

// FindSimilar returns the single best match for the query at the
// configured threshold, or nil when nothing qualifies. The pipeline
// cache check uses this before spending model calls.
func (s *Service) FindSimilar(ctx context.Context, userID, query string, minQuality float64) (*Found, error) {
	found, err := s.Search(ctx, userID, query, SearchOptions{MinQuality: minQuality})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

// SaveInput describes a skill to persist. Description and Code are
// required; Name and Tags are derived when absent.
type SaveInput struct {
	UserID      string
	Name        string
	Description string
	Reasoning   string
	Code        string
	Files       []store.SkillFile
	Tags        []string
	Quality     float64
}

// Save stores a new skill and indexes its description.
func (s *Service) Save(ctx context.Context, in SaveInput) (*store.Skill, error) {
	if in.Description == "" || in.Code == "" {
		return nil, errors.New("description and code are required")
	}
	if in.Quality < 0 || in.Quality > 1 {
		return nil, errors.New("quality score must be between 0 and 1")
	}
	if in.Name == "" {
		in.Name = shortName(in.Description)
	}
	if len(in.Tags) == 0 {
		in.Tags = deriveTags(in.Name, in.Description)
	}

	embedding, err := s.embedder.Embed(ctx, in.Description)
	if err != nil {
		return nil, fmt.Errorf("embed description: %w", err)
	}

	sk := &store.Skill{
		ID:           uuid.New().String(),
		UserID:       in.UserID,
		Name:         in.Name,
		Description:  in.Description,
		Reasoning:    in.Reasoning,
		Code:         in.Code,
		Files:        in.Files,
		Tags:         in.Tags,
		QualityScore: in.Quality,
	}
	if err := s.store.SaveSkill(sk); err != nil {
		return nil, err
	}
	if err := s.index.Add(ctx, sk.ID, in.Description, embedding, in.UserID); err != nil {
		// Keep the row and the index consistent
		if derr := s.store.DeleteSkill(sk.ID); derr != nil {
			s.log.Error("rollback skill row", "skill_id", sk.ID, "error", derr)
		}
		return nil, err
	}

	s.log.Info("skill saved", "skill_id", sk.ID, "name", sk.Name, "tags", sk.Tags)
	return sk, nil
}

// RecordUse bumps a skill's usage counter after it served a request.
func (s *Service) RecordUse(_ context.Context, id string) error {
	if err := s.store.RecordSkillUse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// UpdateQuality applies a 1-10 rating, stored normalized to 0-1.
func (s *Service) UpdateQuality(_ context.Context, id string, score int) error {
	if score < 1 || score > 10 {
		return ErrInvalidScore
	}
	if err := s.store.UpdateSkillQuality(id, float64(score)/10); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Service) List(_ context.Context, userID string) ([]store.Skill, error) {
	return s.store.ListSkills(userID)
}

func (s *Service) Get(_ context.Context, id string) (*store.Skill, error) {
	return s.store.GetSkill(id)
}

// Delete removes a skill from both the store and the index.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteSkill(id); err != nil {
		return err
	}
	return s.index.Delete(ctx, id)
}
