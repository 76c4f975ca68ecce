package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/eventbus"
	"github.com/appforge-ai/appforge/internal/model"
	"github.com/appforge-ai/appforge/internal/pipeline"
	"github.com/appforge-ai/appforge/internal/skills"
	"github.com/appforge-ai/appforge/internal/store"
	"github.com/appforge-ai/appforge/internal/swarm"
)

// Notifier receives run lifecycle notifications for outbound channels.
type Notifier interface {
	RunFinished(ctx context.Context, run *store.PipelineRun)
}

// Orchestrator ties the pipeline to its surroundings: the skill cache in
// front, the run journal behind, events on the bus, and notifications out.
type Orchestrator struct {
	store    *store.Store
	skills   *skills.Service
	client   model.Client
	searcher pipeline.Searcher
	bus      *eventbus.Client
	notifier Notifier
	cfg      config.PipelineConfig
	log      *slog.Logger
}

func New(st *store.Store, sk *skills.Service, client model.Client, searcher pipeline.Searcher, bus *eventbus.Client, notifier Notifier, cfg config.PipelineConfig, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		skills:   sk,
		client:   client,
		searcher: searcher,
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// StartRequest launches one pipeline run.
type StartRequest struct {
	Swarm      swarm.Swarm `json:"swarm"`
	Input      string      `json:"input,omitempty"`
	UserID     string      `json:"userId,omitempty"`
	MinQuality float64     `json:"minQuality,omitempty"`
	SkipCache  bool        `json:"skipCache,omitempty"`
}

// StartResult is the synchronous answer to a start or resume call. Exactly
// one of CachedSkill or Result carries the payload.
type StartResult struct {
	RunID       string           `json:"runId"`
	CachedSkill *skills.Found    `json:"cachedSkill,omitempty"`
	Result      *pipeline.Result `json:"result,omitempty"`
}

// Start checks the skill cache, then runs the pipeline on a miss. Cache
// trouble is logged and ignored; it never blocks a run.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if err := swarm.Validate(req.Swarm); err != nil {
		return nil, err
	}

	runID := uuid.New().String()

	if !req.SkipCache {
		if hit := o.checkCache(ctx, runID, req); hit != nil {
			return hit, nil
		}
	}

	run := &store.PipelineRun{
		ID:      runID,
		SwarmID: req.Swarm.ID,
		UserID:  req.UserID,
		Input:   req.Input,
		Status:  "running",
	}
	if err := o.store.SaveRun(run); err != nil {
		return nil, err
	}
	o.publishEvent(eventbus.TopicRunStarted(runID), "run_started", map[string]any{
		"swarm_id": req.Swarm.ID,
		"mission":  req.Swarm.Mission,
	})

	exec := pipeline.NewExecutor(o.client, o.searcher, o.cfg)
	res := exec.Run(ctx, req.Swarm, req.Input)

	o.record(ctx, run, &res)
	return &StartResult{RunID: runID, Result: &res}, nil
}

// Resume continues a suspended run from client feedback. The suspended
// state arrives over the wire; nothing about the run is held in memory
// between the calls. An empty runID journals the continuation as a new
// entry.
func (o *Orchestrator) Resume(ctx context.Context, runID string, susp *pipeline.SuspendedExecution, feedback pipeline.Feedback) (*StartResult, error) {
	if runID == "" {
		runID = uuid.New().String()
	}

	run := &store.PipelineRun{
		ID:     runID,
		Status: "running",
		Input:  "",
	}
	if susp != nil {
		run.SwarmID = susp.SwarmID
		run.Input = susp.Input
	}
	if err := o.store.SaveRun(run); err != nil {
		return nil, err
	}
	o.publishEvent(eventbus.TopicRunResumed(runID), "run_resumed", map[string]any{
		"command_id": feedback.CommandID,
	})

	exec := pipeline.NewExecutor(o.client, o.searcher, o.cfg)
	res := exec.Resume(ctx, susp, feedback)

	o.record(ctx, run, &res)
	return &StartResult{RunID: runID, Result: &res}, nil
}

// checkCache returns a completed StartResult on a usable cache hit, nil
// otherwise.
func (o *Orchestrator) checkCache(ctx context.Context, runID string, req StartRequest) *StartResult {
	if o.skills == nil {
		return nil
	}

	query := req.Input
	if query == "" {
		query = req.Swarm.Mission
	}

	found, err := o.skills.FindSimilar(ctx, req.UserID, query, req.MinQuality)
	if err != nil {
		o.log.Warn("skill cache lookup failed", "error", err)
		return nil
	}
	if found == nil {
		return nil
	}

	if err := o.skills.RecordUse(ctx, found.Skill.ID); err != nil {
		o.log.Warn("skill usage bump failed", "skill_id", found.Skill.ID, "error", err)
	}
	o.publishEvent(eventbus.TopicSkillHit(found.Skill.ID), "skill_hit", map[string]any{
		"run_id":     runID,
		"similarity": found.Similarity,
	})
	o.log.Info("skill cache hit", "skill_id", found.Skill.ID, "similarity", found.Similarity)

	files, _ := json.Marshal(pipeline.ParseFiles(found.Skill.Code))
	run := &store.PipelineRun{
		ID:      runID,
		SwarmID: req.Swarm.ID,
		UserID:  req.UserID,
		Input:   req.Input,
		Status:  "completed",
		Output:  found.Skill.Code,
		Files:   files,
	}
	if err := o.store.SaveRun(run); err != nil {
		o.log.Error("journal cache hit failed", "run_id", runID, "error", err)
	}

	return &StartResult{RunID: runID, CachedSkill: found}
}

// record journals the pipeline result and fans out events and
// notifications.
func (o *Orchestrator) record(ctx context.Context, run *store.PipelineRun, res *pipeline.Result) {
	switch res.Outcome {
	case pipeline.OutcomeSuccess:
		run.Status = "completed"
		run.Output = res.Output
		run.Files, _ = json.Marshal(res.Files)
		run.Suspended = nil
		o.publishEvent(eventbus.TopicRunCompleted(run.ID), "run_completed", map[string]any{
			"files": len(res.Files),
		})
	case pipeline.OutcomeSuspended:
		run.Status = "suspended"
		run.Suspended, _ = json.Marshal(res.Suspended)
		o.publishEvent(eventbus.TopicRunSuspended(run.ID), "run_suspended", map[string]any{
			"command_id": res.Command.ID,
			"phase":      string(res.Suspended.Phase),
		})
	case pipeline.OutcomeFailure:
		run.Status = "failed"
		run.Error = res.Err
		run.RetrySuggestion = res.RetrySuggestion
		o.publishEvent(eventbus.TopicRunFailed(run.ID), "run_failed", map[string]any{
			"error": res.Err,
		})
	}

	if err := o.store.SaveRun(run); err != nil {
		o.log.Error("journal run failed", "run_id", run.ID, "error", err)
	}

	if o.notifier != nil && run.Status != "suspended" {
		o.notifier.RunFinished(ctx, run)
	}
}

func (o *Orchestrator) publishEvent(topic, eventType string, data map[string]any) {
	if o.bus == nil {
		return
	}
	event := map[string]any{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}
	if err := o.bus.PublishJSON(topic, event); err != nil {
		o.log.Warn("publish event failed", "topic", topic, "error", err)
	}
}
