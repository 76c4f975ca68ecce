package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/eventbus"
	"github.com/appforge-ai/appforge/internal/orchestrator"
	"github.com/appforge-ai/appforge/internal/pipeline"
	"github.com/appforge-ai/appforge/internal/schedule"
	"github.com/appforge-ai/appforge/internal/store"
	"github.com/appforge-ai/appforge/internal/swarm"
)

// Launcher starts pipeline runs. Satisfied by the orchestrator.
type Launcher interface {
	Start(ctx context.Context, req orchestrator.StartRequest) (*orchestrator.StartResult, error)
}

// Scheduler polls for due missions and launches their swarms.
type Scheduler struct {
	store        *store.Store
	launcher     Launcher
	bus          *eventbus.Client
	pollInterval time.Duration
	reloadCh     chan struct{}
}

func New(s *store.Store, launcher Launcher, bus *eventbus.Client, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		launcher:     launcher,
		bus:          bus,
		pollInterval: cfg.PollInterval,
		reloadCh:     make(chan struct{}, 1),
	}
}

// UpdateConfig changes the poll interval and signals the run loop to reset
// its ticker.
func (s *Scheduler) UpdateConfig(pollInterval time.Duration) {
	s.pollInterval = pollInterval
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.pollInterval)
			slog.Info("scheduler config reloaded", "poll_interval", s.pollInterval)
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll runs one scheduling pass: every due mission fires.
func (s *Scheduler) Poll(ctx context.Context) {
	missions, err := s.store.GetDueMissions(time.Now())
	if err != nil {
		slog.Error("failed to get due missions", "error", err)
		return
	}

	for _, m := range missions {
		s.execute(ctx, m)
	}
}

func (s *Scheduler) execute(ctx context.Context, m store.Mission) {
	slog.Info("firing mission", "id", m.ID, "name", m.Name, "swarm", m.SwarmID)

	lastStatus, lastError := s.launch(ctx, m)

	nextRun := schedule.NextRun(m.Schedule)
	if err := s.store.UpdateMissionRun(m.ID, lastStatus, lastError, nextRun); err != nil {
		slog.Error("failed to update mission run", "id", m.ID, "error", err)
	}

	s.publishMissionFired(m, lastStatus)

	// One-shot schedules retire after firing
	if nextRun == nil {
		slog.Info("no next run, marking mission completed", "id", m.ID, "name", m.Name)
		if err := s.store.UpdateMissionStatus(m.ID, "completed"); err != nil {
			slog.Error("failed to complete mission", "id", m.ID, "error", err)
		}
	}
}

func (s *Scheduler) launch(ctx context.Context, m store.Mission) (status, errMsg string) {
	def, err := s.store.GetSwarm(m.SwarmID)
	if err != nil {
		return "error", err.Error()
	}
	if def == nil {
		slog.Error("mission references missing swarm", "id", m.ID, "swarm", m.SwarmID)
		return "error", "swarm not found: " + m.SwarmID
	}

	var agents []swarm.Agent
	if err := json.Unmarshal(def.Agents, &agents); err != nil {
		return "error", "decode swarm agents: " + err.Error()
	}

	out, err := s.launcher.Start(ctx, orchestrator.StartRequest{
		Swarm: swarm.Swarm{ID: def.ID, Mission: def.Mission, Agents: agents},
		Input: m.Input,
	})
	if err != nil {
		slog.Error("mission launch failed", "id", m.ID, "error", err)
		return "error", err.Error()
	}

	if out.Result != nil && out.Result.Outcome == pipeline.OutcomeFailure {
		return "failed", out.Result.Err
	}
	return "success", ""
}

func (s *Scheduler) publishMissionFired(m store.Mission, status string) {
	if s.bus == nil {
		return
	}

	event := map[string]any{
		"type":      "mission_fired",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id":     m.ID,
			"name":   m.Name,
			"status": status,
		},
	}
	if err := s.bus.PublishJSON(eventbus.TopicMissionFired(m.ID), event); err != nil {
		slog.Warn("publish mission event failed", "id", m.ID, "error", err)
	}
}
