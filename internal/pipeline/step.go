package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/appforge-ai/appforge/internal/model"
	"github.com/appforge-ai/appforge/internal/swarm"
)

// Searcher performs web searches on behalf of agents that carry the search
// capability. The actual search backend is an external collaborator.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// commandDirective is the line prefix an agent uses to request remote
// execution. Only agents with the shell capability may emit it, and only
// the PLAN and CODE phases honor it.
const commandDirective = "RUN:"

// stepResult is the outcome of one agent step. When command is non-nil the
// step requires remote execution and the run must suspend.
type stepResult struct {
	output  string
	command *Command
}

// maybeSearch asks the model whether a search is warranted for this agent
// and performs it when the model returns a query. A failed search is folded
// into nothing: the step proceeds without it.
func (e *Executor) maybeSearch(ctx context.Context, agent swarm.Agent, sw swarm.Swarm, input string) string {
	if !agent.HasCapability(swarm.CapabilitySearch) || e.searcher == nil {
		return ""
	}

	query, err := e.client.Generate(ctx, model.Request{
		Prompt:       buildSearchGatePrompt(sw.Mission, input),
		SystemPrompt: agent.SystemPrompt,
		Temperature:  agent.Temperature,
	})
	if err != nil {
		slog.Warn("search gate failed", "agent", agent.Name, "error", err)
		return ""
	}
	query = strings.TrimSpace(query)
	if query == "" || strings.EqualFold(query, noSearchSentinel) {
		return ""
	}

	results, err := e.searcher.Search(ctx, query)
	if err != nil {
		slog.Warn("search failed", "agent", agent.Name, "query", query, "error", err)
		return ""
	}
	e.wctx.logf("agent %s searched: %s", agent.Name, query)
	return results
}

// executeStep invokes the model for one agent and records the output into
// shared memory and the step log regardless of phase.
func (e *Executor) executeStep(ctx context.Context, agent swarm.Agent, phase swarm.Phase, prompt string) (stepResult, error) {
	stepCtx := ctx
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	raw, err := e.client.Generate(stepCtx, model.Request{
		Prompt:       prompt,
		SystemPrompt: agent.SystemPrompt,
		Temperature:  agent.Temperature,
	})
	if err != nil {
		e.wctx.logf("agent %s (%s) failed: %v", agent.Name, phase, err)
		return stepResult{}, fmt.Errorf("agent %s: %w", agent.Name, err)
	}

	output, cmd := e.detectCommand(raw, agent, phase)

	e.wctx.remember(agent.Name, output)
	e.wctx.logf("agent %s (%s) produced %d bytes", agent.Name, phase, len(output))

	return stepResult{output: output, command: cmd}, nil
}

// detectCommand scans output for a command directive. The directive line is
// stripped from the stored output so it never leaks into generated code.
func (e *Executor) detectCommand(raw string, agent swarm.Agent, phase swarm.Phase) (string, *Command) {
	if !agent.HasCapability(swarm.CapabilityShell) {
		return raw, nil
	}
	if phase != swarm.PhasePlan && phase != swarm.PhaseCode {
		return raw, nil
	}

	lines := strings.Split(raw, "\n")
	var kept []string
	var cmd *Command
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if cmd == nil && strings.HasPrefix(trimmed, commandDirective) {
			shellCmd := strings.TrimSpace(strings.TrimPrefix(trimmed, commandDirective))
			if shellCmd != "" {
				cmd = &Command{
					ID:        uuid.New().String(),
					Type:      CommandShell,
					Command:   shellCmd,
					TimeoutMs: e.commandTimeout.Milliseconds(),
				}
				continue
			}
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), cmd
}

func foldSearch(prompt, results string) string {
	if results == "" {
		return prompt
	}
	return "## Search Results\n\n" + results + "\n\n" + prompt
}
