// Package pipeline runs a swarm's agents through three ordered phases
// (RESEARCH, PLAN, CODE), passing accumulated context forward. The executor
// is constructed fresh for every run; the only state that survives between
// HTTP requests is the serialized SuspendedExecution a caller carries.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/model"
	"github.com/appforge-ai/appforge/internal/swarm"
)

// ErrInsufficientOutput is returned when the CODE phase completes without
// error but produced nothing usable.
var ErrInsufficientOutput = errors.New("code phase produced insufficient output")

const (
	planRetrySuggestion = "The planning phase failed. Retry with a simpler mission or a more explicit description of the desired app."
	codeRetrySuggestion = "Code generation failed. Retry with a smaller scope or a more detailed plan."
	emptyCodeSuggestion = "The coder produced no usable code. Retry with a different coder agent or stricter output instructions."
)

// Executor drives one pipeline run. It must not be reused across runs:
// construct a new one per request so no workflow state bleeds between
// concurrent swarms.
type Executor struct {
	client   model.Client
	searcher Searcher

	minCodeLength  int
	stepTimeout    time.Duration
	commandTimeout time.Duration

	wctx *workflowContext
}

func NewExecutor(client model.Client, searcher Searcher, cfg config.PipelineConfig) *Executor {
	minLen := cfg.MinCodeLength
	if minLen <= 0 {
		minLen = 10
	}
	return &Executor{
		client:         client,
		searcher:       searcher,
		minCodeLength:  minLen,
		stepTimeout:    cfg.StepTimeout,
		commandTimeout: cfg.CommandTimeout,
		wctx:           newWorkflowContext(),
	}
}

// Run executes the full pipeline for a swarm. It terminates with a tagged
// result: completed, suspended awaiting remote execution, or failed.
func (e *Executor) Run(ctx context.Context, sw swarm.Swarm, input string) Result {
	if err := swarm.Validate(sw); err != nil {
		return failure(err, "", nil)
	}

	// Each run starts from a zeroed context.
	e.wctx = newWorkflowContext()

	e.runResearch(ctx, sw, input)

	plan, halt := e.runPlan(ctx, sw, input, e.researchNotes(sw), 0, "")
	if halt != nil {
		return *halt
	}

	finalCode, halt := e.runCode(ctx, sw, input, plan, 0, "")
	if halt != nil {
		return *halt
	}

	return e.finish(sw, finalCode)
}

// runResearch executes all researcher agents. Research is advisory: a
// failure here is logged and the pipeline proceeds regardless.
func (e *Executor) runResearch(ctx context.Context, sw swarm.Swarm, input string) {
	for _, agent := range sw.AgentsForPhase(swarm.PhaseResearch) {
		results := e.maybeSearch(ctx, agent, sw, input)
		prompt := buildResearchPrompt(sw, input, results)
		if _, err := e.executeStep(ctx, agent, swarm.PhaseResearch, prompt); err != nil {
			slog.Warn("research step failed, continuing", "swarm", sw.ID, "agent", agent.Name, "error", err)
		}
	}
}

// runPlan executes architect agents starting at fromIdx, growing the plan
// with each output. A failure here is fatal: an unreliable plan must never
// reach code generation.
func (e *Executor) runPlan(ctx context.Context, sw swarm.Swarm, input, research string, fromIdx int, plan string) (string, *Result) {
	architects := sw.AgentsForPhase(swarm.PhasePlan)

	for i := fromIdx; i < len(architects); i++ {
		agent := architects[i]
		results := e.maybeSearch(ctx, agent, sw, input)
		prompt := foldSearch(buildPlanPrompt(sw, input, research, plan), results)

		step, err := e.executeStep(ctx, agent, swarm.PhasePlan, prompt)
		if err != nil {
			res := failure(err, planRetrySuggestion, e.wctx.logs)
			return "", &res
		}
		if step.command != nil {
			res := e.suspend(sw, swarm.PhasePlan, agent, *step.command, input)
			return "", &res
		}

		if plan != "" {
			plan += "\n\n"
		}
		plan += step.output
	}
	return plan, nil
}

// runCode executes coder agents starting at fromIdx. Each coder's output is
// passed through the code-extraction filter before becoming the running
// final code. A failure here is fatal.
func (e *Executor) runCode(ctx context.Context, sw swarm.Swarm, input, plan string, fromIdx int, finalCode string) (string, *Result) {
	coders := sw.AgentsForPhase(swarm.PhaseCode)

	for i := fromIdx; i < len(coders); i++ {
		agent := coders[i]
		results := e.maybeSearch(ctx, agent, sw, input)
		prompt := foldSearch(buildCodePrompt(sw, plan, e.wctx.memory, agentNames(sw)), results)

		step, err := e.executeStep(ctx, agent, swarm.PhaseCode, prompt)
		if err != nil {
			res := failure(err, codeRetrySuggestion, e.wctx.logs)
			return "", &res
		}
		if step.command != nil {
			res := e.suspend(sw, swarm.PhaseCode, agent, *step.command, input)
			return "", &res
		}

		if code := ExtractCode(step.output); code != "" {
			finalCode = code
		}
	}
	return finalCode, nil
}

// finish applies the vacuous-output check and parses the final code into a
// file list. An empty or near-empty result is a failure, never a success.
func (e *Executor) finish(sw swarm.Swarm, finalCode string) Result {
	if len(strings.TrimSpace(finalCode)) < e.minCodeLength {
		e.wctx.logf("final code below minimum length (%d bytes)", len(finalCode))
		return failure(ErrInsufficientOutput, emptyCodeSuggestion, e.wctx.logs)
	}
	slog.Info("pipeline completed", "swarm", sw.ID, "code_bytes", len(finalCode))
	return success(finalCode, ParseFiles(finalCode), e.wctx.logs)
}

// suspend serializes the continuation and halts before advancing the phase.
// The snapshot includes the suspending agent's own output, already recorded
// into memory by executeStep.
func (e *Executor) suspend(sw swarm.Swarm, phase swarm.Phase, agent swarm.Agent, cmd Command, input string) Result {
	e.wctx.logf("suspending at agent %s for command %s", agent.Name, cmd.ID)
	slog.Info("pipeline suspended", "swarm", sw.ID, "agent", agent.Name, "command", cmd.ID, "type", cmd.Type)

	return suspended(&SuspendedExecution{
		Phase:       phase,
		AgentID:     agent.ID,
		Command:     cmd,
		SwarmID:     sw.ID,
		Swarm:       sw,
		Input:       input,
		Memory:      e.wctx.snapshot(),
		GlobalFiles: e.wctx.globalFiles,
	}, e.wctx.logs)
}

// researchNotes concatenates researcher outputs currently in memory, in the
// swarm's declared order.
func (e *Executor) researchNotes(sw swarm.Swarm) string {
	var parts []string
	for _, agent := range sw.AgentsForPhase(swarm.PhaseResearch) {
		if out, ok := e.wctx.memory[agent.Name]; ok && out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n\n")
}

func agentNames(sw swarm.Swarm) []string {
	names := make([]string, 0, len(sw.Agents))
	for _, a := range sw.Agents {
		names = append(names, a.Name)
	}
	return names
}
