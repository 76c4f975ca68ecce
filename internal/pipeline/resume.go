package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/appforge-ai/appforge/internal/swarm"
)

// Resume continues a suspended run from serialized state alone. The caller
// is expected to be a fresh process with no memory of the prior request:
// everything needed is reconstructed from the suspended execution and the
// peer's feedback.
func (e *Executor) Resume(ctx context.Context, susp *SuspendedExecution, feedback Feedback) Result {
	if err := ValidateSuspended(susp); err != nil {
		return failure(err, "", nil)
	}
	if feedback.CommandID != susp.Command.ID {
		return failure(fmt.Errorf("%w: got %q, outstanding %q",
			ErrCommandMismatch, feedback.CommandID, susp.Command.ID), "", nil)
	}

	sw := susp.Swarm
	agent, _ := sw.AgentByID(susp.AgentID)

	// Reinstall the memory snapshot into a fresh context.
	e.wctx = newWorkflowContext()
	e.wctx.restore(susp.Memory, susp.GlobalFiles)

	// Fold the command outcome into the context as if it were a normal
	// step's output.
	e.wctx.remember(agent.Name+" [command]", fmt.Sprintf("exit %d\n%s", feedback.ExitCode, feedback.Output))
	e.wctx.logf("resumed command %s for agent %s (exit %d)", feedback.CommandID, agent.Name, feedback.ExitCode)
	slog.Info("pipeline resumed", "swarm", sw.ID, "agent", agent.Name, "command", feedback.CommandID, "exit", feedback.ExitCode)

	// A failed command is a step failure in the phase it suspended, and
	// both suspendable phases fail fatally.
	if feedback.ExitCode != 0 {
		err := fmt.Errorf("remote command %s exited %d: %s", feedback.CommandID, feedback.ExitCode, truncateOutput(feedback.Output))
		suggestion := codeRetrySuggestion
		if susp.Phase == swarm.PhasePlan {
			suggestion = planRetrySuggestion
		}
		return failure(err, suggestion, e.wctx.logs)
	}

	input := susp.Input
	research := e.researchNotes(sw)

	switch susp.Phase {
	case swarm.PhasePlan:
		idx := phaseIndex(sw, swarm.PhasePlan, susp.AgentID)
		plan, halt := e.runPlan(ctx, sw, input, research, idx+1, e.rebuildPlan(sw, len(sw.AgentsForPhase(swarm.PhasePlan))))
		if halt != nil {
			return *halt
		}
		finalCode, halt := e.runCode(ctx, sw, input, plan, 0, "")
		if halt != nil {
			return *halt
		}
		return e.finish(sw, finalCode)

	case swarm.PhaseCode:
		idx := phaseIndex(sw, swarm.PhaseCode, susp.AgentID)
		plan := e.rebuildPlan(sw, len(sw.AgentsForPhase(swarm.PhasePlan)))
		finalCode, halt := e.runCode(ctx, sw, input, plan, idx+1, e.rebuildCode(sw, idx+1))
		if halt != nil {
			return *halt
		}
		return e.finish(sw, finalCode)
	}

	// Unreachable: ValidateSuspended restricts the phase.
	return failure(fmt.Errorf("%w: phase %q", ErrInvalidSuspendedState, susp.Phase), "", e.wctx.logs)
}

// rebuildPlan reconstructs the accumulated plan from the memory snapshot:
// the outputs of the first n architects, in declared order.
func (e *Executor) rebuildPlan(sw swarm.Swarm, n int) string {
	var parts []string
	for i, agent := range sw.AgentsForPhase(swarm.PhasePlan) {
		if i >= n {
			break
		}
		if out, ok := e.wctx.memory[agent.Name]; ok && out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n\n")
}

// rebuildCode reconstructs the running final code from the first n coders'
// recorded outputs, re-applying the extraction filter.
func (e *Executor) rebuildCode(sw swarm.Swarm, n int) string {
	var finalCode string
	for i, agent := range sw.AgentsForPhase(swarm.PhaseCode) {
		if i >= n {
			break
		}
		if out, ok := e.wctx.memory[agent.Name]; ok {
			if code := ExtractCode(out); code != "" {
				finalCode = code
			}
		}
	}
	return finalCode
}

// phaseIndex returns the position of the agent within its phase's agent
// list, or -1.
func phaseIndex(sw swarm.Swarm, phase swarm.Phase, agentID string) int {
	for i, a := range sw.AgentsForPhase(phase) {
		if a.ID == agentID {
			return i
		}
	}
	return -1
}

func truncateOutput(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200] + "..."
}
