package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/model"
	"github.com/appforge-ai/appforge/internal/swarm"
)

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{MinCodeLength: 10}
}

func newTestExecutor(client model.Client) *Executor {
	return NewExecutor(client, nil, testConfig())
}

func buildSwarm(agents ...swarm.Agent) swarm.Swarm {
	return swarm.Swarm{ID: "sw-1", Mission: "build a todo app", Agents: agents}
}

func architect(id string) swarm.Agent {
	return swarm.Agent{ID: id, Name: "architect-" + id, Role: swarm.RoleArchitect, SystemPrompt: "plan"}
}

func coder(id string, caps ...string) swarm.Agent {
	return swarm.Agent{ID: id, Name: "coder-" + id, Role: swarm.RoleCoder, SystemPrompt: "code", Capabilities: caps}
}

func researcher(id string) swarm.Agent {
	return swarm.Agent{ID: id, Name: "researcher-" + id, Role: swarm.RoleResearcher, SystemPrompt: "research"}
}

// routeBySystemPrompt answers based on which agent is calling, so tests
// stay independent of exact call ordering.
func routeBySystemPrompt(responses map[string]string, errs map[string]error) *model.MockClient {
	return &model.MockClient{Fn: func(req model.Request) (string, error) {
		if err, ok := errs[req.SystemPrompt]; ok {
			return "", err
		}
		return responses[req.SystemPrompt], nil
	}}
}

func TestRunZeroCodersFailsVacuously(t *testing.T) {
	client := routeBySystemPrompt(map[string]string{"plan": "a plan"}, nil)
	sw := buildSwarm(architect("a1"))

	res := newTestExecutor(client).Run(context.Background(), sw, "")
	if res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if !strings.Contains(res.Err, ErrInsufficientOutput.Error()) {
		t.Fatalf("expected insufficient output error, got %q", res.Err)
	}
}

func TestResearchFailureIsNonFatal(t *testing.T) {
	client := routeBySystemPrompt(
		map[string]string{
			"plan": "the plan",
			"code": "```js\nconsole.log('hello world');\n```",
		},
		map[string]error{"research": errors.New("model exploded")},
	)
	sw := buildSwarm(researcher("r1"), architect("a1"), coder("c1"))

	res := newTestExecutor(client).Run(context.Background(), sw, "make it nice")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success despite research failure, got %s (%s)", res.Outcome, res.Err)
	}
}

func TestArchitectFailureIsFatal(t *testing.T) {
	client := routeBySystemPrompt(
		map[string]string{"code": "should never run"},
		map[string]error{"plan": errors.New("model exploded")},
	)
	sw := buildSwarm(architect("a1"), coder("c1"))

	res := newTestExecutor(client).Run(context.Background(), sw, "")
	if res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if res.RetrySuggestion == "" {
		t.Fatal("expected a retry suggestion for fatal plan failure")
	}
	// The coder must never have run
	mock := client
	for _, call := range mock.Calls {
		if call.SystemPrompt == "code" {
			t.Fatal("coder ran after fatal plan failure")
		}
	}
}

func TestCoderFailureIsFatal(t *testing.T) {
	client := routeBySystemPrompt(
		map[string]string{"plan": "the plan"},
		map[string]error{"code": errors.New("model exploded")},
	)
	sw := buildSwarm(architect("a1"), coder("c1"))

	res := newTestExecutor(client).Run(context.Background(), sw, "")
	if res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if res.RetrySuggestion == "" {
		t.Fatal("expected a retry suggestion for fatal code failure")
	}
}

func TestEmptyCoderOutputFailsWithInsufficientOutput(t *testing.T) {
	client := routeBySystemPrompt(map[string]string{"plan": "the plan", "code": ""}, nil)
	sw := buildSwarm(architect("a1"), coder("c1"))

	res := newTestExecutor(client).Run(context.Background(), sw, "")
	if res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if !strings.Contains(res.Err, ErrInsufficientOutput.Error()) {
		t.Fatalf("expected insufficient output error, got %q", res.Err)
	}
}

func TestSuccessfulRunParsesFiles(t *testing.T) {
	code := "```js\n// file: app/App.jsx\nfunction App() { return null; }\n// file: app/index.js\nrender();\n```"
	client := routeBySystemPrompt(map[string]string{"plan": "the plan", "code": code}, nil)
	sw := buildSwarm(architect("a1"), coder("c1"))

	res := newTestExecutor(client).Run(context.Background(), sw, "")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Err)
	}
	if len(res.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(res.Files))
	}
	if res.Files[0].Path != "app/App.jsx" || res.Files[1].Path != "app/index.js" {
		t.Fatalf("unexpected file paths: %v, %v", res.Files[0].Path, res.Files[1].Path)
	}
	if res.Output == "" {
		t.Fatal("expected non-empty output")
	}
}

func TestLaterCoderOutputBecomesFinalCode(t *testing.T) {
	first := true
	client := &model.MockClient{Fn: func(req model.Request) (string, error) {
		switch req.SystemPrompt {
		case "plan":
			return "the plan", nil
		case "code":
			if first {
				first = false
				return "console.log('first draft');", nil
			}
			return "console.log('final revision');", nil
		}
		return "", nil
	}}
	sw := buildSwarm(architect("a1"), coder("c1"), coder("c2"))

	res := newTestExecutor(client).Run(context.Background(), sw, "")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Err)
	}
	if !strings.Contains(res.Output, "final revision") {
		t.Fatalf("expected final coder's output, got %q", res.Output)
	}
}

func TestCoderCommandSuspendsRun(t *testing.T) {
	client := routeBySystemPrompt(map[string]string{
		"plan": "the plan",
		"code": "RUN: npm test\nconsole.log('validated code here');",
	}, nil)
	sw := buildSwarm(architect("a1"), coder("c1", swarm.CapabilityShell))

	res := newTestExecutor(client).Run(context.Background(), sw, "the input")
	if res.Outcome != OutcomeSuspended {
		t.Fatalf("expected suspended, got %s (%s)", res.Outcome, res.Err)
	}
	if res.Command == nil || res.Command.Type != CommandShell {
		t.Fatal("expected a shell command")
	}
	if res.Command.Command != "npm test" {
		t.Fatalf("unexpected command %q", res.Command.Command)
	}
	if res.Suspended == nil {
		t.Fatal("expected suspended state")
	}
	if res.Suspended.AgentID != "c1" || res.Suspended.Phase != swarm.PhaseCode {
		t.Fatalf("unexpected suspension point: %s/%s", res.Suspended.Phase, res.Suspended.AgentID)
	}
	// The swarm must cross the boundary verbatim inside the suspension
	if len(res.Suspended.Swarm.Agents) != 2 || res.Suspended.Swarm.Mission != sw.Mission {
		t.Fatal("suspended state does not carry the swarm verbatim")
	}
	// The suspending agent's own output is already in the snapshot,
	// with the directive line stripped
	out, ok := res.Suspended.Memory["coder-c1"]
	if !ok {
		t.Fatal("suspended memory missing the coder's output")
	}
	if strings.Contains(out, "RUN:") {
		t.Fatal("command directive leaked into stored output")
	}
}

func TestCommandDirectiveRequiresShellCapability(t *testing.T) {
	client := routeBySystemPrompt(map[string]string{
		"plan": "the plan",
		"code": "RUN: rm -rf /\nconsole.log('plenty of code here');",
	}, nil)
	sw := buildSwarm(architect("a1"), coder("c1")) // no shell capability

	res := newTestExecutor(client).Run(context.Background(), sw, "")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success (directive ignored), got %s", res.Outcome)
	}
}

func TestResumeCompletesAfterFeedback(t *testing.T) {
	client := routeBySystemPrompt(map[string]string{
		"plan": "the plan",
		"code": "RUN: npm test\nconsole.log('validated code here');",
	}, nil)
	sw := buildSwarm(architect("a1"), coder("c1", swarm.CapabilityShell))

	res := newTestExecutor(client).Run(context.Background(), sw, "the input")
	if res.Outcome != OutcomeSuspended {
		t.Fatalf("expected suspended, got %s", res.Outcome)
	}

	// Simulate a fresh process: brand new executor, state from the wire only.
	resumed := newTestExecutor(client).Resume(context.Background(), res.Suspended, Feedback{
		CommandID: res.Command.ID,
		Output:    "all tests passed",
		ExitCode:  0,
	})
	if resumed.Outcome != OutcomeSuccess {
		t.Fatalf("expected success after resume, got %s (%s)", resumed.Outcome, resumed.Err)
	}
	if resumed.Output == "" {
		t.Fatal("expected non-empty output after resume")
	}
}

func TestResumeCommandIDMismatchIsProtocolError(t *testing.T) {
	client := routeBySystemPrompt(map[string]string{
		"plan": "the plan",
		"code": "RUN: npm test\ncode body",
	}, nil)
	sw := buildSwarm(architect("a1"), coder("c1", swarm.CapabilityShell))

	res := newTestExecutor(client).Run(context.Background(), sw, "")
	if res.Outcome != OutcomeSuspended {
		t.Fatalf("expected suspended, got %s", res.Outcome)
	}

	before := client.CallCount()
	resumed := newTestExecutor(client).Resume(context.Background(), res.Suspended, Feedback{
		CommandID: "not-the-right-one",
		ExitCode:  0,
	})
	if resumed.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", resumed.Outcome)
	}
	if !strings.Contains(resumed.Err, ErrCommandMismatch.Error()) {
		t.Fatalf("expected command mismatch error, got %q", resumed.Err)
	}
	if client.CallCount() != before {
		t.Fatal("no agent logic may run on a protocol error")
	}
}

func TestResumeInvalidSuspendedStateFailsFast(t *testing.T) {
	client := &model.MockClient{}

	cases := []struct {
		name string
		susp *SuspendedExecution
	}{
		{"nil state", nil},
		{"missing swarm", &SuspendedExecution{
			Phase: swarm.PhaseCode, AgentID: "c1",
			Command: Command{ID: "cmd-1", Type: CommandShell},
		}},
		{"missing command id", &SuspendedExecution{
			Phase: swarm.PhaseCode, AgentID: "c1",
			Swarm: buildSwarm(coder("c1")),
		}},
		{"unknown agent", &SuspendedExecution{
			Phase: swarm.PhaseCode, AgentID: "ghost",
			Command: Command{ID: "cmd-1", Type: CommandShell},
			Swarm:   buildSwarm(coder("c1")),
		}},
		{"non-suspendable phase", &SuspendedExecution{
			Phase: swarm.PhaseResearch, AgentID: "c1",
			Command: Command{ID: "cmd-1", Type: CommandShell},
			Swarm:   buildSwarm(coder("c1")),
		}},
	}

	for _, tc := range cases {
		res := newTestExecutor(client).Resume(context.Background(), tc.susp, Feedback{CommandID: "cmd-1"})
		if res.Outcome != OutcomeFailure {
			t.Errorf("%s: expected failure, got %s", tc.name, res.Outcome)
		}
		if !strings.Contains(res.Err, ErrInvalidSuspendedState.Error()) {
			t.Errorf("%s: expected invalid suspended state error, got %q", tc.name, res.Err)
		}
	}
	if client.CallCount() != 0 {
		t.Fatal("no agent logic may run on structurally invalid state")
	}
}

func TestResumeRestoresMemoryExactly(t *testing.T) {
	susp := &SuspendedExecution{
		Phase:   swarm.PhaseCode,
		AgentID: "c1",
		Command: Command{ID: "cmd-1", Type: CommandShell, Command: "ls"},
		SwarmID: "sw-1",
		Swarm:   buildSwarm(researcher("r1"), architect("a1"), coder("c1", swarm.CapabilityShell)),
		Memory: map[string]string{
			"researcher-r1": "notes about todo apps",
			"architect-a1":  "the plan",
			"coder-c1":      "console.log('enough code to pass');",
		},
	}

	client := &model.MockClient{}
	e := newTestExecutor(client)
	res := e.Resume(context.Background(), susp, Feedback{CommandID: "cmd-1", ExitCode: 0, Output: "ok"})
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Err)
	}

	// Every snapshotted entry survives, none lost
	for k, v := range susp.Memory {
		if e.wctx.memory[k] != v {
			t.Errorf("memory entry %q lost or changed", k)
		}
	}
	// The original snapshot itself is untouched
	if len(susp.Memory) != 3 {
		t.Fatalf("snapshot mutated: %d entries", len(susp.Memory))
	}
	// The resumed run re-derives final code from the snapshot; no model
	// calls were needed because c1 was the only coder.
	if client.CallCount() != 0 {
		t.Fatalf("expected no model calls, got %d", client.CallCount())
	}
}

func TestResumeNonZeroExitIsFatal(t *testing.T) {
	susp := &SuspendedExecution{
		Phase:   swarm.PhaseCode,
		AgentID: "c1",
		Command: Command{ID: "cmd-1", Type: CommandShell, Command: "npm test"},
		Swarm:   buildSwarm(architect("a1"), coder("c1", swarm.CapabilityShell)),
		Memory:  map[string]string{"architect-a1": "plan", "coder-c1": "code"},
	}

	res := newTestExecutor(&model.MockClient{}).Resume(context.Background(), susp, Feedback{
		CommandID: "cmd-1",
		ExitCode:  1,
		Output:    "2 tests failed",
	})
	if res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if res.RetrySuggestion == "" {
		t.Fatal("expected retry suggestion for failed command")
	}
}

func TestResumeContinuesWithRemainingCoders(t *testing.T) {
	client := routeBySystemPrompt(map[string]string{
		"code": "console.log('second coder final output');",
	}, nil)

	susp := &SuspendedExecution{
		Phase:   swarm.PhaseCode,
		AgentID: "c1",
		Command: Command{ID: "cmd-1", Type: CommandShell, Command: "ls"},
		Swarm: buildSwarm(
			architect("a1"),
			coder("c1", swarm.CapabilityShell),
			coder("c2"),
		),
		Memory: map[string]string{
			"architect-a1": "the plan",
			"coder-c1":     "console.log('first coder');",
		},
	}

	res := newTestExecutor(client).Resume(context.Background(), susp, Feedback{CommandID: "cmd-1", ExitCode: 0})
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Err)
	}
	if !strings.Contains(res.Output, "second coder") {
		t.Fatalf("expected second coder to run after resume, got %q", res.Output)
	}
	if client.CallCount() != 1 {
		t.Fatalf("expected exactly 1 model call for the remaining coder, got %d", client.CallCount())
	}
}

func TestPlanPhaseSuspensionResumesIntoCode(t *testing.T) {
	client := routeBySystemPrompt(map[string]string{
		"plan": "RUN: check-env\nthe verified plan",
		"code": "console.log('built from verified plan');",
	}, nil)
	sw := buildSwarm(architectWithCaps("a1", swarm.CapabilityShell), coder("c1"))

	res := newTestExecutor(client).Run(context.Background(), sw, "")
	if res.Outcome != OutcomeSuspended {
		t.Fatalf("expected plan-phase suspension, got %s", res.Outcome)
	}
	if res.Suspended.Phase != swarm.PhasePlan {
		t.Fatalf("expected PLAN phase, got %s", res.Suspended.Phase)
	}

	resumed := newTestExecutor(client).Resume(context.Background(), res.Suspended, Feedback{
		CommandID: res.Command.ID, ExitCode: 0, Output: "env ok",
	})
	if resumed.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", resumed.Outcome, resumed.Err)
	}
	if !strings.Contains(resumed.Output, "built from verified plan") {
		t.Fatalf("unexpected output %q", resumed.Output)
	}
}

func TestInvalidSwarmRejectedBeforeAnyModelCall(t *testing.T) {
	client := &model.MockClient{}
	res := newTestExecutor(client).Run(context.Background(), swarm.Swarm{ID: "bad"}, "")
	if res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", res.Outcome)
	}
	if client.CallCount() != 0 {
		t.Fatal("invalid swarm must not reach the model")
	}
}

func architectWithCaps(id string, caps ...string) swarm.Agent {
	a := architect(id)
	a.Capabilities = caps
	return a
}

type fakeSearcher struct {
	queries []string
	result  string
}

func (f *fakeSearcher) Search(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return f.result, nil
}

func TestSearchCapabilityGatesThroughModel(t *testing.T) {
	searcher := &fakeSearcher{result: "react todo tutorials"}
	client := &model.MockClient{Fn: func(req model.Request) (string, error) {
		if strings.Contains(req.Prompt, "Reply with only the search query") {
			return "best react todo patterns", nil
		}
		if req.SystemPrompt == "plan" {
			if !strings.Contains(req.Prompt, "react todo tutorials") {
				t.Error("search results not folded into the planning prompt")
			}
			return "the plan", nil
		}
		return "console.log('plenty of generated code');", nil
	}}

	sw := buildSwarm(architectWithCaps("a1", swarm.CapabilitySearch), coder("c1"))
	e := NewExecutor(client, searcher, testConfig())

	res := e.Run(context.Background(), sw, "")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Outcome, res.Err)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "best react todo patterns" {
		t.Fatalf("unexpected search queries: %v", searcher.queries)
	}
}

func TestSearchSentinelSkipsSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	client := &model.MockClient{Fn: func(req model.Request) (string, error) {
		if strings.Contains(req.Prompt, "Reply with only the search query") {
			return "NONE", nil
		}
		if req.SystemPrompt == "plan" {
			return "the plan", nil
		}
		return "console.log('plenty of generated code');", nil
	}}

	sw := buildSwarm(architectWithCaps("a1", swarm.CapabilitySearch), coder("c1"))
	e := NewExecutor(client, searcher, testConfig())

	res := e.Run(context.Background(), sw, "")
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s", res.Outcome)
	}
	if len(searcher.queries) != 0 {
		t.Fatalf("search must be skipped on sentinel, got %v", searcher.queries)
	}
}
