package pipeline

import (
	"errors"
	"fmt"

	"github.com/appforge-ai/appforge/internal/swarm"
)

// CommandType is the kind of work delegated to the remote peer.
type CommandType string

const (
	CommandShell      CommandType = "shell"
	CommandScreenshot CommandType = "screenshot"
	CommandBrowserLog CommandType = "browser_log"
)

// Command describes work only the remote peer can perform. The orchestrator
// has no execution sandbox; it emits the descriptor and halts.
type Command struct {
	ID        string      `json:"id"`
	Type      CommandType `json:"type"`
	Command   string      `json:"command,omitempty"`
	TimeoutMs int64       `json:"timeout_ms,omitempty"`
}

// SuspendedExecution is the full continuation of a halted run. It must
// contain everything needed to resume: the executor holds no other state
// between requests.
type SuspendedExecution struct {
	Phase       swarm.Phase       `json:"phase"`
	AgentID     string            `json:"agent_id"`
	Command     Command           `json:"command"`
	SwarmID     string            `json:"swarm_id"`
	Swarm       swarm.Swarm       `json:"swarm"`
	Input       string            `json:"input,omitempty"`
	Memory      map[string]string `json:"memory"`
	GlobalFiles map[string]string `json:"global_files,omitempty"`
}

// Feedback is the remote peer's report of a delegated command's outcome.
type Feedback struct {
	CommandID  string `json:"command_id"`
	Output     string `json:"output"`
	ExitCode   int    `json:"exit_code"`
	Screenshot string `json:"screenshot,omitempty"`
}

// Protocol errors are rejected at the boundary before any agent logic runs.
var (
	ErrCommandMismatch       = errors.New("feedback command id does not match outstanding command")
	ErrInvalidSuspendedState = errors.New("invalid suspended state")
)

// ValidateSuspended checks a suspended execution received from the network
// before it is trusted. Resume fails fast on a malformed continuation
// rather than attempting partial recovery.
func ValidateSuspended(s *SuspendedExecution) error {
	if s == nil {
		return fmt.Errorf("%w: missing", ErrInvalidSuspendedState)
	}
	if err := swarm.Validate(s.Swarm); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSuspendedState, err)
	}
	if s.Command.ID == "" {
		return fmt.Errorf("%w: missing command id", ErrInvalidSuspendedState)
	}
	if s.Phase != swarm.PhasePlan && s.Phase != swarm.PhaseCode {
		return fmt.Errorf("%w: phase %q cannot suspend", ErrInvalidSuspendedState, s.Phase)
	}
	if _, ok := s.Swarm.AgentByID(s.AgentID); !ok {
		return fmt.Errorf("%w: agent %q not in swarm", ErrInvalidSuspendedState, s.AgentID)
	}
	return nil
}
