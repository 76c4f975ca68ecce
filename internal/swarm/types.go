// Package swarm defines the mission/agent data model shared by the
// pipeline executor and the network boundary. A Swarm is a value object:
// fully serializable, no live references, so it can cross the wire intact
// inside suspended state.
package swarm

// Role is the closed set of agent roles.
type Role string

const (
	RoleResearcher Role = "RESEARCHER"
	RoleArchitect  Role = "ARCHITECT"
	RoleCoder      Role = "CODER"
	RoleReviewer   Role = "REVIEWER"
	RoleDebugger   Role = "DEBUGGER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleResearcher, RoleArchitect, RoleCoder, RoleReviewer, RoleDebugger:
		return true
	}
	return false
}

// Phase is one of the pipeline's fixed execution stages.
type Phase string

const (
	PhaseResearch Phase = "RESEARCH"
	PhasePlan     Phase = "PLAN"
	PhaseCode     Phase = "CODE"
)

// Phases lists the stages in execution order.
var Phases = []Phase{PhaseResearch, PhasePlan, PhaseCode}

// PhaseRoles maps each phase to the roles that execute in it. Dispatch goes
// through this table, never through string comparisons in the executor.
var PhaseRoles = map[Phase][]Role{
	PhaseResearch: {RoleResearcher},
	PhasePlan:     {RoleArchitect},
	PhaseCode:     {RoleCoder},
}

// CapabilitySearch marks agents allowed to request a web search before
// their step executes.
const CapabilitySearch = "search"

// CapabilityShell marks agents whose step delegates a shell command to the
// remote peer for validation.
const CapabilityShell = "shell"

type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Role         Role     `json:"role"`
	SystemPrompt string   `json:"system_prompt"`
	Capabilities []string `json:"capabilities,omitempty"`
	Temperature  float64  `json:"temperature"`
}

// HasCapability reports whether the agent carries the named capability.
func (a Agent) HasCapability(name string) bool {
	for _, c := range a.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

type Swarm struct {
	ID      string  `json:"id"`
	Mission string  `json:"mission"`
	Agents  []Agent `json:"agents"`
}

// AgentsForPhase returns the swarm's agents that execute in the given
// phase, preserving the swarm's declared order.
func (s Swarm) AgentsForPhase(phase Phase) []Agent {
	roles := PhaseRoles[phase]
	var out []Agent
	for _, a := range s.Agents {
		for _, r := range roles {
			if a.Role == r {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// AgentByID returns the agent with the given ID, or false.
func (s Swarm) AgentByID(id string) (Agent, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}
