package swarm

import (
	"errors"
	"fmt"
)

// Validate checks a swarm received at the network boundary before any
// internal logic trusts it. It returns the first structural problem found.
func Validate(s Swarm) error {
	if s.Mission == "" {
		return errors.New("swarm mission is empty")
	}
	if len(s.Agents) == 0 {
		return errors.New("swarm has no agents")
	}

	seen := make(map[string]bool, len(s.Agents))
	for i, a := range s.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent %d has no id", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if !a.Role.Valid() {
			return fmt.Errorf("agent %q has unknown role %q", a.ID, a.Role)
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			return fmt.Errorf("agent %q temperature %v out of range", a.ID, a.Temperature)
		}
	}
	return nil
}
