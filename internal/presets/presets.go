// Package presets syncs config-declared swarm blueprints into the store so
// they can be launched by name, scheduled, or routed to.
package presets

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/store"
	"github.com/appforge-ai/appforge/internal/swarm"
)

// idPrefix marks preset-owned rows in the swarms table. Sync only ever
// touches rows carrying the prefix; user-created swarms are left alone.
const idPrefix = "preset-"

type Registry struct {
	store *store.Store
	defs  map[string]config.PresetDefinition
}

func New(s *store.Store, defs map[string]config.PresetDefinition) *Registry {
	return &Registry{store: s, defs: defs}
}

// Sync upserts every configured preset into the swarms table and removes
// preset rows whose definition disappeared from the config.
func (r *Registry) Sync() error {
	keep := make(map[string]bool, len(r.defs))
	for name, def := range r.defs {
		sw, err := r.build(name, def)
		if err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}

		agents, err := json.Marshal(sw.Agents)
		if err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}

		displayName := def.Name
		if displayName == "" {
			displayName = name
		}
		if err := r.store.SaveSwarm(&store.SwarmDef{
			ID:      sw.ID,
			Name:    displayName,
			Mission: def.Mission,
			Agents:  agents,
		}); err != nil {
			return fmt.Errorf("save preset %s: %w", name, err)
		}
		keep[sw.ID] = true
	}

	existing, err := r.store.ListSwarms()
	if err != nil {
		return fmt.Errorf("list swarms: %w", err)
	}
	for _, def := range existing {
		if strings.HasPrefix(def.ID, idPrefix) && !keep[def.ID] {
			if err := r.store.DeleteSwarm(def.ID); err != nil {
				return fmt.Errorf("delete stale preset %s: %w", def.ID, err)
			}
		}
	}
	return nil
}

// Swarm builds the runtime swarm for a named preset.
func (r *Registry) Swarm(name string) (swarm.Swarm, error) {
	def, ok := r.defs[name]
	if !ok {
		return swarm.Swarm{}, fmt.Errorf("preset %q not found", name)
	}
	return r.build(name, def)
}

// Has reports whether a preset with the given name is configured.
func (r *Registry) Has(name string) bool {
	_, ok := r.defs[name]
	return ok
}

// Missions returns each preset's mission keyed by name, sorted iteration
// left to the caller.
func (r *Registry) Missions() map[string]string {
	out := make(map[string]string, len(r.defs))
	for name, def := range r.defs {
		out[name] = def.Mission
	}
	return out
}

// Names returns the configured preset names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) build(name string, def config.PresetDefinition) (swarm.Swarm, error) {
	agents := make([]swarm.Agent, 0, len(def.Agents))
	for i, a := range def.Agents {
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", name, i+1)
		}
		agentName := a.Name
		if agentName == "" {
			agentName = id
		}
		agents = append(agents, swarm.Agent{
			ID:           id,
			Name:         agentName,
			Role:         swarm.Role(strings.ToUpper(a.Role)),
			SystemPrompt: a.SystemPrompt,
			Capabilities: a.Capabilities,
			Temperature:  a.Temperature,
		})
	}

	sw := swarm.Swarm{
		ID:      idPrefix + name,
		Mission: def.Mission,
		Agents:  agents,
	}
	if err := swarm.Validate(sw); err != nil {
		return swarm.Swarm{}, err
	}
	return sw, nil
}
