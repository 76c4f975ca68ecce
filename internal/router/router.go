// Package router picks the swarm preset that should handle a free-form
// request: an explicit @preset prefix wins, otherwise the model chooses
// from the preset missions, with a configured default as the fallback.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/model"
	"github.com/appforge-ai/appforge/internal/presets"
)

type Router struct {
	presets       *presets.Registry
	client        model.Client
	defaultPreset string
}

func New(p *presets.Registry, client model.Client, cfg config.RouterConfig) *Router {
	return &Router{
		presets:       p,
		client:        client,
		defaultPreset: cfg.DefaultPreset,
	}
}

// Route resolves a message to a preset name and the message stripped of
// any routing prefix.
func (r *Router) Route(ctx context.Context, message string) (preset string, cleaned string, err error) {
	// Explicit @preset prefix
	if strings.HasPrefix(message, "@") {
		parts := strings.SplitN(message, " ", 2)
		name := strings.TrimPrefix(parts[0], "@")
		if r.presets.Has(name) {
			cleaned := ""
			if len(parts) > 1 {
				cleaned = parts[1]
			}
			return name, cleaned, nil
		}
		// Unknown preset name, fall through to model routing
	}

	// Model routing over preset missions
	missions := r.presets.Missions()
	if r.client != nil && len(missions) > 1 {
		routed, routeErr := r.client.Generate(ctx, model.Request{
			Prompt: buildRoutingPrompt(missions, message),
		})
		if routeErr != nil {
			slog.Debug("routing query failed, using default preset", "error", routeErr)
		} else {
			routed = strings.TrimSpace(routed)
			if r.presets.Has(routed) {
				return routed, message, nil
			}
			slog.Debug("routing query returned unknown preset, using default", "preset", routed)
		}
	}

	if r.defaultPreset == "" {
		return "", message, fmt.Errorf("no default preset configured")
	}
	if !r.presets.Has(r.defaultPreset) {
		return "", message, fmt.Errorf("default preset %q not configured", r.defaultPreset)
	}
	return r.defaultPreset, message, nil
}

// DefaultPreset returns the configured fallback preset name.
func (r *Router) DefaultPreset() string {
	return r.defaultPreset
}

func buildRoutingPrompt(missions map[string]string, message string) string {
	names := make([]string, 0, len(missions))
	for name := range missions {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("You are a request router. Given the user's request, determine which swarm should handle it.\n\n")
	sb.WriteString("Available swarms:\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s: %s\n", name, missions[name])
	}
	sb.WriteString("\nUser request: ")
	sb.WriteString(message)
	sb.WriteString("\n\nRespond with ONLY the swarm name, nothing else.")
	return sb.String()
}
