package router

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/appforge-ai/appforge/internal/config"
	"github.com/appforge-ai/appforge/internal/model"
	"github.com/appforge-ai/appforge/internal/presets"
	"github.com/appforge-ai/appforge/internal/store"
)

func newTestRouter(t *testing.T, client model.Client) *Router {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	defs := map[string]config.PresetDefinition{
		"general": {
			Mission: "general purpose app building",
			Agents: []config.PresetAgent{
				{ID: "a", Name: "architect", Role: "architect", SystemPrompt: "plan"},
				{ID: "c", Name: "coder", Role: "coder", SystemPrompt: "code"},
			},
		},
		"dashboards": {
			Mission: "data dashboards and charts",
			Agents: []config.PresetAgent{
				{ID: "a", Name: "architect", Role: "architect", SystemPrompt: "plan"},
				{ID: "c", Name: "coder", Role: "coder", SystemPrompt: "code"},
			},
		},
	}

	return New(presets.New(s, defs), client, config.RouterConfig{DefaultPreset: "general"})
}

func TestRouteWithAtPrefix(t *testing.T) {
	rtr := newTestRouter(t, nil)

	preset, msg, err := rtr.Route(context.Background(), "@dashboards sales chart")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preset != "dashboards" {
		t.Errorf("expected preset 'dashboards', got %q", preset)
	}
	if msg != "sales chart" {
		t.Errorf("expected cleaned message 'sales chart', got %q", msg)
	}
}

func TestRouteWithAtPrefixNoMessage(t *testing.T) {
	rtr := newTestRouter(t, nil)

	preset, msg, err := rtr.Route(context.Background(), "@dashboards")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preset != "dashboards" {
		t.Errorf("expected preset 'dashboards', got %q", preset)
	}
	if msg != "" {
		t.Errorf("expected empty cleaned message, got %q", msg)
	}
}

func TestRouteViaModel(t *testing.T) {
	client := &model.MockClient{Fn: func(req model.Request) (string, error) {
		if !strings.Contains(req.Prompt, "dashboards: data dashboards") {
			t.Errorf("routing prompt missing preset mission: %q", req.Prompt)
		}
		return "dashboards\n", nil
	}}
	rtr := newTestRouter(t, client)

	preset, msg, err := rtr.Route(context.Background(), "plot revenue by region")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preset != "dashboards" {
		t.Errorf("expected routed preset 'dashboards', got %q", preset)
	}
	if msg != "plot revenue by region" {
		t.Errorf("message altered: %q", msg)
	}
}

func TestRouteModelFailureFallsBack(t *testing.T) {
	client := &model.MockClient{Fn: func(model.Request) (string, error) {
		return "", errors.New("model down")
	}}
	rtr := newTestRouter(t, client)

	preset, _, err := rtr.Route(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preset != "general" {
		t.Errorf("expected fallback to 'general', got %q", preset)
	}
}

func TestRouteUnknownModelAnswerFallsBack(t *testing.T) {
	client := &model.MockClient{Fn: func(model.Request) (string, error) {
		return "nonexistent", nil
	}}
	rtr := newTestRouter(t, client)

	preset, _, err := rtr.Route(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preset != "general" {
		t.Errorf("expected fallback to 'general', got %q", preset)
	}
}

func TestRouteUnknownAtPrefixKeepsMessage(t *testing.T) {
	rtr := newTestRouter(t, nil)

	preset, msg, err := rtr.Route(context.Background(), "@unknown hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preset != "general" {
		t.Errorf("expected fallback to 'general', got %q", preset)
	}
	if msg != "@unknown hello" {
		t.Errorf("expected original message preserved, got %q", msg)
	}
}

func TestRouteNoDefaultErrors(t *testing.T) {
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	rtr := New(presets.New(s, nil), nil, config.RouterConfig{})
	if _, _, err := rtr.Route(context.Background(), "hello"); err == nil {
		t.Fatal("expected error with no default preset")
	}
}
