package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/appforge-ai/appforge/internal/config"
)

func TestSearchFormatsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q, want /search", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["query"] != "go sqlite driver" {
			t.Errorf("query = %v", req["query"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"answer": "modernc.org/sqlite is a cgo-free driver",
			"results": []map[string]any{
				{"title": "modernc sqlite", "url": "https://modernc.org/sqlite", "content": "pure go"},
			},
		})
	}))
	defer srv.Close()

	c := New(config.SearchConfig{BaseURL: srv.URL, APIKey: "key", MaxResults: 3})
	out, err := c.Search(context.Background(), "go sqlite driver")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "Summary: modernc.org/sqlite") {
		t.Errorf("missing answer in output: %q", out)
	}
	if !strings.Contains(out, "1. modernc sqlite") {
		t.Errorf("missing result in output: %q", out)
	}
}

func TestSearchRequiresAPIKey(t *testing.T) {
	c := New(config.SearchConfig{BaseURL: "http://localhost"})
	if _, err := c.Search(context.Background(), "anything"); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestSearchSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(config.SearchConfig{BaseURL: srv.URL, APIKey: "key"})
	_, err := c.Search(context.Background(), "anything")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status 429", err)
	}
}
