// Package search provides the web search backend agents with the search
// capability draw on during the planning phases.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/appforge-ai/appforge/internal/config"
)

// Client queries a Tavily-compatible search API and renders the results as
// plain text suitable for folding into an agent prompt.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	maxResults int
}

func New(cfg config.SearchConfig) *Client {
	maxResults := cfg.MaxResults
	if maxResults < 1 {
		maxResults = 5
	}
	if maxResults > 10 {
		maxResults = 10
	}
	return &Client{
		http:       &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
	}
}

func (c *Client) Search(ctx context.Context, query string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("search api key not configured")
	}

	body, err := json.Marshal(map[string]any{
		"api_key":        c.apiKey,
		"query":          query,
		"max_results":    c.maxResults,
		"search_depth":   "basic",
		"include_answer": true,
	})
	if err != nil {
		return "", fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse search response: %w", err)
	}

	var out strings.Builder
	if parsed.Answer != "" {
		out.WriteString("Summary: " + parsed.Answer + "\n\n")
	}
	for i, r := range parsed.Results {
		fmt.Fprintf(&out, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return strings.TrimSpace(out.String()), nil
}
