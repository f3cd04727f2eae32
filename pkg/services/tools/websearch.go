package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumen-search/backend/pkg/services/llm"
	"github.com/lumen-search/backend/pkg/services/search"
)

type WebSearch struct {
	client *search.Client
}

var _ Tool = (*WebSearch)(nil)

func NewWebSearch(client *search.Client) *WebSearch {
	return &WebSearch{client: client}
}

func (t *WebSearch) Name() string             { return "web_search" }
func (t *WebSearch) Service() llm.ServiceName { return llm.ToolWebSearch }
func (t *WebSearch) Pro() bool                { return false }

func (t *WebSearch) Definition() llm.FunctionTool {
	return functionTool("web_search",
		"Search the web for current information. Returns titles, links, and snippets.",
		schema(map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"numResults": map[string]any{
				"type":        "integer",
				"description": "Number of results to return, default 5, max 10",
			},
		}, "query"))
}

type webSearchArgs struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
}

func (t *WebSearch) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var a webSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid web_search arguments: %w", err)
	}
	if a.Query == "" {
		return "", fmt.Errorf("web_search requires a query")
	}
	if a.NumResults <= 0 {
		a.NumResults = 5
	}
	if a.NumResults > 10 {
		a.NumResults = 10
	}
	results, engine, err := t.client.Search(ctx, search.Request{
		Query:      a.Query,
		NumResults: a.NumResults,
	})
	if err != nil {
		return "", fmt.Errorf("web search failed: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Web results (%s):\n", engine)
	if err := results.Text(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
