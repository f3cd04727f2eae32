package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumen-search/backend/pkg/services/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name string
	pro  bool
	out  string
}

func (f *fakeTool) Name() string             { return f.name }
func (f *fakeTool) Service() llm.ServiceName { return llm.ServiceName(f.name) }
func (f *fakeTool) Pro() bool                { return f.pro }
func (f *fakeTool) Definition() llm.FunctionTool {
	return functionTool(f.name, "fake", schema(map[string]any{}))
}
func (f *fakeTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	return f.out, nil
}

func TestRegistryDefinitionsGating(t *testing.T) {
	r := NewRegistry(
		&fakeTool{name: "free-a"},
		&fakeTool{name: "premium-b", pro: true},
		&fakeTool{name: "free-c"},
	)

	free := r.Definitions(false)
	require.Len(t, free, 2)
	assert.Equal(t, "free-a", free[0].Function.Name)
	assert.Equal(t, "free-c", free[1].Function.Name)

	pro := r.Definitions(true)
	require.Len(t, pro, 3)
	assert.Equal(t, "premium-b", pro[1].Function.Name)
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry(
		&fakeTool{name: "free-a", out: "hello"},
		&fakeTool{name: "premium-b", pro: true, out: "secret"},
	)
	ctx := context.Background()

	out, err := r.Dispatch(ctx, llm.ToolCall{Name: "free-a"}, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = r.Dispatch(ctx, llm.ToolCall{Name: "premium-b"}, false)
	assert.ErrorIs(t, err, ErrProRequired)

	out, err = r.Dispatch(ctx, llm.ToolCall{Name: "premium-b"}, true)
	require.NoError(t, err)
	assert.Equal(t, "secret", out)

	_, err = r.Dispatch(ctx, llm.ToolCall{Name: "nope"}, true)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRedditSearchCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/golang/search.json", r.URL.Path)
		assert.Equal(t, "generics", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("restrict_sr"))
		assert.Equal(t, redditUserAgent, r.Header.Get("User-Agent"))
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"children": []any{
					map[string]any{"data": map[string]any{
						"title":        "Generics in practice",
						"subreddit":    "golang",
						"author":       "gopher",
						"score":        412,
						"num_comments": 88,
						"permalink":    "/r/golang/comments/abc/generics_in_practice/",
						"selftext":     "What patterns have worked for you?",
					}},
				},
			},
		})
	}))
	defer srv.Close()

	tool := &RedditSearch{baseURL: srv.URL}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"generics","subreddit":"golang"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Generics in practice")
	assert.Contains(t, out, "r/golang by u/gopher")
	assert.Contains(t, out, "412 points, 88 comments")
}

func TestRedditSearchEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"children": []any{}}})
	}))
	defer srv.Close()

	tool := &RedditSearch{baseURL: srv.URL}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"zzz"}`))
	require.NoError(t, err)
	assert.Equal(t, "No Reddit posts found", out)
}

func TestRedditSearchRequiresQuery(t *testing.T) {
	tool := NewRedditSearch()
	_, err := tool.Call(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestMovieSearchCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/multi", r.URL.Path)
		assert.Equal(t, "dune", r.URL.Query().Get("query"))
		json.NewEncoder(w).Encode(map[string]any{
			"page": 1,
			"results": []any{
				map[string]any{
					"media_type":   "movie",
					"title":        "Dune",
					"release_date": "2021-10-22",
					"vote_average": 7.8,
					"vote_count":   11000,
					"overview":     "Paul Atreides leads nomadic tribes in a battle for Arrakis.",
				},
				map[string]any{
					"media_type": "person",
					"name":       "Some Actor",
				},
				map[string]any{
					"media_type":     "tv",
					"name":           "Dune: Prophecy",
					"first_air_date": "2024-11-17",
					"vote_average":   7.1,
					"vote_count":     300,
				},
			},
		})
	}))
	defer srv.Close()

	tool := &MovieSearch{baseURL: srv.URL}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"dune"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "1. Dune (movie, 2021-10-22)")
	assert.Contains(t, out, "2. Dune: Prophecy (tv, 2024-11-17)")
	assert.NotContains(t, out, "Some Actor")
	assert.Contains(t, out, "Rating: 7.8/10 (11000 votes)")
}

func TestMovieSearchOnlyPeople(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []any{
				map[string]any{"media_type": "person", "name": "Someone"},
			},
		})
	}))
	defer srv.Close()

	tool := &MovieSearch{baseURL: srv.URL}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"someone"}`))
	require.NoError(t, err)
	assert.Equal(t, "No movies or TV shows found", out)
}

func TestXSearchCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "golang release", r.URL.Query().Get("query"))
		assert.Equal(t, "10", r.URL.Query().Get("max_results"))
		json.NewEncoder(w).Encode(map[string]any{
			"data": []any{
				map[string]any{
					"id":         "1",
					"text":       "Go 1.24 is out!",
					"author_id":  "u1",
					"created_at": "2025-02-11T17:00:00.000Z",
					"public_metrics": map[string]any{
						"like_count":    512,
						"retweet_count": 120,
						"reply_count":   30,
					},
				},
			},
			"includes": map[string]any{
				"users": []any{
					map[string]any{"id": "u1", "name": "The Go Team", "username": "golang"},
				},
			},
			"meta": map[string]any{"result_count": 1},
		})
	}))
	defer srv.Close()

	tool := &XSearch{baseURL: srv.URL}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"query":"golang release"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "The Go Team (@golang)")
	assert.Contains(t, out, "Go 1.24 is out!")
	assert.Contains(t, out, "512 likes, 120 reposts, 30 replies")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
	assert.Equal(t, "héllo", truncate("héllo", 5))
}
