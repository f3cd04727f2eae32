package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/llm"
	"github.com/lumen-search/backend/types/ty"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

type YouTubeSearch struct {
	sd ty.ShutdownContext
	mu sync.RWMutex
	yt *youtube.Service
}

var _ Tool = (*YouTubeSearch)(nil)

func NewYouTubeSearch(shutdown ty.ShutdownContext) *YouTubeSearch {
	return &YouTubeSearch{sd: shutdown}
}

func (t *YouTubeSearch) Name() string             { return "youtube_search" }
func (t *YouTubeSearch) Service() llm.ServiceName { return llm.ToolYouTube }
func (t *YouTubeSearch) Pro() bool                { return false }

func (t *YouTubeSearch) Definition() llm.FunctionTool {
	return functionTool("youtube_search",
		"Search YouTube videos. Returns titles, channels, publish dates, and links.",
		schema(map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"maxResults": map[string]any{
				"type":        "integer",
				"description": "Number of videos to return, default 5, max 10",
			},
		}, "query"))
}

func (t *YouTubeSearch) setup() error {
	t.mu.RLock()
	yt := t.yt
	t.mu.RUnlock()
	if yt != nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.yt != nil {
		return nil
	}
	var err error
	t.yt, err = youtube.NewService(t.sd.Background, option.WithAPIKey(secr.YOUTUBE_API_KEY.String()))
	if err != nil {
		return fmt.Errorf("failed to initialize youtube: %w", err)
	}
	slog.Debug("youtube search initialized")
	return nil
}

type youtubeArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
}

func (t *YouTubeSearch) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var a youtubeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid youtube_search arguments: %w", err)
	}
	if a.Query == "" {
		return "", fmt.Errorf("youtube_search requires a query")
	}
	if a.MaxResults <= 0 {
		a.MaxResults = 5
	}
	if a.MaxResults > 10 {
		a.MaxResults = 10
	}
	if err := t.setup(); err != nil {
		return "", err
	}

	call := t.yt.Search.List([]string{"snippet"}).
		Context(ctx).
		Q(a.Query).
		Type("video").
		MaxResults(int64(a.MaxResults))
	resp, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("youtube search failed: %w", err)
	}

	if len(resp.Items) == 0 {
		return "No videos found", nil
	}
	var sb strings.Builder
	fmt.Fprintln(&sb, "YouTube videos:")
	for i, item := range resp.Items {
		fmt.Fprintf(&sb, "%d. [%s](https://www.youtube.com/watch?v=%s)\n",
			i+1, item.Snippet.Title, item.Id.VideoId)
		fmt.Fprintf(&sb, "   %s | %s\n", item.Snippet.ChannelTitle, item.Snippet.PublishedAt)
		if item.Snippet.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", truncate(item.Snippet.Description, 200))
		}
	}
	return sb.String(), nil
}
