package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lumen-search/backend/pkg/services/llm"
)

const redditBaseURL = "https://www.reddit.com"

// Reddit's public JSON endpoints require a descriptive user agent or they
// aggressively rate limit.
const redditUserAgent = "web:chat.lumen:v1 (by /u/lumen-search)"

type RedditSearch struct {
	baseURL string
}

var _ Tool = (*RedditSearch)(nil)

func NewRedditSearch() *RedditSearch {
	return &RedditSearch{baseURL: redditBaseURL}
}

func (t *RedditSearch) Name() string             { return "reddit_search" }
func (t *RedditSearch) Service() llm.ServiceName { return llm.ToolReddit }
func (t *RedditSearch) Pro() bool                { return false }

func (t *RedditSearch) Definition() llm.FunctionTool {
	return functionTool("reddit_search",
		"Search Reddit posts. Returns post titles, subreddits, scores, and text previews.",
		schema(map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"subreddit": map[string]any{
				"type":        "string",
				"description": "Optional subreddit to restrict the search to, without the r/ prefix",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Number of posts to return, default 5, max 10",
			},
		}, "query"))
}

type redditArgs struct {
	Query     string `json:"query"`
	Subreddit string `json:"subreddit"`
	Limit     int    `json:"limit"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Score       int64   `json:"score"`
	NumComments int64   `json:"num_comments"`
	Permalink   string  `json:"permalink"`
	SelfText    string  `json:"selftext"`
	CreatedUTC  float64 `json:"created_utc"`
}

func (t *RedditSearch) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var a redditArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid reddit_search arguments: %w", err)
	}
	if a.Query == "" {
		return "", fmt.Errorf("reddit_search requires a query")
	}
	if a.Limit <= 0 {
		a.Limit = 5
	}
	if a.Limit > 10 {
		a.Limit = 10
	}

	q := url.Values{
		"q":     {a.Query},
		"limit": {strconv.Itoa(a.Limit)},
		"sort":  {"relevance"},
	}
	path := "/search.json"
	if a.Subreddit != "" {
		path = "/r/" + url.PathEscape(a.Subreddit) + "/search.json"
		q.Set("restrict_sr", "1")
	}
	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", redditUserAgent)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reddit search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reddit search returned status code %d", resp.StatusCode)
	}
	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return "", fmt.Errorf("failed to decode reddit response: %w", err)
	}

	if len(listing.Data.Children) == 0 {
		return "No Reddit posts found", nil
	}
	var sb strings.Builder
	fmt.Fprintln(&sb, "Reddit posts:")
	for i, child := range listing.Data.Children {
		p := child.Data
		fmt.Fprintf(&sb, "%d. [%s](https://www.reddit.com%s)\n", i+1, p.Title, p.Permalink)
		fmt.Fprintf(&sb, "   r/%s by u/%s | %d points, %d comments\n", p.Subreddit, p.Author, p.Score, p.NumComments)
		if p.SelfText != "" {
			fmt.Fprintf(&sb, "   %s\n", truncate(p.SelfText, 280))
		}
	}
	return sb.String(), nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
