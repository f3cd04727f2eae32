package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/llm"
)

const xBaseURL = "https://api.x.com"

type XSearch struct {
	baseURL string
}

var _ Tool = (*XSearch)(nil)

func NewXSearch() *XSearch {
	return &XSearch{baseURL: xBaseURL}
}

func (t *XSearch) Name() string             { return "x_search" }
func (t *XSearch) Service() llm.ServiceName { return llm.ToolXSearch }
func (t *XSearch) Pro() bool                { return true }

func (t *XSearch) Definition() llm.FunctionTool {
	return functionTool("x_search",
		"Search recent posts on X (Twitter). Returns post text, authors, and engagement counts.",
		schema(map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query, supports X search operators",
			},
			"maxResults": map[string]any{
				"type":        "integer",
				"description": "Number of posts to return, default 10, max 25",
			},
		}, "query"))
}

type xSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
}

type xSearchResponse struct {
	Data     []xTweet `json:"data"`
	Includes struct {
		Users []xUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

type xTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		LikeCount    int64 `json:"like_count"`
		RetweetCount int64 `json:"retweet_count"`
		ReplyCount   int64 `json:"reply_count"`
	} `json:"public_metrics"`
}

type xUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

func (t *XSearch) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var a xSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid x_search arguments: %w", err)
	}
	if a.Query == "" {
		return "", fmt.Errorf("x_search requires a query")
	}
	if a.MaxResults < 10 {
		// The recent search endpoint rejects max_results below 10.
		a.MaxResults = 10
	}
	if a.MaxResults > 25 {
		a.MaxResults = 25
	}

	q := url.Values{
		"query":        {a.Query},
		"max_results":  {strconv.Itoa(a.MaxResults)},
		"tweet.fields": {"created_at,public_metrics,author_id"},
		"expansions":   {"author_id"},
		"user.fields":  {"name,username"},
	}
	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+"/2/tweets/search/recent?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+secr.X_BEARER_TOKEN.String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("x search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("x search returned status code %d", resp.StatusCode)
	}
	var search xSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return "", fmt.Errorf("failed to decode x response: %w", err)
	}

	if len(search.Data) == 0 {
		return "No X posts found", nil
	}
	users := make(map[string]xUser, len(search.Includes.Users))
	for _, u := range search.Includes.Users {
		users[u.ID] = u
	}
	var sb strings.Builder
	fmt.Fprintln(&sb, "X posts:")
	for i, tw := range search.Data {
		author := tw.AuthorID
		if u, ok := users[tw.AuthorID]; ok {
			author = fmt.Sprintf("%s (@%s)", u.Name, u.Username)
		}
		fmt.Fprintf(&sb, "%d. %s | %s\n", i+1, author, tw.CreatedAt)
		fmt.Fprintf(&sb, "   %s\n", truncate(tw.Text, 280))
		fmt.Fprintf(&sb, "   %d likes, %d reposts, %d replies\n",
			tw.PublicMetrics.LikeCount, tw.PublicMetrics.RetweetCount, tw.PublicMetrics.ReplyCount)
	}
	return sb.String(), nil
}
