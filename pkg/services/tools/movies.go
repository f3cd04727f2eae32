package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/llm"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

type MovieSearch struct {
	baseURL string
}

var _ Tool = (*MovieSearch)(nil)

func NewMovieSearch() *MovieSearch {
	return &MovieSearch{baseURL: tmdbBaseURL}
}

func (t *MovieSearch) Name() string             { return "movie_search" }
func (t *MovieSearch) Service() llm.ServiceName { return llm.ToolMovieSearch }
func (t *MovieSearch) Pro() bool                { return true }

func (t *MovieSearch) Definition() llm.FunctionTool {
	return functionTool("movie_search",
		"Search movies and TV shows. Returns titles, release dates, ratings, and plot summaries.",
		schema(map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Movie or TV show title to search for",
			},
		}, "query"))
}

type movieArgs struct {
	Query string `json:"query"`
}

type tmdbSearchResponse struct {
	Page    int          `json:"page"`
	Results []tmdbResult `json:"results"`
}

type tmdbResult struct {
	MediaType    string  `json:"media_type"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
	Overview     string  `json:"overview"`
}

func (t *MovieSearch) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var a movieArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid movie_search arguments: %w", err)
	}
	if a.Query == "" {
		return "", fmt.Errorf("movie_search requires a query")
	}

	q := url.Values{
		"query":         {a.Query},
		"api_key":       {secr.TMDB_API_KEY.String()},
		"include_adult": {"false"},
	}
	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+"/search/multi?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("movie search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("movie search returned status code %d", resp.StatusCode)
	}
	var search tmdbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return "", fmt.Errorf("failed to decode movie response: %w", err)
	}

	if len(search.Results) == 0 {
		return "No movies or TV shows found", nil
	}
	var sb strings.Builder
	fmt.Fprintln(&sb, "Movie/TV results:")
	count := 0
	for _, r := range search.Results {
		if r.MediaType != "movie" && r.MediaType != "tv" {
			continue
		}
		count++
		if count > 5 {
			break
		}
		title := r.Title
		date := r.ReleaseDate
		if r.MediaType == "tv" {
			title = r.Name
			date = r.FirstAirDate
		}
		fmt.Fprintf(&sb, "%d. %s (%s, %s)\n", count, title, r.MediaType, date)
		fmt.Fprintf(&sb, "   Rating: %.1f/10 (%d votes)\n", r.VoteAverage, r.VoteCount)
		if r.Overview != "" {
			fmt.Fprintf(&sb, "   %s\n", truncate(r.Overview, 280))
		}
	}
	if count == 0 {
		return "No movies or TV shows found", nil
	}
	return sb.String(), nil
}
