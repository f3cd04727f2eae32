package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/llm"
	"github.com/lumen-search/backend/pkg/services/search"
)

type Service struct{}

var _ search.Service = (*Service)(nil)

func NewService() *Service {
	return &Service{}
}

func (s *Service) Name() llm.ServiceName { return llm.SearchEngineBrave }

func (s *Service) Search(ctx context.Context, req search.Request) (search.Results, error) {
	results, err := Search(ctx, req.Query, req.NumResults)
	if err != nil {
		return nil, err
	}
	return results, nil
}

const baseURL = "https://api.search.brave.com/res/v1/web/search"

func Search(ctx context.Context, query string, numResults int) (results Results, err error) {
	q := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(numResults)},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return
	}
	req.Header.Add("X-Subscription-Token", secr.BRAVE_SEARCH_API_KEY.String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("brave search returned status code %d", resp.StatusCode)
		return
	}
	err = json.NewDecoder(resp.Body).Decode(&results)
	return
}

type Results struct {
	Query Query    `json:"query"`
	Type  string   `json:"type"`
	Web   WebClass `json:"web"`
}

type Query struct {
	Original             string `json:"original"`
	Country              string `json:"country"`
	MoreResultsAvailable bool   `json:"more_results_available"`
}

type WebClass struct {
	Type           string      `json:"type"`
	Results        []WebResult `json:"results"`
	FamilyFriendly bool        `json:"family_friendly"`
}

type WebResult struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Description    string   `json:"description"`
	Language       string   `json:"language"`
	FamilyFriendly bool     `json:"family_friendly"`
	Age            string   `json:"age"`
	ExtraSnippets  []string `json:"extra_snippets"`
	MetaURL        MetaURL  `json:"meta_url"`
}

type MetaURL struct {
	Scheme   string `json:"scheme"`
	Netloc   string `json:"netloc"`
	Hostname string `json:"hostname"`
	Path     string `json:"path"`
}

func (r Results) Text(w io.Writer) error {
	if len(r.Web.Results) == 0 {
		fmt.Fprintln(w, "No results found")
		return nil
	}
	for i, result := range r.Web.Results {
		fmt.Fprintf(w, "%d. [%s](%s)\n", i+1, result.Title, result.URL)
		fmt.Fprintf(w, "   Description: %s\n", result.Description)
		if result.Age != "" {
			fmt.Fprintf(w, "   Age: %s\n", result.Age)
		}
		fmt.Fprintf(w, "   Source: %s\n", result.MetaURL.Hostname)
		if len(result.ExtraSnippets) > 0 {
			fmt.Fprintln(w, "   Additional Information:")
			for _, snippet := range result.ExtraSnippets {
				fmt.Fprintf(w, "    - %s\n", snippet)
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}
