package google

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/llm"
	"github.com/lumen-search/backend/pkg/services/search"
	"github.com/lumen-search/backend/types/ty"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type Service struct {
	sd           ty.ShutdownContext
	mu           sync.RWMutex
	customSearch *customsearch.Service
}

var _ search.Service = (*Service)(nil)

func NewService(shutdown ty.ShutdownContext) *Service {
	return &Service{sd: shutdown}
}

func (s *Service) Name() llm.ServiceName { return llm.SearchEngineGoogle }

func (s *Service) setup(ctx context.Context) error {
	s.mu.RLock()
	svc := s.customSearch
	s.mu.RUnlock()
	if svc != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customSearch != nil {
		return nil
	}
	var err error
	s.customSearch, err = customsearch.NewService(s.sd.Background, option.WithAPIKey(secr.SEARCH_API_KEY.String()))
	if err != nil {
		return fmt.Errorf("failed to initialize custom search: %w", err)
	}
	slog.Debug("google search initialized")
	return nil
}

func (s *Service) Search(ctx context.Context, req search.Request) (search.Results, error) {
	if err := s.setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup custom search: %w", err)
	}
	ser, err := s.customSearch.Cse.List().Context(ctx).Do(
		googleapi.QueryParameter("q", req.Query),
		googleapi.QueryParameter("num", strconv.Itoa(req.NumResults)),
		googleapi.QueryParameter("cx", envs.SEARCH_ENGINE_ID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return &Results{Items: ser.Items}, nil
}

type Results struct {
	Items []*customsearch.Result
}

func (r *Results) Text(w io.Writer) error {
	if len(r.Items) == 0 {
		w.Write([]byte("No results found"))
		return nil
	}
	for i, item := range r.Items {
		fmt.Fprintf(w,
			"%d. [%s](%s)\n\t- %s\n\n", i+1,
			item.Title, item.Link, item.Snippet,
		)
	}
	return nil
}
