package search

import (
	"context"
	"io"
	"log/slog"

	"github.com/lumen-search/backend/pkg/services/llm"
)

type Service interface {
	Search(ctx context.Context, req Request) (results Results, err error)
	Name() llm.ServiceName
}

type Request struct {
	Query      string
	NumResults int
}

type Results interface {
	Text(w io.Writer) error
}

// Client tries each configured engine in order until one succeeds.
type Client struct {
	services []Service
}

type Option func(*Client)

func WithService(svc Service) Option {
	return func(c *Client) {
		c.services = append(c.services, svc)
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Search(ctx context.Context, req Request) (results Results, engine llm.ServiceName, err error) {
	for _, svc := range c.services {
		results, err = svc.Search(ctx, req)
		if err == nil {
			return results, svc.Name(), nil
		}
		slog.Warn("Retrying search with next service", "engine", svc.Name(), "error", err)
	}
	return nil, "", err
}
