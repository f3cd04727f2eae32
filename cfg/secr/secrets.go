package secr

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lumen-search/backend/cfg/envs"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/secretmanager/v1"
)

type SecretID string

// Secrets prefetched at startup.
var (
	BRAVE_SEARCH_API_KEY  SecretID
	SEARCH_API_KEY        SecretID
	YOUTUBE_API_KEY       SecretID
	TMDB_API_KEY          SecretID
	X_BEARER_TOKEN        SecretID
	ELEVENLABS_API_KEY    SecretID
	OPENAI_LLM_API_KEY    SecretID
	AUDIO_STORE_API_KEY   SecretID
	LIBSQL_ENCRYPTION_KEY SecretID
	TURSO_AUTH_TOKEN      SecretID
)

func (s SecretID) String() string { return string(s) }

// Client fetches secrets on demand. Secrets that the hot path needs are
// prefetched into the package-level vars by Setup.
type Client struct {
	sm *secretmanager.Service

	mu    sync.RWMutex
	cache map[string]string
}

func (secPtr *SecretID) fetch(
	ctx context.Context,
	group *errgroup.Group,
	sm *secretmanager.Service,
	secName string,
) {
	group.Go(func() error {
		var sb strings.Builder
		sb.WriteString("projects/")
		sb.WriteString(envs.PROJECT_ID)
		sb.WriteString("/secrets/")
		sb.WriteString(secName)
		sb.WriteString("/versions/latest")
		sid := sb.String()
		s, err := sm.Projects.Secrets.Versions.Access(sid).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get secret: %s: %w", sid, err)
		}
		decoded, err := base64.StdEncoding.DecodeString(s.Payload.Data)
		if err != nil {
			return fmt.Errorf("failed to decode secret: %s: %w", sid, err)
		}
		*secPtr = SecretID(decoded)
		slog.Debug("fetched secret", "id", sid)
		return nil
	})
}

func Setup(ctx context.Context) (*Client, error) {
	if err := envs.Load(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	sm, err := secretmanager.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager: %w", err)
	}
	group, ctx := errgroup.WithContext(ctx)
	BRAVE_SEARCH_API_KEY.fetch(ctx, group, sm, "BRAVE_SEARCH_API_KEY")
	SEARCH_API_KEY.fetch(ctx, group, sm, "SEARCH_API_KEY")
	YOUTUBE_API_KEY.fetch(ctx, group, sm, "YOUTUBE_API_KEY")
	TMDB_API_KEY.fetch(ctx, group, sm, "TMDB_API_KEY")
	X_BEARER_TOKEN.fetch(ctx, group, sm, "X_BEARER_TOKEN")
	ELEVENLABS_API_KEY.fetch(ctx, group, sm, "ELEVENLABS_API_KEY")
	OPENAI_LLM_API_KEY.fetch(ctx, group, sm, "OPENAI_LLM_API_KEY")
	AUDIO_STORE_API_KEY.fetch(ctx, group, sm, "AUDIO_STORE_API_KEY")
	LIBSQL_ENCRYPTION_KEY.fetch(ctx, group, sm, "LIBSQL_ENCRYPTION_KEY")
	switch envs.LUMEN_ENV {
	case envs.EnvStaging:
		TURSO_AUTH_TOKEN.fetch(ctx, group, sm, "STAGING_TURSO_AUTH_TOKEN")
	case envs.EnvProd:
		TURSO_AUTH_TOKEN.fetch(ctx, group, sm, "PROD_TURSO_AUTH_TOKEN")
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return &Client{sm: sm, cache: make(map[string]string)}, nil
}

// Fetch returns the named secret, checking the process environment first so
// local runs don't need Secret Manager access.
func (cl *Client) Fetch(ctx context.Context, name string) (string, error) {
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	cl.mu.RLock()
	v, ok := cl.cache[name]
	cl.mu.RUnlock()
	if ok {
		return v, nil
	}
	sid := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", envs.PROJECT_ID, name)
	s, err := cl.sm.Projects.Secrets.Versions.Access(sid).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get secret: %s: %w", sid, err)
	}
	decoded, err := base64.StdEncoding.DecodeString(s.Payload.Data)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %s: %w", sid, err)
	}
	cl.mu.Lock()
	cl.cache[name] = string(decoded)
	cl.mu.Unlock()
	slog.Debug("fetched secret", "id", sid)
	return string(decoded), nil
}

// FetchEnv fetches a secret whose name is prefixed by the current environment,
// e.g. PROD_STRIPE_SECRET_KEY when running in prod.
func (cl *Client) FetchEnv(ctx context.Context, suffix string) (string, error) {
	var name string
	switch envs.LUMEN_ENV {
	case envs.EnvStaging:
		name = "STAGING_" + suffix
	case envs.EnvProd:
		name = "PROD_" + suffix
	default:
		name = "LOCAL_" + suffix
	}
	return cl.Fetch(ctx, name)
}
