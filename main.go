package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lumen-search/backend/cfg/envs"
	api "github.com/lumen-search/backend/pkg/api/v1"
	"github.com/lumen-search/backend/pkg/core"
	"github.com/lumen-search/backend/pkg/middleware"
	"github.com/lumen-search/backend/pkg/services/assistant"
	"github.com/lumen-search/backend/pkg/services/db"
	"github.com/lumen-search/backend/pkg/services/llm"
	"github.com/lumen-search/backend/pkg/services/llm/claude"
	"github.com/lumen-search/backend/pkg/services/llm/gemini"
	"github.com/lumen-search/backend/pkg/services/llm/openai/gpt"
	"github.com/lumen-search/backend/pkg/services/search"
	"github.com/lumen-search/backend/pkg/services/search/brave"
	"github.com/lumen-search/backend/pkg/services/search/google"
	"github.com/lumen-search/backend/pkg/services/stripe"
	"github.com/lumen-search/backend/pkg/services/tools"
	"github.com/lumen-search/backend/pkg/services/userdata"
	"github.com/lumen-search/backend/pkg/services/voice"
	"github.com/lumen-search/backend/types/ty"
)

const shutdownDuration = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	var shutdownWG sync.WaitGroup
	defer shutdownWG.Wait()
	setupLogger()

	sc, err := core.NewClient(ctx)
	if err != nil {
		slog.Error("failed to initialize core clients", "error", err)
		os.Exit(1)
	}
	if err := db.Setup(ctx, &shutdownWG); err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	sd := ty.ShutdownContext{
		Background:       ctx,
		WaitGroup:        &shutdownWG,
		ShutdownDuration: shutdownDuration,
	}

	searchClient := search.NewClient(
		search.WithService(google.NewService(sd)),
		search.WithService(brave.NewService()),
	)
	userData := userdata.NewService()
	registry := tools.NewRegistry(
		tools.NewWebSearch(searchClient),
		tools.NewYouTubeSearch(sd),
		tools.NewRedditSearch(),
		tools.NewXSearch(),
		tools.NewMovieSearch(),
	)
	providers := map[llm.ServiceName]llm.Provider{
		llm.ModelGemini15Flash:  gemini.NewService(),
		llm.ModelGemini15Pro:    gemini.NewService(),
		llm.ModelClaude35Sonnet: claude.NewService(),
		llm.ModelGPT4o:          gpt.NewService(),
		llm.ModelGPT4oMini:      gpt.NewService(),
	}
	assist := assistant.NewService(sd, userData, registry, providers)
	voiceService := voice.NewService(sc.FileStorage)

	mux := http.NewServeMux()
	apiService := api.NewService(sd, sc, api.ServiceClients{
		Assistant:    assist,
		UserData:     userData,
		SearchClient: searchClient,
		Voice:        voiceService,
	})
	apiService.Routes(mux)
	stripe.NewClient(sc.Secr, sc.Auth, userData).Routes(mux)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:    ":" + port,
		Handler: middleware.NewCors().Handler(mux),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDuration)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "port", port, "env", envs.LUMEN_ENV)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func setupLogger() {
	if os.Getenv("LUMEN_ENV") == envs.EnvLocal.String() || os.Getenv("LUMEN_ENV") == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelDebug})))
		return
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout,
		&slog.HandlerOptions{Level: slog.LevelInfo})))
}
