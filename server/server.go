// Package server assembles the store, the pipeline services and the HTTP
// surface into a runnable process.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/conductor-hq/conductor/internal/profile"
	"github.com/conductor-hq/conductor/plugin/ai"
	"github.com/conductor-hq/conductor/server/router/apiv1"
	"github.com/conductor-hq/conductor/server/runner/miner"
	"github.com/conductor-hq/conductor/server/service/drafter"
	"github.com/conductor-hq/conductor/server/service/execution"
	"github.com/conductor-hq/conductor/server/service/pipeline"
	"github.com/conductor-hq/conductor/server/service/policy"
	"github.com/conductor-hq/conductor/server/service/segmenter"
	"github.com/conductor-hq/conductor/store"
)

// Server owns the long-running components.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	pipeline   *pipeline.Service
	miner      *miner.Runner
}

// NewServer assembles all components from the profile.
func NewServer(ctx context.Context, p *profile.Profile, st *store.Store) (*Server, error) {
	rules, err := loadRules(p)
	if err != nil {
		return nil, err
	}

	drafterOpts := []drafter.Option{}
	if p.IsAIEnabled() {
		enricher, err := ai.NewEnricher(ai.Config{
			Provider:    p.AIProvider,
			APIKey:      p.AIAPIKey,
			BaseURL:     p.AIBaseURL,
			Model:       p.AIModel,
			MaxTokens:   1024,
			Temperature: 0.3,
			Timeout:     30 * time.Second,
		})
		if err != nil {
			slog.Warn("ai enrichment disabled", slog.String("error", err.Error()))
		} else {
			drafterOpts = append(drafterOpts, drafter.WithEnricher(enricher))
		}
	}

	registry := execution.NewRegistry()
	for _, actionType := range []store.ActionType{
		store.ActionEmailDraft, store.ActionCalendarEvent, store.ActionNotesPage, store.ActionGeneric,
	} {
		// Dry-run capabilities by default; real service clients replace
		// these per deployment.
		if err := registry.Register(actionType, execution.NewLogCapability(nil)); err != nil {
			return nil, err
		}
	}

	engine := policy.NewEngine(policy.DefaultThresholds(), policy.DefaultGates())
	pipelineService := pipeline.NewService(pipeline.Options{
		Store:     st,
		Segmenter: segmenter.New(rules),
		Drafter:   drafter.New(drafterOpts...),
		Policy:    engine,
		Runner:    execution.NewRunner(registry, nil),
	})

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.CORS())
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	apiv1.NewAPIV1Service(pipelineService).RegisterRoutes(echoServer.Group("/api/v1"))

	return &Server{
		Profile:    p,
		Store:      st,
		echoServer: echoServer,
		pipeline:   pipelineService,
		miner:      miner.NewRunner(st, engine.Gates(), miner.DefaultCriteria(), p.MinerInterval, nil),
	}, nil
}

func loadRules(p *profile.Profile) (*segmenter.Rules, error) {
	var rules *segmenter.Rules
	if p.RulesPath != "" {
		loaded, err := segmenter.LoadRules(p.RulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	} else {
		rules = segmenter.DefaultRules()
	}
	if p.InactivityGap > 0 {
		rules.InactivityGapMs = p.InactivityGap.Milliseconds()
	}
	return rules, nil
}

// Start runs the HTTP server, the pipeline loops and the miner until the
// context is canceled.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.pipeline.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.miner.Run(ctx)
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
		if err := s.echoServer.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echoServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown closes the store after the run loops have stopped.
func (s *Server) Shutdown() {
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.String("error", err.Error()))
	}
	slog.Info("conductor stopped")
}

// Pipeline exposes the pipeline service for embedding callers.
func (s *Server) Pipeline() *pipeline.Service {
	return s.pipeline
}
