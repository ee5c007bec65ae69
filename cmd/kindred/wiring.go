package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/user/kindred/internal/classify"
	"github.com/user/kindred/internal/config"
	convctx "github.com/user/kindred/internal/context"
	"github.com/user/kindred/internal/crisis"
	lifeevents "github.com/user/kindred/internal/events"
	"github.com/user/kindred/internal/orchestrator"
	"github.com/user/kindred/internal/rollup"
	"github.com/user/kindred/internal/state"
	"github.com/user/kindred/internal/types"
	"github.com/user/kindred/pkg/llm"
	"github.com/user/kindred/pkg/llm/openai"
)

// app bundles the wired pipeline shared by serve, chat, and dailytask.
type app struct {
	cfg       *config.Config
	loc       *time.Location
	turns     types.TurnStore
	events    types.EventStore
	summaries types.SummaryStore
	profiles  types.ProfileStore
	users     types.UserDirectory
	orch      *orchestrator.Orchestrator
	job       *rollup.Job
	runner    *rollup.Runner
	close     func() error
}

func buildApp(cfg *config.Config) (*app, error) {
	loc := time.Local
	if tz := cfg.Companion.Timezone; tz != "" && tz != "Local" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
	}

	a := &app{cfg: cfg, loc: loc, close: func() error { return nil }}

	switch cfg.Store.Backend {
	case "", "file":
		a.turns = state.NewTurnStore(cfg.DataDir, loc)
		a.events = state.NewEventStore(cfg.DataDir)
		a.summaries = state.NewSummaryStore(cfg.DataDir)
		a.profiles = state.NewProfileStore(cfg.DataDir)
		a.users = state.NewDirectory(cfg.DataDir)
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = filepath.Join(cfg.DataDir, "kindred.db")
		}
		db, err := state.OpenSQLStore(path, loc)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.turns = db
		a.events = db
		a.summaries = db.Summaries()
		a.profiles = db.Profiles()
		a.users = db
		a.close = db.Close
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}

	log := slog.Default()

	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	gate := classify.NewGate(provider)
	emotions := classify.NewEmotionClassifier(provider, log)
	extractor := classify.NewExtractor(provider)
	scheduler := lifeevents.NewScheduler(extractor, provider, a.events, loc, log)
	responder := crisis.NewResponder(provider, log)

	engine, err := convctx.New(cfg.LLM.Model, cfg.Companion.ContextBudget, cfg.Companion.RecentTurns, a.turns, a.summaries, loc)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create context engine: %w", err)
	}

	a.orch = orchestrator.New(orchestrator.Config{
		Gate:      gate,
		Emotions:  emotions,
		Scheduler: scheduler,
		Crisis:    responder,
		Assembler: engine,
		Provider:  provider,
		Turns:     a.turns,
		Profiles:  a.profiles,
		Location:  loc,
		Logger:    log,
	})

	workers := int64(cfg.Companion.RollupWorkers)
	if workers < 1 {
		workers = 1
	}
	a.job = rollup.NewJob(scheduler, a.events, a.turns, a.summaries, a.profiles, provider, loc, log)
	a.runner = rollup.NewRunner(a.job, a.users, workers, log)

	return a, nil
}
