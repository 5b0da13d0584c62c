package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/riskdesk/internal/cache"
	"github.com/Veraticus/riskdesk/internal/chat"
	"github.com/Veraticus/riskdesk/internal/config"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/risk"
	"github.com/Veraticus/riskdesk/internal/rules"
	"github.com/Veraticus/riskdesk/internal/storage"
)

// app holds the components a command needs. Provider-backed components are
// built on demand so commands that never call the provider work without
// credentials.
type app struct {
	cfg   *config.Config
	store *storage.SQLiteStorage
	rules *rules.Store
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ruleStore, err := rules.Open(cfg.RulesPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open rule base: %w", err)
	}
	return &app{cfg: cfg, store: store, rules: ruleStore}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// provider builds the guarded LLM client from configuration.
func (a *app) provider() (*llm.Guard, error) {
	return llm.New(a.cfg.ClientConfig())
}

func (a *app) assessor(client llm.Client) (*risk.CustomerAssessor, error) {
	scorer, err := risk.NewScorer(client, a.rules)
	if err != nil {
		return nil, err
	}
	profiles, err := risk.NewProfileScorer(client, a.store)
	if err != nil {
		return nil, err
	}
	aggregator, err := risk.NewAggregator(client)
	if err != nil {
		return nil, err
	}
	mutator, err := risk.NewMutator(client, a.rules)
	if err != nil {
		return nil, err
	}
	return risk.NewCustomerAssessor(a.store, scorer, profiles, aggregator,
		risk.WithMutator(mutator),
		risk.WithRecorder(a.store),
		risk.WithRecent(a.cfg.Risk.RecentTransactions),
	)
}

func (a *app) pages(client llm.Client) (*cache.Orchestrator, error) {
	scorer, err := risk.NewScorer(client, a.rules)
	if err != nil {
		return nil, err
	}
	return cache.New(a.store, scorer, a.cacheOptions())
}

// cachedPages serves only pages already in the cache directory.
func (a *app) cachedPages() (*cache.Orchestrator, error) {
	return cache.New(a.store, nil, a.cacheOptions())
}

func (a *app) cacheOptions() cache.Options {
	return cache.Options{Dir: a.cfg.Cache.Dir, PageSize: a.cfg.Cache.PageSize}
}

func (a *app) chat(client llm.Client) (*chat.Pipeline, error) {
	classifier, err := chat.NewClassifier(client, a.cfg.Chat.Keywords)
	if err != nil {
		return nil, err
	}
	return chat.NewPipeline(client, a.store, classifier)
}
