package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/knowflow/knowflow/internal/config"
	"github.com/knowflow/knowflow/internal/control"
	"github.com/knowflow/knowflow/internal/coordinator"
	"github.com/knowflow/knowflow/internal/metrics"
	"github.com/knowflow/knowflow/internal/orchestrator"
	"github.com/knowflow/knowflow/internal/provider"
	"github.com/knowflow/knowflow/internal/store"
	"github.com/knowflow/knowflow/internal/worker"
)

// runtime is the fully wired orchestration core shared by the serve and
// submit commands.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	gateway  *store.SQLite
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// buildRuntime wires provider, storage, workers, coordinators, and the
// orchestrator from configuration.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	gateway, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.Store.Path, err)
	}

	prov, err := buildProvider(cfg)
	if err != nil {
		gateway.Close()
		return nil, err
	}
	logger.Info("provider ready", zap.String("backend", prov.Name()))

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	ctrl := control.New(control.Config{
		MaxRetries:  cfg.Pipeline.MaxRetries,
		BackoffBase: cfg.Pipeline.BackoffBase,
		BackoffCap:  cfg.Pipeline.BackoffCap,
	}, logger, m)

	planGen := worker.NewPlanGenerator(prov, logger, cfg.Pipeline.MaxLessons, cfg.Pipeline.StageTimeout)
	retriever := worker.NewRetriever(prov, logger, cfg.Pipeline.MaxResourcesPerLesson, cfg.Pipeline.StageTimeout)
	planWriter := worker.NewPlanPersister(gateway, logger, cfg.Pipeline.StageTimeout)
	graphGen := worker.NewGraphGenerator(prov, logger, cfg.Pipeline.StageTimeout, uuid.NewString)
	graphWriter := worker.NewGraphPersister(gateway, logger, cfg.Pipeline.StageTimeout)

	plans := coordinator.NewPlan(ctrl, planGen, retriever, planWriter, logger)
	graphs := coordinator.NewGraph(ctrl, graphGen, graphWriter, gateway, logger)

	orch := orchestrator.New(plans, graphs, control.NewScorer(), logger, m)

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		gateway:  gateway,
		orch:     orch,
		registry: registry,
	}, nil
}

func (r *runtime) close() {
	if err := r.gateway.Close(); err != nil {
		r.logger.Warn("closing store", zap.Error(err))
	}
	r.logger.Sync()
}

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider.Backend {
	case "anthropic", "":
		key, _ := config.GetAnthropicAPIKey(cfg)
		return provider.NewAnthropic(provider.AnthropicConfig{
			Model:         anthropic.Model(cfg.Provider.Anthropic.Model),
			APIKey:        key,
			UseAWSBedrock: cfg.Provider.Anthropic.UseAWSBedrock,
			AWSRegion:     cfg.Provider.Anthropic.AWSRegion,
			AWSProfile:    cfg.Provider.Anthropic.AWSProfile,
			MaxTokens:     cfg.Provider.Anthropic.MaxTokens,
		})
	case "openai":
		key, err := config.GetOpenAIAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("openai backend: %w", err)
		}
		return provider.NewOpenAI(provider.OpenAIConfig{
			Model:     cfg.Provider.OpenAI.Model,
			APIKey:    key,
			BaseURL:   cfg.Provider.OpenAI.BaseURL,
			MaxTokens: cfg.Provider.OpenAI.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown provider backend %q", cfg.Provider.Backend)
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
