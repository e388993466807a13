package main

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"llm-proxy/internal/adapter/knowledge"
	"llm-proxy/internal/adapter/llm"
	"llm-proxy/internal/convlog"
	"llm-proxy/internal/docstore"
	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/config"
	"llm-proxy/internal/usecase"
)

// components holds everything the daemon wires together at startup.
type components struct {
	registry  *llm.Registry
	agent     *usecase.Agent
	knowledge usecase.KnowledgeSearcher
	documents *docstore.Store
	convlog   *convlog.Log
}

func initComponents(ctx context.Context, cfg *config.Config, log *slog.Logger) (*components, error) {
	registry, err := initProviders(cfg, log)
	if err != nil {
		return nil, err
	}

	searcher, documents, err := initKnowledge(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var convLog *convlog.Log
	if cfg.Conversations.Path != "" {
		convLog, err = convlog.Open(cfg.Conversations.Path)
		if err != nil {
			return nil, err
		}
	}

	agent := usecase.NewAgent(usecase.AgentConfig{
		Providers:       registry,
		Knowledge:       searcher,
		Sessions:        usecase.NewSessionStore(),
		Tokens:          usecase.NewTokenEstimator(),
		Logger:          log,
		DefaultProvider: cfg.DefaultProvider,
		SystemPrompt:    cfg.SystemPrompt,
	})

	return &components{
		registry:  registry,
		agent:     agent,
		knowledge: searcher,
		documents: documents,
		convlog:   convLog,
	}, nil
}

func initProviders(cfg *config.Config, log *slog.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	for _, pc := range cfg.Providers {
		provider, err := createProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}

		if cfg.CircuitBreaker.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, llm.CircuitBreakerConfig{
				MaxFailures: cfg.CircuitBreaker.MaxFailures,
				Timeout:     cfg.CircuitBreaker.Timeout,
				Interval:    cfg.CircuitBreaker.Interval,
			}, log)
		}

		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
	}

	return registry, nil
}

func createProvider(pc config.ProviderConfig, log *slog.Logger) (domain.ChatProvider, error) {
	switch pc.Type {
	case "openai":
		return llm.NewOpenAIProvider(pc, log), nil
	case "anthropic":
		return llm.NewAnthropicProvider(pc, log), nil
	case "gemini":
		return llm.NewGeminiProvider(pc, log), nil
	case "mistral":
		return llm.NewMistralProvider(pc, log), nil
	case "fireworks":
		return llm.NewFireworksProvider(pc, log), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, pc.Type)
	}
}

// initKnowledge builds the configured knowledge backend. The local backend
// is fed by the document store; the s3 backend lists the bucket per query
// and needs no local documents.
func initKnowledge(ctx context.Context, cfg *config.Config, log *slog.Logger) (usecase.KnowledgeSearcher, *docstore.Store, error) {
	switch cfg.Knowledge.Backend {
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Knowledge.S3.Region),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return knowledge.NewObjectIndex(client, cfg.Knowledge.S3, log), nil, nil

	default:
		index := knowledge.NewLocalIndex()
		documents, err := docstore.New(cfg.Documents, index, log)
		if err != nil {
			return nil, nil, err
		}
		return index, documents, nil
	}
}
