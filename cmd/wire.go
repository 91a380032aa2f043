package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"query-assistant/handler"
	"query-assistant/internal/config"
	"query-assistant/internal/integrations/gemini"
	"query-assistant/internal/integrations/openai"
	"query-assistant/internal/integrations/paramstore"
	"query-assistant/internal/repository"
	"query-assistant/internal/usecase"
)

const startupPingTimeout = 10 * time.Second

type app struct {
	handler    *handler.Handler
	svc        *usecase.Service
	closeStore func(context.Context) error
}

// close drains pending history writes, then releases the store.
func (a *app) close(ctx context.Context) error {
	a.svc.Wait()
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore(ctx)
}

// storeHandle is what every history backend offers beyond usecase.HistoryStore.
type storeHandle interface {
	usecase.HistoryStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
	}

	llm, err := newCompleter(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	schema, err := cfg.Schema()
	if err != nil {
		closeQuietly(store)
		return nil, err
	}

	// A nil storeHandle must reach NewService as an untyped nil.
	var history usecase.HistoryStore
	var closeStore func(context.Context) error
	if store != nil {
		history = store
		closeStore = store.Close
	}

	svc, err := usecase.NewService(llm, history, logger, usecase.Options{
		Schema:            schema,
		Dialect:           cfg.Dialect(),
		HistoryLimit:      cfg.History.Limit,
		MaxInputLength:    cfg.Query.MaxInputLength,
		CompletionTimeout: cfg.LLM.Timeout,
		PersistTimeout:    cfg.History.PersistTimeout,
	})
	if err != nil {
		closeQuietly(store)
		return nil, fmt.Errorf("create service: %w", err)
	}

	h, err := handler.NewHandler(svc, logger, handler.Options{
		StrictStatus:   cfg.HTTP.StrictStatus,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	if err != nil {
		closeQuietly(store)
		return nil, fmt.Errorf("create handler: %w", err)
	}

	return &app{handler: h, svc: svc, closeStore: closeStore}, nil
}

func newCompleter(ctx context.Context, cfg config.Config, awsCfg aws.Config) (usecase.Completer, error) {
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		key, err := apiKey(ctx, cfg.LLM.OpenAIAPIKey, cfg.LLM.ParamPrefix, paramstore.OpenAITokenParam, awsCfg)
		if err != nil {
			return nil, err
		}
		var opts []openai.Option
		if cfg.LLM.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.OpenAIBaseURL))
		}
		c, err := openai.NewClient(key, cfg.LLM.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("create OpenAI client: %w", err)
		}
		return c, nil
	default:
		key, err := apiKey(ctx, cfg.LLM.GoogleAPIKey, cfg.LLM.ParamPrefix, paramstore.GoogleTokenParam, awsCfg)
		if err != nil {
			return nil, err
		}
		c, err := gemini.NewClient(ctx, key, cfg.LLM.Model)
		if err != nil {
			return nil, fmt.Errorf("create Gemini client: %w", err)
		}
		return c, nil
	}
}

// apiKey prefers the configured key and falls back to SSM under prefix.
func apiKey(ctx context.Context, configured, prefix, param string, awsCfg aws.Config) (string, error) {
	if configured != "" {
		return configured, nil
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", fmt.Errorf("create SSM client: %w", err)
	}
	key, err := paramstore.Token(ctx, ps, paramstore.ParameterName(prefix, param))
	if err != nil {
		return "", fmt.Errorf("resolve API key: %w", err)
	}
	return key, nil
}

// openStore connects the configured backend and verifies it answers. It
// returns nil when history is disabled.
func openStore(ctx context.Context, cfg config.Config, awsCfg aws.Config) (storeHandle, error) {
	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()

	var (
		store storeHandle
		err   error
	)
	switch cfg.History.Store {
	case config.StoreMongo:
		store, err = repository.ConnectMongo(pingCtx, cfg.History.MongoURI)
	case config.StoreDynamo:
		store, err = repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.History.DynamoTable)
	case config.StoreSQLite:
		store, err = repository.OpenSQLite(pingCtx, cfg.History.SQLitePath)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s history store: %w", cfg.History.Store, err)
	}
	if err := store.Ping(pingCtx); err != nil {
		closeQuietly(store)
		return nil, fmt.Errorf("ping %s history store: %w", cfg.History.Store, err)
	}
	return store, nil
}

func closeQuietly(store storeHandle) {
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = store.Close(ctx)
}
