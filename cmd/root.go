package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"query-assistant/internal/config"
)

const shutdownTimeout = 15 * time.Second

type rootFlags struct {
	configPath string
	envFile    string
	port       int
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "query-assistant",
		Short:        "Schema-aware chat and query generation over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "optional YAML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().IntVar(&flags.port, "port", 0, "listen port (overrides PORT)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), flags)
			},
		},
		&cobra.Command{
			Use:   "lambda",
			Short: "Run as an API Gateway Lambda handler",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runLambda(cmd.Context(), flags)
			},
		},
	)
	return root
}

// loadConfig applies flag overrides on top of file and environment settings.
func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.envFile, flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.port != 0 {
		cfg.Port = flags.port
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) (*zap.Logger, error) {
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = atomic
	return zc.Build()
}

func setup(ctx context.Context, flags *rootFlags) (config.Config, *zap.Logger, *app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		_ = logger.Sync()
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, a, nil
}

func runServe(ctx context.Context, flags *rootFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, a, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	srv := a.handler.NewServer(":" + strconv.Itoa(cfg.Port))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("dialect", string(cfg.Dialect())),
			zap.String("history_store", cfg.History.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if closeErr := a.close(shutdownCtx); closeErr != nil {
			logger.Warn("history store close failed", zap.Error(closeErr))
		}
		return err
	})

	return g.Wait()
}

func runLambda(ctx context.Context, flags *rootFlags) error {
	_, logger, a, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	lambda.StartWithOptions(a.handler.Handle,
		lambda.WithContext(ctx),
		lambda.WithEnableSIGTERM(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.close(closeCtx); err != nil {
				logger.Warn("history store close failed", zap.Error(err))
			}
			_ = logger.Sync()
		}),
	)
	return nil
}
