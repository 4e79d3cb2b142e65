// Package main provides the tutorgate binary entry point.
// Tutorgate is a tutoring-chat gateway that mediates between students and
// LLM backends, enforcing lesson scope, bounded conversation memory, and
// backend protection (retry, circuit breaker, admission queue).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/tutorgate/backend"
	"github.com/c360studio/tutorgate/breaker"
	"github.com/c360studio/tutorgate/cache"
	"github.com/c360studio/tutorgate/config"
	"github.com/c360studio/tutorgate/gateway"
	"github.com/c360studio/tutorgate/memory"
	"github.com/c360studio/tutorgate/queue"
	"github.com/c360studio/tutorgate/reference"
	"github.com/c360studio/tutorgate/scope"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "tutorgate"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "tutorgate",
		Short: "Tutoring-chat gateway",
		Long: `Tutorgate mediates between students and LLM backends.

It enforces lesson scope through signed tokens, keeps bounded per-student
conversation memory, attaches reference citations, redirects off-scope
questions deterministically, and protects the backend with retries, a
circuit breaker, and a bounded admission queue.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	logger := setupLogger(logLevel)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared cache and audit sink. Without NATS the gateway runs single-
	// replica on an in-process cache and auditing is disabled.
	var (
		sharedCache cache.Cache
		auditor     *gateway.Auditor
	)
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(appName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Close()

		kv, err := cache.NewNATSKV(nc, cfg.NATS.Bucket, cfg.Conversation.TTL.Duration())
		if err != nil {
			return fmt.Errorf("open KV bucket: %w", err)
		}
		sharedCache = kv
		auditor = gateway.NewAuditor(nc, logger)
		logger.Info("Using NATS-backed cache", "url", cfg.NATS.URL, "bucket", cfg.NATS.Bucket)
	} else {
		sharedCache = cache.NewMemory()
		logger.Warn("No NATS URL configured, using in-process cache (single replica only)")
	}

	codec := scope.NewCodec([]byte(cfg.Scope.Secret))
	resolver := scope.NewResolver(codec, cfg.Scope.TokenMaxAge.Duration(),
		scope.WithRequireStaffScope(cfg.Scope.RequireStaffScope),
		scope.WithResolverLogger(logger))

	refResolver := reference.NewResolver(cfg.Reference.DocsDir, cfg.Reference.Allow)
	loader := reference.NewLoader(reference.WithLoaderLogger(logger))
	if cfg.Reference.Watch {
		watcher, err := reference.NewWatcher(cfg.Reference.DocsDir, loader, logger)
		if err != nil {
			logger.Warn("Reference watcher unavailable, chunk cache will not invalidate", "error", err)
		} else {
			watcher.Start(ctx)
		}
	}

	store := memory.NewStore(sharedCache,
		cfg.Conversation.MaxMessages,
		cfg.Conversation.SummaryMaxChars,
		cfg.Conversation.MaxIndexEntries,
		memory.WithStoreLogger(logger))

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := gateway.NewMetrics(reg)

	service := gateway.NewService(
		gateway.Settings{
			Backend:             cfg.Backend.Default,
			MaxAttempts:         cfg.Backend.MaxAttempts,
			BaseBackoff:         cfg.Backend.BaseBackoff.Duration(),
			MaxMessageChars:     cfg.Backend.MaxMessageChars,
			TopicStrictness:     cfg.Policy.TopicStrictness,
			MaxCitations:        cfg.Reference.MaxCitations,
			MaxFollowUps:        cfg.Policy.MaxFollowUps,
			ConversationEnabled: cfg.Conversation.Enabled,
			ConversationTTL:     cfg.Conversation.TTL.Duration(),
			HistoryMaxChars:     cfg.Conversation.HistoryMaxChars,
			RateLimitPerMinute:  cfg.Auth.RateLimitPerMinute,
			QueueMaxConcurrency: cfg.Queue.MaxConcurrency,
			QueueMaxWait:        cfg.Queue.MaxWait.Duration(),
			QueuePollInterval:   cfg.Queue.PollInterval.Duration(),
			QueueSlotTTL:        cfg.Queue.SlotTTL.Duration(),
			ArchiveDir:          cfg.Conversation.ArchiveDir,
			ResetMaxKeys:        cfg.Conversation.ResetMaxKeys,
		},
		resolver,
		refResolver,
		loader,
		store,
		registry,
		breaker.New(sharedCache, cfg.Breaker.Threshold, cfg.Breaker.TTL.Duration(), breaker.WithLogger(logger)),
		queue.New(sharedCache, queue.WithLogger(logger)),
		sharedCache,
		gateway.WithAuditor(auditor),
		gateway.WithMetrics(metrics),
		gateway.WithServiceLogger(logger),
	)

	mux := http.NewServeMux()
	gateway.NewHTTPHandler(service, cfg.Auth.AdminToken, Version).RegisterHTTPHandlers(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Tutorgate ready",
		"version", Version,
		"addr", cfg.Server.Addr,
		"backend", cfg.Backend.Default)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loadConfig reads the config file, or falls back to defaults with the
// signing secret taken from the environment.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}

	cfg := config.DefaultConfig()
	cfg.Scope.Secret = os.Getenv("TUTORGATE_SCOPE_SECRET")
	cfg.Auth.AdminToken = os.Getenv("TUTORGATE_ADMIN_TOKEN")
	return cfg, nil
}

// buildRegistry registers every configured backend so operators can switch
// the default without restarting with different wiring.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*backend.Registry, error) {
	registry := backend.NewRegistry()

	registry.Register(backend.NewStub("stub"))

	ollamaOpts := []backend.OllamaOption{backend.WithOllamaLogger(logger)}
	if cfg.Backend.Ollama.Temperature > 0 {
		ollamaOpts = append(ollamaOpts, backend.WithTemperature(cfg.Backend.Ollama.Temperature))
	}
	if cfg.Backend.Ollama.MaxTokens > 0 {
		ollamaOpts = append(ollamaOpts, backend.WithMaxTokens(cfg.Backend.Ollama.MaxTokens))
	}
	registry.Register(backend.NewOllama("ollama", cfg.Backend.Ollama.Endpoint, cfg.Backend.Ollama.Model, ollamaOpts...))

	if cfg.Backend.Remote.Endpoint != "" {
		registry.Register(backend.NewRemote("remote",
			cfg.Backend.Remote.Endpoint,
			cfg.Backend.Remote.Model,
			cfg.Backend.Remote.APIKey,
			backend.WithAcknowledged(cfg.Backend.Remote.Acknowledged)))
	}

	return registry, nil
}

func setupLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
