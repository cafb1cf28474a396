package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/autotaghq/autotag/internal/api/handlers"
	"github.com/autotaghq/autotag/internal/api/middleware"
	"github.com/autotaghq/autotag/internal/config"
	"github.com/autotaghq/autotag/internal/embeddings"
	"github.com/autotaghq/autotag/internal/googleai"
	"github.com/autotaghq/autotag/internal/ingest"
	"github.com/autotaghq/autotag/internal/observability"
	"github.com/autotaghq/autotag/internal/openai"
	"github.com/autotaghq/autotag/internal/oracle"
	"github.com/autotaghq/autotag/internal/repository"
	"github.com/autotaghq/autotag/internal/service"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg           *config.Config
	db            *pgxpool.Pool
	server        *http.Server
	publisher     *service.NotificationPublisher
	runs          *service.RunManager
	meterProvider observability.MeterProviderShutdown
	metrics       *observability.Metrics
}

var (
	errUnsupportedOracleProvider    = errors.New("unsupported oracle provider")
	errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")
)

const (
	providerOpenAI = "openai"
	providerGoogle = "google"
	providerMock   = "mock"
)

// setupMetrics creates the meter provider, the /metrics handler, and the metric
// collectors. Returns all nil when metrics are disabled.
func setupMetrics(ctx context.Context, cfg *config.Config) (observability.MeterProviderShutdown, http.Handler, *observability.Metrics, error) {
	if !cfg.MetricsEnabled {
		slog.Warn("metrics not enabled (METRICS_ENABLED=false)")

		return nil, nil, nil, nil
	}

	provider, handler, metrics, err := observability.NewMeterProvider(ctx, observability.MeterProviderConfig{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	return provider, handler, metrics, nil
}

// newOracle builds the classification oracle for the configured provider.
// The mock provider needs no API key and answers every prompt with the
// unknown sentinel; it exists for local runs without model access.
func newOracle(ctx context.Context, cfg *config.Config, metrics observability.OracleMetrics) (*oracle.Oracle, error) {
	var limiter *rate.Limiter
	if cfg.OracleRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.OracleRateLimit), 1)
	}

	var completer oracle.ChatCompleter

	switch cfg.OracleProvider {
	case providerOpenAI:
		completer = openai.NewClient(cfg.OracleAPIKey, openai.WithModel(cfg.OracleModel))
	case providerGoogle:
		client, err := googleai.NewClient(ctx, cfg.OracleAPIKey, googleai.WithChatModel(cfg.OracleModel))
		if err != nil {
			return nil, fmt.Errorf("create google oracle client: %w", err)
		}

		completer = client
	case providerMock:
		completer = oracle.NewMockCompleter()
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedOracleProvider, cfg.OracleProvider)
	}

	return oracle.New(completer, cfg.OracleProvider, limiter, metrics), nil
}

// newEmbeddingClient builds the embedding client for the configured provider.
func newEmbeddingClient(ctx context.Context, cfg *config.Config) (service.EmbeddingClient, error) {
	switch cfg.EmbeddingProvider {
	case providerOpenAI:
		if cfg.EmbeddingModel != "" {
			return embeddings.NewOpenAIClientWithModel(cfg.EmbeddingAPIKey, goopenai.EmbeddingModel(cfg.EmbeddingModel)), nil
		}

		return embeddings.NewOpenAIClient(cfg.EmbeddingAPIKey), nil
	case providerGoogle:
		client, err := googleai.NewClient(ctx, cfg.EmbeddingAPIKey,
			googleai.WithModel(cfg.EmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimensions),
		)
		if err != nil {
			return nil, fmt.Errorf("create google embedding client: %w", err)
		}

		return embeddings.NewGoogleClient(client), nil
	case providerMock:
		return embeddings.NewMockClientWithDimensions(cfg.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}

// NewApp builds and wires all components. It does not start the HTTP server;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	meterProvider, metricsHandler, metrics, err := setupMetrics(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Install TraceContextHandler so request_id appears in access and pipeline logs.
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(slog.Default().Handler())))

	var (
		runMetrics          observability.RunMetrics
		oracleMetrics       observability.OracleMetrics
		eventMetrics        observability.EventMetrics
		notificationMetrics observability.NotificationMetrics
		cacheMetrics        observability.CacheMetrics
		apiMetrics          observability.APIMetrics
	)
	if metrics != nil {
		runMetrics = metrics.Runs
		oracleMetrics = metrics.Oracle
		eventMetrics = metrics.Events
		notificationMetrics = metrics.Notifications
		cacheMetrics = metrics.Cache
		apiMetrics = metrics.API
	}

	classificationOracle, err := newOracle(ctx, cfg, oracleMetrics)
	if err != nil {
		return nil, err
	}

	embeddingClient, err := newEmbeddingClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	categoriesRepo := repository.NewCategoriesRepository(db)
	feedbackRecordsRepo := repository.NewFeedbackRecordsRepository(db)

	taxonomyService := service.NewTaxonomyService(categoriesRepo, embeddingClient, cacheMetrics)
	feedbackRecordsService := service.NewFeedbackRecordsService(feedbackRecordsRepo)

	worker := service.NewClassificationWorker(
		classificationOracle, feedbackRecordsRepo,
		service.RetryPolicy{
			MaxAttempts:    cfg.ClassificationMaxAttempts,
			InitialBackoff: cfg.ClassificationRetryBase,
			MaxBackoff:     cfg.RetryMaxDelay,
		},
		runMetrics,
	)

	reconciler := service.NewReconciler(
		feedbackRecordsRepo, categoriesRepo, embeddingClient, classificationOracle,
		service.ReconcilerConfig{
			ClusterDistanceThreshold:  cfg.ClusterDistanceThreshold,
			ClusterMinPopulation:      cfg.ClusterMinPopulation,
			CategoryDistanceThreshold: cfg.CategoryDistanceThreshold,
		},
		runMetrics,
	)

	publisher := service.NewNotificationPublisher(cfg.NotifyBufferSize, cfg.NotifyPerEventTimeout, eventMetrics)
	publisher.RegisterNotifier(service.NewLogNotifier(notificationMetrics))

	if cfg.NotifyWebhookURL != "" {
		publisher.RegisterNotifier(service.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret, notificationMetrics))
		slog.Info("webhook notifications enabled", "url", cfg.NotifyWebhookURL)
	}

	runManager := service.NewRunManager()

	orchestrator := service.NewOrchestrator(
		ingest.NewFileSource(cfg.MaxRecordsPerRun),
		taxonomyService,
		worker,
		reconciler,
		feedbackRecordsRepo,
		runManager,
		publisher,
		service.OrchestratorConfig{
			BatchSize:            cfg.BatchSize,
			MaxConcurrentBatches: cfg.MaxConcurrentBatches,
			ValidationRetry: service.RetryPolicy{
				MaxAttempts:    cfg.ValidationMaxAttempts,
				InitialBackoff: cfg.ValidationRetryBase,
				MaxBackoff:     cfg.RetryMaxDelay,
			},
			ErrorRateThreshold: cfg.ErrorRateThreshold,
		},
		runMetrics,
	)

	runsService := service.NewRunsService(orchestrator, runManager)

	server := newHTTPServer(
		cfg,
		handlers.NewHealthHandler(db),
		handlers.NewRunsHandler(runsService),
		handlers.NewFeedbackRecordsHandler(feedbackRecordsService),
		handlers.NewCategoriesHandler(taxonomyService),
		metricsHandler,
		apiMetrics,
	)

	return &App{
		cfg:           cfg,
		db:            db,
		server:        server,
		publisher:     publisher,
		runs:          runManager,
		meterProvider: meterProvider,
		metrics:       metrics,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and
// /metrics, API key on /v1/). Handler chain: RequestID -> Metrics -> Logging -> mux.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	runs *handlers.RunsHandler,
	feedback *handlers.FeedbackRecordsHandler,
	categories *handlers.CategoriesHandler,
	metricsHandler http.Handler,
	apiMetrics observability.APIMetrics,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)

	if metricsHandler != nil {
		public.Handle("GET /metrics", metricsHandler)
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/runs", runs.Start)
	protected.HandleFunc("GET /v1/runs", runs.List)
	protected.HandleFunc("GET /v1/runs/{execution_id}", runs.Get)
	protected.HandleFunc("POST /v1/runs/{execution_id}/abort", runs.Abort)

	protected.HandleFunc("GET /v1/feedback-records", feedback.List)
	protected.HandleFunc("GET /v1/feedback-records/{ref_id}", feedback.GetLatest)
	protected.HandleFunc("POST /v1/corrections", feedback.ApplyCorrections)

	protected.HandleFunc("GET /v1/categories", categories.List)
	protected.HandleFunc("PUT /v1/categories", categories.Replace)

	var protectedHandler http.Handler = protected
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)
	protectedHandler = middleware.MaxBody(cfg.MaxRequestBodyBytes, apiMetrics)(protectedHandler)

	mux := http.NewServeMux()
	mux.Handle("/v1/", protectedHandler)
	mux.Handle("/", public)

	var handler http.Handler = middleware.Logging(mux)
	if apiMetrics != nil {
		handler = middleware.Metrics(apiMetrics)(handler)
	}

	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled (e.g. signal)
// or the server fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the server, the notification publisher, and the meter
// provider in order. The server goes first so no new runs start; the
// publisher goes second so notifications of finished runs still drain.
// In-flight runs keep executing until the process exits; aborting them here
// would turn a deploy into spurious run failures.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		if a.meterProvider == nil {
			return
		}

		if mpErr := a.meterProvider.Shutdown(ctx); mpErr != nil {
			if err == nil {
				err = fmt.Errorf("meter provider shutdown: %w", mpErr)
			} else {
				slog.Error("shutdown meter provider", "error", mpErr)
			}
		}
	}()

	defer a.publisher.Shutdown()

	if active := a.runs.ActiveCount(); active > 0 {
		slog.Warn("shutting down with active runs", "active", active)
	}

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
