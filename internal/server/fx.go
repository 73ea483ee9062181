// Package server wires configuration into a running application.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/api"
	"github.com/JakeFAU/profile-crawler/internal/bio"
	"github.com/JakeFAU/profile-crawler/internal/clock/system"
	"github.com/JakeFAU/profile-crawler/internal/config"
	"github.com/JakeFAU/profile-crawler/internal/coordinator"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/dispatcher"
	githubextractor "github.com/JakeFAU/profile-crawler/internal/extractor/github"
	linkedinextractor "github.com/JakeFAU/profile-crawler/internal/extractor/linkedin"
	"github.com/JakeFAU/profile-crawler/internal/id/uuid"
	"github.com/JakeFAU/profile-crawler/internal/logging"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
	"github.com/JakeFAU/profile-crawler/internal/portfolio"
	"github.com/JakeFAU/profile-crawler/internal/queue"
	memqueue "github.com/JakeFAU/profile-crawler/internal/queue/memory"
	pubsubqueue "github.com/JakeFAU/profile-crawler/internal/queue/pubsub"
	redisqueue "github.com/JakeFAU/profile-crawler/internal/queue/redis"
	"github.com/JakeFAU/profile-crawler/internal/retry"
	"github.com/JakeFAU/profile-crawler/internal/session"
	gcsstorage "github.com/JakeFAU/profile-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/profile-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/profile-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/profile-crawler/internal/storage/postgres"
	"github.com/JakeFAU/profile-crawler/internal/worker"
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	jobs       crawler.JobStore
	profiles   crawler.ProfileStore
	portfolios crawler.PortfolioStore
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	queues    queue.Set
	session   *session.Manager

	pool         *pgxpool.Pool
	redisClient  *goredis.Client
	pubsubClient *pubsub.Client
	gcsClient    *storage.Client
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("queue_backend", cfg.Queue.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("database", cfg.Database.DSN != ""),
		zap.String("api_key", logging.Redact(cfg.Auth.APIKey)),
	)

	if err := app.build(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	ids := uuid.New()
	clock := system.New()

	st, err := a.setupStores(ctx, ids)
	if err != nil {
		return err
	}
	blobs, err := a.setupBlobStore(ctx)
	if err != nil {
		return err
	}
	if a.queues, err = a.setupQueues(ctx); err != nil {
		return err
	}

	a.session = session.New(session.Config{
		Headless:         a.cfg.Browser.Headless,
		ChromePath:       a.cfg.Browser.ChromePath,
		UserAgent:        a.cfg.Browser.UserAgent,
		LoginURL:         a.cfg.Browser.LoginURL,
		Email:            a.cfg.Browser.Email,
		Password:         a.cfg.Browser.Password,
		LoginMaxAttempts: a.cfg.Browser.LoginMaxAttempts,
		KeepOpen:         a.cfg.Browser.KeepOpen,
		TypeMinDelay:     time.Duration(a.cfg.Browser.TypeMinDelayMs) * time.Millisecond,
		TypeMaxDelay:     time.Duration(a.cfg.Browser.TypeMaxDelayMs) * time.Millisecond,
		NavTimeout:       a.cfg.Browser.NavTimeout(),
	}, blobs, a.logger.Named("session"))

	gh, err := githubextractor.New(githubextractor.Config{
		Token:     a.cfg.GitHub.Token,
		BaseURL:   a.cfg.GitHub.BaseURL,
		UserAgent: a.cfg.GitHub.UserAgent,
		RPS:       a.cfg.GitHub.RPS,
		Burst:     a.cfg.GitHub.Burst,
	}, a.logger.Named("github"))
	if err != nil {
		return fmt.Errorf("github extractor init failed: %w", err)
	}
	ghExtractor := retry.WrapExtractor(gh, retry.New("github", retryPolicy(a.cfg.Worker), a.logger.Named("retry")))
	liExtractor := retry.WrapExtractor(
		linkedinextractor.New(a.session, 0, a.logger.Named("linkedin")),
		retry.New("linkedin", retryPolicy(a.cfg.Crawl), a.logger.Named("retry")),
	)

	coord := coordinator.New(st.profiles, st.portfolios, st.jobs, a.queues.Portfolio, a.logger.Named("coordinator"))

	writer, err := bio.New(ctx, bio.Config{
		Provider:    a.cfg.LLM.Provider,
		APIKey:      a.cfg.LLM.APIKey,
		Model:       a.cfg.LLM.Model,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: a.cfg.LLM.Temperature,
		Timeout:     a.cfg.LLM.LLMTimeout(),
	}, a.logger.Named("bio"))
	if err != nil {
		return fmt.Errorf("bio writer init failed: %w", err)
	}
	builder := portfolio.NewBuilder(writer, a.logger.Named("portfolio"))

	var runners []dispatcher.Runner
	for i := range a.cfg.Workers.GitHub {
		runners = append(runners, worker.New(
			crawler.SourceGitHub, a.queues.GitHub, ghExtractor,
			st.jobs, st.profiles, coord, a.session, clock,
			a.logger.Named("worker").With(zap.String("source", "github"), zap.Int("index", i)),
		))
	}
	// The browser session serves one page, so LinkedIn gets one consumer.
	runners = append(runners, worker.New(
		crawler.SourceLinkedIn, a.queues.LinkedIn, liExtractor,
		st.jobs, st.profiles, coord, a.session, clock,
		a.logger.Named("worker").With(zap.String("source", "linkedin"), zap.Int("index", 0)),
	))
	for i := range a.cfg.Workers.Portfolio {
		runners = append(runners, worker.NewPortfolioWorker(
			a.queues.Portfolio, st.profiles, st.portfolios, builder, clock,
			a.logger.Named("worker").With(zap.String("source", "portfolio"), zap.Int("index", i)),
		))
	}
	a.logger.Info("worker pools configured",
		zap.Int("github", a.cfg.Workers.GitHub),
		zap.Int("linkedin", 1),
		zap.Int("portfolio", a.cfg.Workers.Portfolio),
	)

	a.dispatch = dispatcher.New(a.queues, st.jobs, st.profiles, coord, ids, clock, runners, a.logger.Named("dispatcher"))
	a.apiServer = api.NewServer(
		a.dispatch,
		st.jobs,
		st.profiles,
		st.portfolios,
		a.cfg,
		a.readyChecks(),
		a.logger.Named("api"),
	)
	return nil
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		MinDelay:    cfg.MinDelay(),
		MaxDelay:    cfg.MaxDelay(),
		Step:        cfg.Step(),
		CallTimeout: cfg.CallTimeout(),
	}
}

func (a *App) setupStores(ctx context.Context, ids crawler.IDGenerator) (stores, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database dsn configured, using in-memory stores")
		return stores{
			jobs:       memorystorage.NewJobStore(),
			profiles:   memorystorage.NewProfileStore(ids),
			portfolios: memorystorage.NewPortfolioStore(),
		}, nil
	}
	pool, err := pgstore.Open(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return stores{}, fmt.Errorf("database init failed: %w", err)
	}
	a.pool = pool
	if a.cfg.Database.ApplySchema {
		if err := pgstore.ApplySchema(ctx, pool); err != nil {
			return stores{}, err
		}
		a.logger.Info("database schema applied")
	}
	jobs, err := pgstore.NewJobStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("job store init failed: %w", err)
	}
	profiles, err := pgstore.NewProfileStore(pool, ids)
	if err != nil {
		return stores{}, fmt.Errorf("profile store init failed: %w", err)
	}
	portfolios, err := pgstore.NewPortfolioStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("portfolio store init failed: %w", err)
	}
	a.logger.Info("postgres stores initialized", zap.Int32("max_conns", a.cfg.Database.MaxConns))
	return stores{jobs: jobs, profiles: profiles, portfolios: portfolios}, nil
}

func (a *App) setupBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupQueues(ctx context.Context) (queue.Set, error) {
	names := []string{queue.GitHub, queue.LinkedIn, queue.Portfolio}
	built := make([]crawler.Queue, 0, len(names))
	switch a.cfg.Queue.Backend {
	case "redis":
		a.redisClient = goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.Queue.Redis.Addr,
			Password: a.cfg.Queue.Redis.Password,
			DB:       a.cfg.Queue.Redis.DB,
		})
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			return queue.Set{}, fmt.Errorf("redis ping failed: %w", err)
		}
		for _, base := range names {
			q, err := redisqueue.NewQueue(a.redisClient, redisqueue.Config{Name: queue.Name(a.cfg.Queue.Prefix, base)})
			if err != nil {
				return queue.Set{}, fmt.Errorf("redis queue %s init failed: %w", base, err)
			}
			// Messages left in flight by a previous process go back on the queue.
			n, err := q.Requeue(ctx)
			if err != nil {
				return queue.Set{}, fmt.Errorf("redis queue %s recovery failed: %w", base, err)
			}
			if n > 0 {
				a.logger.Info("recovered in-flight messages", zap.String("queue", base), zap.Int("count", n))
			}
			built = append(built, q)
		}
		a.logger.Info("using redis queues", zap.String("addr", a.cfg.Queue.Redis.Addr))
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Queue.PubSub.ProjectID)
		if err != nil {
			return queue.Set{}, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		for _, base := range names {
			name := queue.Name(a.cfg.Queue.Prefix, base)
			q, err := pubsubqueue.NewQueue(ctx, client, pubsubqueue.Config{
				Topic:        name,
				Subscription: name + "-workers",
			}, a.logger.Named("pubsub").With(zap.String("queue", base)))
			if err != nil {
				return queue.Set{}, fmt.Errorf("pubsub queue %s init failed: %w", base, err)
			}
			built = append(built, q)
		}
		a.logger.Info("using pubsub queues", zap.String("project", a.cfg.Queue.PubSub.ProjectID))
	default:
		for range names {
			built = append(built, memqueue.NewQueue(a.cfg.Queue.Depth))
		}
		a.logger.Info("using in-memory queues", zap.Int("depth", a.cfg.Queue.Depth))
	}
	return queue.Set{GitHub: built[0], LinkedIn: built[1], Portfolio: built[2]}, nil
}

func (a *App) readyChecks() map[string]api.ReadyCheck {
	checks := map[string]api.ReadyCheck{}
	if a.pool != nil {
		checks["database"] = a.pool.Ping
	}
	if a.redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

// Run starts the worker pools and the HTTP server and blocks until ctx is
// canceled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}

	a.Close()
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// Close releases the queues, browser, stores and clients.
func (a *App) Close() {
	if err := a.queues.Close(); err != nil {
		a.logger.Warn("queue close failed", zap.Error(err))
	}
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.logger.Warn("session close failed", zap.Error(err))
		}
	}
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}

func (a *App) closeInfrastructure() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}
