package server

import (
	"context"
	"fmt"
	"net/http"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/api"
	"github.com/JakeFAU/cache-warmer/internal/auth"
	"github.com/JakeFAU/cache-warmer/internal/clock/system"
	"github.com/JakeFAU/cache-warmer/internal/config"
	contentmemory "github.com/JakeFAU/cache-warmer/internal/content/memory"
	contentpostgres "github.com/JakeFAU/cache-warmer/internal/content/postgres"
	"github.com/JakeFAU/cache-warmer/internal/content/sitemap"
	collyfetcher "github.com/JakeFAU/cache-warmer/internal/fetcher/colly"
	"github.com/JakeFAU/cache-warmer/internal/id/uuid"
	"github.com/JakeFAU/cache-warmer/internal/logging"
	"github.com/JakeFAU/cache-warmer/internal/notify"
	"github.com/JakeFAU/cache-warmer/internal/policy/ratelimit"
	pubmemory "github.com/JakeFAU/cache-warmer/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/cache-warmer/internal/publisher/pubsub"
	memscheduler "github.com/JakeFAU/cache-warmer/internal/scheduler/memory"
	gcsstorage "github.com/JakeFAU/cache-warmer/internal/storage/gcs"
	localstorage "github.com/JakeFAU/cache-warmer/internal/storage/local"
	memorystorage "github.com/JakeFAU/cache-warmer/internal/storage/memory"
	pgstore "github.com/JakeFAU/cache-warmer/internal/storage/postgres"
	redisstore "github.com/JakeFAU/cache-warmer/internal/storage/redis"
	"github.com/JakeFAU/cache-warmer/internal/telemetry"
	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("state_backend", cfg.State.Backend),
		zap.String("content_source", cfg.Content.Source),
	)
	app := &App{
		cfg:         cfg,
		logger:      logger,
		scheduler:   memscheduler.New(logger.Named("scheduler")),
		completions: make(chan warmer.Completion, 1),
	}
	if err := app.build(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	if a.cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: a.cfg.Tracing.ServiceName,
			ProjectID:   a.cfg.Tracing.ProjectID,
			SampleRatio: a.cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("tracing init failed: %w", err)
		}
		a.addCloser("tracing", func() error { return tp.Shutdown(context.Background()) })
	}
	a.tracer = telemetry.Tracer()

	var pool pgstore.Pool
	if a.cfg.NeedsPostgres() {
		p, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
			DSN:             a.cfg.Storage.Postgres.DSN,
			MaxConns:        a.cfg.Storage.Postgres.MaxConns,
			MinConns:        a.cfg.Storage.Postgres.MinConns,
			MaxConnLifetime: a.cfg.Storage.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres pool init failed: %w", err)
		}
		a.addCloser("postgres", func() error { p.Close(); return nil })
		pool = p
	}

	store, err := a.setupRunStore(ctx, pool)
	if err != nil {
		return err
	}
	a.store = store

	content, err := a.setupContent(pool)
	if err != nil {
		return err
	}

	resolver, err := warmer.NewBaseURLResolver(a.cfg.Warmer.BaseURL)
	if err != nil {
		return fmt.Errorf("url resolver init failed: %w", err)
	}

	listener, err := a.setupNotify(ctx)
	if err != nil {
		return err
	}

	clock := system.New()
	a.stepper = warmer.NewStepper(warmer.StepperDeps{
		Store:     store,
		Content:   content,
		Resolver:  resolver,
		Fetcher:   a.setupFetcher(),
		Scheduler: a.scheduler,
		Listener:  listener,
		Clock:     clock,
		Sleeper:   clock,
	}, warmer.StepperConfig{
		Kinds:           a.cfg.Content.Kinds,
		ExclusiveResume: a.cfg.Warmer.ExclusiveResume,
		RetryDelay:      a.cfg.Warmer.RetryDelay,
	}, a.logger.Named("stepper"))

	a.controller = warmer.NewController(warmer.ControllerDeps{
		Store:     store,
		Content:   content,
		Scheduler: a.scheduler,
		Clock:     clock,
		IDs:       uuid.New(),
	}, warmer.ControllerConfig{
		Kinds: a.cfg.Content.Kinds,
		Defaults: warmer.RunConfig{
			MaxItems:  a.cfg.Warmer.DefaultMaxItems,
			DelayMs:   a.cfg.Warmer.DefaultDelayMs,
			BatchSize: a.cfg.Warmer.DefaultBatchSize,
		},
		Limits: warmer.Limits{
			MaxBatchSize: a.cfg.Warmer.MaxBatchSize,
			Strict:       a.cfg.Warmer.StrictConfig,
		},
	}, a.logger.Named("controller"))

	guard, err := auth.NewGuard(auth.Config{
		Enabled:  a.cfg.Auth.Enabled,
		APIKey:   a.cfg.Auth.APIKey,
		Secret:   a.cfg.Auth.TokenSecret,
		TokenTTL: a.cfg.Auth.TokenTTL,
	}, nil)
	if err != nil {
		return fmt.Errorf("auth init failed: %w", err)
	}
	a.apiServer = api.NewServer(a.controller, guard, api.Options{
		RequestTimeout: a.cfg.Server.RequestTimeout,
		Ready: func(ctx context.Context) error {
			_, err := store.Load(ctx)
			return err
		},
	}, a.logger.Named("api"))
	return nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) setupRunStore(ctx context.Context, pool pgstore.Pool) (warmer.RunStore, error) {
	switch a.cfg.State.Backend {
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.State.Redis.Addr,
			Password: a.cfg.State.Redis.Password,
			DB:       a.cfg.State.Redis.DB,
		})
		a.addCloser("redis", client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		store, err := redisstore.NewRunStore(client, redisstore.Config{
			Prefix:     a.cfg.State.Redis.Prefix,
			MaxRetries: a.cfg.State.Redis.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("redis run store init failed: %w", err)
		}
		a.logger.Info("using redis run store", zap.String("key", store.Key()))
		return store, nil
	case config.BackendPostgres:
		store, err := pgstore.NewRunStore(pool, a.cfg.State.Postgres.Table)
		if err != nil {
			return nil, fmt.Errorf("postgres run store init failed: %w", err)
		}
		if a.cfg.State.Postgres.EnsureTable {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("postgres run store schema: %w", err)
			}
		}
		a.logger.Info("using postgres run store", zap.String("table", a.cfg.State.Postgres.Table))
		return store, nil
	case config.BackendFile:
		store, err := localstorage.NewRunStore(a.cfg.State.File.Path)
		if err != nil {
			return nil, fmt.Errorf("file run store init failed: %w", err)
		}
		a.logger.Info("using file run store", zap.String("path", a.cfg.State.File.Path))
		return store, nil
	default:
		a.logger.Info("using in-memory run store")
		return memorystorage.NewRunStore(), nil
	}
}

func (a *App) setupContent(pool pgstore.Pool) (warmer.ContentRepository, error) {
	switch a.cfg.Content.Source {
	case config.BackendPostgres:
		repo, err := contentpostgres.New(pool, contentpostgres.Config{
			Table:          a.cfg.Content.Postgres.Table,
			PublishedState: a.cfg.Content.Postgres.PublishedState,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres content init failed: %w", err)
		}
		a.logger.Info("using postgres content repository", zap.String("table", a.cfg.Content.Postgres.Table))
		return repo, nil
	case config.BackendSitemap:
		repo, err := sitemap.New(sitemap.Config{
			URL:       a.cfg.Content.Sitemap.URL,
			Kind:      a.cfg.Content.Sitemap.Kind,
			Refresh:   a.cfg.Content.Sitemap.Refresh,
			UserAgent: a.cfg.Fetch.UserAgent,
			Timeout:   a.cfg.Fetch.Timeout,
		}, system.New(), a.logger.Named("sitemap"))
		if err != nil {
			return nil, fmt.Errorf("sitemap content init failed: %w", err)
		}
		a.logger.Info("using sitemap content repository", zap.String("url", a.cfg.Content.Sitemap.URL))
		return repo, nil
	default:
		items := make([]warmer.Item, 0, len(a.cfg.Content.Memory.URLs))
		for i, u := range a.cfg.Content.Memory.URLs {
			items = append(items, warmer.Item{ID: int64(i + 1), Kind: a.cfg.Content.Memory.Kind, URL: u})
		}
		a.logger.Info("using in-memory content catalog", zap.Int("items", len(items)))
		return contentmemory.NewCatalog(items...), nil
	}
}

func (a *App) setupFetcher() *collyfetcher.Fetcher {
	headers := make(http.Header, len(a.cfg.Fetch.Headers))
	for k, v := range a.cfg.Fetch.Headers {
		headers.Set(k, v)
	}
	var limiter collyfetcher.Limiter
	if a.cfg.Fetch.RateLimitRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.Fetch.RateLimitRPS,
			Burst: a.cfg.Fetch.RateLimitBurst,
		})
		a.logger.Info("per-host rate limit enabled", zap.Float64("rps", a.cfg.Fetch.RateLimitRPS))
	}
	a.logger.Info("using colly fetcher",
		zap.String("user_agent", a.cfg.Fetch.UserAgent),
		zap.Duration("timeout", a.cfg.Fetch.Timeout),
	)
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Fetch.UserAgent,
		Timeout:   a.cfg.Fetch.Timeout,
		Headers:   headers,
	}, limiter)
}

func (a *App) setupNotify(ctx context.Context) (*notify.Fanout, error) {
	var listeners []warmer.CompletionListener
	if a.cfg.Notify.Log {
		listeners = append(listeners, notify.NewLogListener(a.logger.Named("completion")))
	}
	pub, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	listeners = append(listeners, notify.NewPublishListener(pub, a.logger.Named("publish")))
	blobs, err := a.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	if blobs != nil {
		listeners = append(listeners, notify.NewArchiveListener(blobs, a.cfg.Notify.Archive.Prefix, a.logger.Named("archive")))
	}
	// Last, so RunOnce returns after the other listeners have run.
	listeners = append(listeners, notify.Func(a.onComplete))
	return notify.NewFanout(a.cfg.Notify.Timeout, a.logger.Named("notify"), listeners...), nil
}

// setupPublisher returns the Pub/Sub publisher when enabled and an in-process
// recorder otherwise.
func (a *App) setupPublisher(ctx context.Context) (notify.Publisher, error) {
	if !a.cfg.Notify.PubSub.Enabled {
		a.events = pubmemory.New(pubmemory.DefaultCapacity)
		return a.events, nil
	}
	pub, err := pubsubpublisher.Open(ctx, a.cfg.Notify.PubSub.ProjectID, a.cfg.Notify.PubSub.TopicID, a.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.addCloser("pubsub", pub.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.Notify.PubSub.ProjectID),
		zap.String("topic", a.cfg.Notify.PubSub.TopicID),
	)
	return pub, nil
}

func (a *App) setupArchive(ctx context.Context) (notify.BlobStore, error) {
	switch a.cfg.Notify.Archive.Backend {
	case config.BackendGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Notify.Archive.GCSBucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.addCloser("gcs", store.Close)
		a.logger.Info("archiving completions to GCS", zap.String("bucket", a.cfg.Notify.Archive.GCSBucket))
		return store, nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Notify.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving completions locally", zap.String("path", a.cfg.Notify.Archive.LocalDir))
		return store, nil
	case config.BackendMemory:
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

// onComplete keeps only the latest completion for RunOnce.
func (a *App) onComplete(_ context.Context, c warmer.Completion) {
	for {
		select {
		case a.completions <- c:
			return
		default:
		}
		select {
		case <-a.completions:
		default:
		}
	}
}
