// Package bootstrap wires configuration into the collaborators every daemon
// shares: the vault store, the Reasoner, the ledger, notifications and the
// optional Redis, RabbitMQ and SQL backends.
package bootstrap

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/vaultflow/internal/config"
	"github.com/benvon/vaultflow/internal/daemon"
	"github.com/benvon/vaultflow/internal/dashboard"
	"github.com/benvon/vaultflow/internal/database"
	"github.com/benvon/vaultflow/internal/ledger"
	"github.com/benvon/vaultflow/internal/logger"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/notify"
	"github.com/benvon/vaultflow/internal/providers"
	"github.com/benvon/vaultflow/internal/queue"
	"github.com/benvon/vaultflow/internal/seen"
	"github.com/benvon/vaultflow/internal/services/ai"
	"github.com/benvon/vaultflow/internal/store"
	"github.com/benvon/vaultflow/internal/supervisor"
	"github.com/benvon/vaultflow/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// SeenDraftsKey is the Redis set holding announced drafts
	SeenDraftsKey = "vaultflow:notified_drafts"

	notificationTTL = 24 * time.Hour
	connectTimeout  = 5 * time.Second
)

// Runtime holds one daemon's configuration and shared collaborators
type Runtime struct {
	Name   string
	Config *config.Config
	Logger *zap.Logger
	Store  *store.FSStore
	Debug  bool

	redis       *redis.Client
	redisLoaded bool
	audit       *database.AuditRepository
	auditErr    error
	auditLoaded bool
	closers     []func() error
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// New loads configuration and creates the daemon logger, vault store and tracer
func New(ctx context.Context, name string, debugFlag bool) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	debug := cfg.DebugMode || debugFlag

	log, err := logger.NewDaemonLogger(name, debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return newRuntime(ctx, name, cfg, log, debug)
}

// NewWithLogger is New for callers that already built their logger
func NewWithLogger(ctx context.Context, name string, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	return newRuntime(ctx, name, cfg, log, cfg.DebugMode)
}

func newRuntime(ctx context.Context, name string, cfg *config.Config, log *zap.Logger, debug bool) (*Runtime, error) {
	vault := store.NewFSStore(cfg.VaultPath)
	if err := vault.EnsureStages(
		models.StageRaw,
		models.StagePendingApproval,
		models.StageApproved,
		models.StageDone,
		models.StagePlans,
		models.StageLogs,
	); err != nil {
		return nil, err
	}

	r := &Runtime{Name: name, Config: cfg, Logger: log, Store: vault, Debug: debug}

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:     cfg.OTELEnabled,
		ServiceName: "vaultflow-" + name,
		Endpoint:    cfg.OTELEndpoint,
	}, log)
	if err != nil {
		log.Warn("tracing_disabled", zap.Error(err))
	} else {
		r.closers = append(r.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			return shutdown(sctx)
		})
	}

	log.Info("daemon_starting",
		zap.String("vault", logger.SanitizePath(cfg.VaultPath)),
		zap.Bool("debug_mode", debug),
	)
	return r, nil
}

// Close releases everything opened through the runtime, newest first
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.Logger.Warn("shutdown_step_failed", zap.Error(err))
		}
	}
	r.closers = nil
	_ = logger.Sync(r.Logger)
}

// Reasoner builds the configured Reasoner. It fails when no credentials are set.
func (r *Runtime) Reasoner() (ai.Reasoner, error) {
	if err := r.Config.RequireReasoner(); err != nil {
		return nil, err
	}
	registry := ai.NewProviderRegistry()
	ai.RegisterOpenAI(registry, r.Logger, r.Debug)
	reasoner, err := registry.GetProvider(r.Config.AIProvider, map[string]string{
		"api_key":  r.Config.OpenAIKey,
		"base_url": r.Config.AIBaseURL,
		"model":    r.Config.AIModel,
	})
	if err != nil {
		return nil, err
	}
	r.Logger.Info("reasoner_initialized",
		zap.String("provider", r.Config.AIProvider),
		zap.String("model", r.Config.AIModel),
	)
	return reasoner, nil
}

// Redis returns the shared client, or nil when REDIS_URL is unset or unreachable
func (r *Runtime) Redis(ctx context.Context) *redis.Client {
	if r.redisLoaded {
		return r.redis
	}
	r.redisLoaded = true
	if r.Config.RedisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(r.Config.RedisURL)
	if err != nil {
		r.Logger.Warn("redis_url_invalid", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		r.Logger.Warn("redis_unavailable", zap.Error(err))
		_ = client.Close()
		return nil
	}
	r.redis = client
	r.closers = append(r.closers, client.Close)
	return client
}

// AuditRepository opens the SQL audit mirror. It returns nil without error
// when AUDIT_DATABASE_URL is unset.
func (r *Runtime) AuditRepository(ctx context.Context) (*database.AuditRepository, error) {
	if r.auditLoaded {
		return r.audit, r.auditErr
	}
	r.auditLoaded = true

	dsn := r.Config.AuditDatabaseURL
	if dsn == "" {
		return nil, nil
	}
	db, err := database.Open(ctx, dsn)
	if err != nil {
		r.auditErr = err
		return nil, err
	}
	repo, err := database.NewAuditRepository(ctx, db)
	if err != nil {
		_ = db.Close()
		r.auditErr = err
		return nil, err
	}
	r.closers = append(r.closers, db.Close)
	r.audit = repo
	r.Logger.Info("audit_mirror_enabled", zap.String("dialect", string(db.Dialect())))
	return repo, nil
}

// Ledger creates the audit ledger, mirrored to SQL when AUDIT_DATABASE_URL is set
func (r *Runtime) Ledger(ctx context.Context) *ledger.Logger {
	var opts []ledger.Option
	repo, err := r.AuditRepository(ctx)
	switch {
	case err != nil:
		r.Logger.Warn("audit_mirror_unavailable", zap.Error(err))
	case repo != nil:
		opts = append(opts, ledger.WithMirror(repo))
	}
	return ledger.New(r.Store, r.Logger, opts...)
}

// Notifier fans out to the log, the desktop and the event bus, throttled per title
func (r *Runtime) Notifier(ctx context.Context) notify.Notifier {
	sinks := []notify.Notifier{notify.NewLog(r.Logger)}
	if r.Config.NotifyDesktop {
		sinks = append(sinks, notify.NewDesktop("vaultflow", r.Logger))
	}
	if r.Config.RabbitMQURL != "" {
		bus, err := queue.NewRabbitMQQueue(r.Config.RabbitMQURL)
		if err != nil {
			r.Logger.Warn("event_bus_unavailable", zap.Error(err))
		} else {
			sinks = append(sinks, notify.NewAMQPNotifier(bus, r.Name, notificationTTL, r.Logger))
			r.closers = append(r.closers, bus.Close)
		}
	}
	fanout := notify.NewMulti(r.Logger, sinks...)

	limiterStore, err := notify.NewLimiterStore(r.Redis(ctx))
	if err != nil {
		r.Logger.Warn("notification_limiter_store_failed", zap.Error(err))
		limiterStore = nil
	}
	throttled, err := notify.NewThrottled(fanout, r.Config.NotifyRate, limiterStore, r.Logger)
	if err != nil {
		r.Logger.Warn("notification_throttle_disabled", zap.Error(err))
		return fanout
	}
	return throttled
}

// Dispatcher binds every action kind with a configured webhook
func (r *Runtime) Dispatcher() *providers.Registry {
	registry := providers.NewRegistry()
	for _, kind := range models.ActionKinds {
		if kind == models.ActionNone {
			continue
		}
		if url := r.Config.WebhookFor(string(kind)); url != "" {
			registry.Register(kind, providers.NewWebhook(url, nil, r.Logger))
		}
	}
	r.Logger.Info("action_providers_bound", zap.Int("kinds", len(registry.Kinds())))
	return registry
}

// SeenSet returns the Redis-backed set when Redis is available
func (r *Runtime) SeenSet(ctx context.Context) seen.Set {
	if client := r.Redis(ctx); client != nil {
		return seen.NewRedisSet(client, SeenDraftsKey)
	}
	return seen.NewMemorySet()
}

// ProcessManager returns the PM2 client
func (r *Runtime) ProcessManager() *supervisor.PM2 {
	return supervisor.NewPM2WithRunner(r.Config.PM2Binary, supervisor.ExecRunner)
}

// Dashboard returns the aggregator, listing the monitored processes
func (r *Runtime) Dashboard() *dashboard.Aggregator {
	return dashboard.New(r.Store, r.Logger,
		dashboard.WithProcesses(r.Config.WatchdogProcesses, r.ProcessManager()),
	)
}

// Loop runs cycle every interval until ctx is cancelled
func (r *Runtime) Loop(ctx context.Context, name string, interval time.Duration, cycle daemon.Cycle) error {
	return daemon.New(name, interval, cycle, r.Logger).Run(ctx)
}

// Once runs a single pass with the loop's panic recovery
func (r *Runtime) Once(ctx context.Context, name string, cycle daemon.Cycle) error {
	return daemon.New(name, 0, cycle, r.Logger).RunOnce(ctx)
}
