package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent_workbench/internal/auth"
	"agent_workbench/internal/calltasks"
	"agent_workbench/internal/catalog"
	"agent_workbench/internal/collaborators"
	"agent_workbench/internal/events"
	apphttp "agent_workbench/internal/http"
	"agent_workbench/internal/http/router"
	"agent_workbench/internal/journal"
	"agent_workbench/internal/leads"
	"agent_workbench/internal/notification"
	"agent_workbench/internal/notification/fanout"
	"agent_workbench/internal/remote"
	"agent_workbench/internal/scheduler"
	"agent_workbench/internal/session"
	"agent_workbench/internal/views"
	"agent_workbench/platform/config"
	"agent_workbench/platform/logger"
	"agent_workbench/platform/phone"
	"agent_workbench/platform/validator"

	"github.com/redis/go-redis/v9"
)

const sessionSweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	loc, err := time.LoadLocation(cfg.GetDefaultTimezone())
	if err != nil {
		panic("failed to load timezone: " + err.Error())
	}

	var journalStore journal.Store
	if err := withRetry(ctx, log, "command journal", 5, 2*time.Second, func() error {
		s, err := journal.Open(ctx, cfg, log)
		if err != nil {
			return err
		}
		journalStore = s
		return nil
	}); err != nil {
		log.Error("failed to open command journal", "error", err)
		panic("failed to open command journal: " + err.Error())
	}
	defer journalStore.Close()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	client := remote.New(cfg, log)
	client.SetLocation(loc)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	sessions := session.NewManager(client, eventBus, val, phone.NewNormalizer(cfg.GetPhoneRegion()), session.Settings{
		IdleTTL:          cfg.GetSessionIdleTTL(),
		Location:         loc,
		ClosedLeadPolicy: cfg.GetClosedLeadCallPolicy(),
		CancelEnabled:    cfg.IsRemoteCancelEnabled(),
	}, log)
	defer sessions.Close()
	go sessions.Run(ctx, sessionSweepInterval)

	journal.NewRecorder(journalStore, log).RegisterHandlers(eventBus)

	notificationModule := notification.New(sessions, log)
	notificationModule.RegisterHandlers(eventBus)
	defer notificationModule.Close()

	rdb := initFanoutRedis(ctx, cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}
	changes := fanout.New(rdb, cfg.GetFanoutChannel(), sessions, eventBus, log)
	changes.RegisterHandlers(eventBus)
	go func() {
		if err := changes.Run(ctx); err != nil {
			log.Error("change fan-out stopped", "error", err)
		}
	}()

	prospectusQueue, closeQueue := initProspectusQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}
	collab := collaborators.New(prospectusQueue, val)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   journalStore,
		EventBus: eventBus,
		Session:  session.Middleware(sessions),
		Modules: []apphttp.Module{
			auth.NewModule(sessions),
			leads.NewModule(collab),
			calltasks.NewModule(),
			views.NewModule(),
			catalog.NewModule(collab),
			notificationModule,
			journal.NewModule(journalStore),
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		// Open event streams never finish on their own.
		notificationModule.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initFanoutRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.IsFanoutEnabled() {
		log.Warn("REDIS_URL not configured; change fan-out limited to this replica")
		return nil
	}

	rdb, err := fanout.Open(ctx, cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to connect fan-out redis; change fan-out limited to this replica", "error", err)
		return nil
	}
	return rdb
}

func initProspectusQueue(cfg config.SchedulerConfig, log *logger.Logger) (collaborators.ProspectusQueue, func()) {
	if !cfg.IsProspectusQueueEnabled() {
		log.Warn("REDIS_URL not configured; prospectus requests are sent inline")
		return nil, nil
	}

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize prospectus queue client", "error", err)
		return nil, nil
	}

	return queueClient, func() {
		_ = queueClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
