package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/audit"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/notify"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/persistence"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/internal/sla"
	"github.com/spec-kit/helpdesk-engine/internal/worker"
)

// Container holds the wired engine shared by the API server and the CLI.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Store      repository.Store
	SLA        *sla.Engine
	Events     events.Dispatcher
	Notifier   *notify.AsyncDispatcher
	Tickets    *service.TicketService
	Bulk       *service.BulkCoordinator
	Escalation *service.EscalationService
}

// New connects storage, runs migrations when configured and wires every service.
// Without a Postgres DSN the engine runs on the in-memory store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	engine, err := sla.NewEngine(cfg.SLA.Policy)
	if err != nil {
		return nil, fmt.Errorf("sla engine: %w", err)
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var store repository.Store
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory store")
		store = repository.NewMemoryStore()
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	sinks := notify.FanoutSink{notify.NewLogSink(logger, cfg.Notification.EmailFrom, cfg.Notification.WebhookURL)}
	if redis.Enabled() {
		sinks = append(sinks, notify.NewRedisSink(redis, cfg.Notification.QueueKey, cfg.Notification.QueueMaxLen))
	}
	metrics := observability.NewMetrics()
	notifier := notify.NewAsyncDispatcher(sinks, cfg.Notification.BufferSize, metrics, logger)
	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartNotificationWorker(
		dispatcher,
		service.NewNotificationService(dispatcher, notifier, logger),
		audit.NewComplianceLog(logger),
	)

	trail := audit.NewTrail(nil)
	machine := service.NewStateMachine(service.StateMachineDependencies{
		Store:        store,
		Trail:        trail,
		ReopenWindow: cfg.SLA.ReopenWindow(),
	})
	router := service.NewAssignmentRouter(service.AssignmentDependencies{
		Store:   store,
		Trail:   trail,
		Machine: machine,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		SLA:        engine,
		Trail:      trail,
		Machine:    machine,
		Router:     router,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Postgres: pg,
		Redis:    redis,
		Store:    store,
		SLA:      engine,
		Events:   dispatcher,
		Notifier: notifier,
		Tickets:  tickets,
		Bulk: service.NewBulkCoordinator(service.BulkDependencies{
			Tickets:    tickets,
			Dispatcher: dispatcher,
			Notifier:   notifier,
			Metrics:    metrics,
			Logger:     logger,
			Workers:    cfg.Bulk.Workers,
			MaxItems:   cfg.Bulk.MaxItems,
		}),
		Escalation: service.NewEscalationService(service.EscalationDependencies{
			Store:      store,
			SLA:        engine,
			Trail:      trail,
			Dispatcher: dispatcher,
			Metrics:    metrics,
			Logger:     logger,
			BatchSize:  cfg.SLA.SweepBatchSize,
		}),
	}, nil
}

// Close drains pending notifications and releases connections.
func (c *Container) Close() {
	c.Notifier.Close()
	c.Redis.Close()
	c.Postgres.Close()
}
