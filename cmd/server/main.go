// Command server runs one vendcore service process. The service identity in
// the config decides which tables it owns, which stores and services are
// wired, and which event topics it consumes. Business logic lives in the
// internal context packages; main only assembles them.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	containermodels "vendcore/internal/container/models"
	containerservice "vendcore/internal/container/service"
	containerstore "vendcore/internal/container/store"
	"vendcore/internal/controller/health"
	controllerservice "vendcore/internal/controller/service"
	controllerstore "vendcore/internal/controller/store"
	deviceservice "vendcore/internal/device/service"
	devicestore "vendcore/internal/device/store"
	"vendcore/internal/events"
	"vendcore/internal/events/dedupe"
	"vendcore/internal/events/kafka"
	"vendcore/internal/events/outbox"
	ordermodels "vendcore/internal/order/models"
	orderservice "vendcore/internal/order/service"
	orderstore "vendcore/internal/order/store"
	"vendcore/internal/ownership"
	paymentgateway "vendcore/internal/payment/gateway"
	paymentmodels "vendcore/internal/payment/models"
	"vendcore/internal/payment/risk"
	paymentservice "vendcore/internal/payment/service"
	paymentstore "vendcore/internal/payment/store"
	"vendcore/internal/platform/config"
	"vendcore/internal/platform/httpserver"
	"vendcore/internal/platform/logger"
	"vendcore/internal/platform/metrics"
	platformredis "vendcore/internal/platform/redis"
	storagepg "vendcore/internal/storage/postgres"
	"vendcore/internal/transport/ops"
	"vendcore/internal/user"
	userservice "vendcore/internal/user/service"
	userstore "vendcore/internal/user/store"
	"vendcore/internal/user/token"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(string(cfg.Service))

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}

func run(cfg config.Config, log *slog.Logger) error {
	registry, err := ownership.NewRegistry(ownership.DefaultTopology())
	if err != nil {
		return fmt.Errorf("ownership topology: %w", err)
	}
	guard := ownership.NewGuard(registry, cfg.Service)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.NewWith(promRegistry)

	publisher, err := kafka.New(cfg.KafkaBrokers,
		kafka.WithTopicPrefix(cfg.TopicPrefix),
		kafka.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	defer publisher.Close()

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = publisher.EnsureTopics(startupCtx, []string{
		containermodels.AggregateType, "controller", "device",
		ordermodels.AggregateType, paymentmodels.AggregateType, "user",
	}, 3, 1)
	if err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}

	var seen dedupe.SeenStore = dedupe.NewMemoryStore()
	if redisClient != nil {
		seen, err = dedupe.NewRedisStore(redisClient.Client, "vendcore:seen", 24*time.Hour)
		if err != nil {
			return fmt.Errorf("dedupe store: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	rt := &runtime{
		log:        log,
		db:         db,
		guard:      guard,
		metrics:    m,
		bus:        events.NewBus(events.WithBusLogger(log), events.WithBusMetrics(m)),
		idempotent: dedupe.Middleware(seen, log, m),
		group:      group,
	}

	var (
		sink           outbox.Store
		consumedTopics []string
	)
	switch cfg.Service {
	case ownership.ServiceMachines:
		sink, consumedTopics, err = rt.wireMachines(ctx)
	case ownership.ServiceCommerce:
		sink, consumedTopics, err = rt.wireCommerce(ctx, cfg)
	default:
		err = fmt.Errorf("unknown service identity %q", cfg.Service)
	}
	if err != nil {
		return err
	}

	worker, err := outbox.NewWorker(sink, publisher,
		outbox.WithWorkerLogger(log), outbox.WithWorkerMetrics(m))
	if err != nil {
		return fmt.Errorf("outbox worker: %w", err)
	}
	group.Go(func() error { return worker.Run(ctx) })

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, string(cfg.Service), consumedTopics, rt.bus,
		kafka.WithConsumerTopicPrefix(cfg.TopicPrefix),
		kafka.WithConsumerLogger(log))
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer consumer.Close()
	group.Go(func() error { return consumer.Run(ctx) })

	checks := map[string]ops.HealthCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}
	srv := httpserver.New(cfg.Addr, ops.NewRouter(promRegistry, checks))

	group.Go(func() error {
		log.Info("starting ops server", "addr", cfg.Addr, "service", string(cfg.Service))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// runtime carries the pieces every context wiring needs.
type runtime struct {
	log        *slog.Logger
	db         *sql.DB
	guard      *ownership.Guard
	metrics    *metrics.Metrics
	bus        *events.Bus
	idempotent func(events.Handler) events.Handler
	group      *errgroup.Group
}

// wireMachines assembles the hardware side: controllers, devices, containers,
// the fleet health sweep, and the stock reservation triggered by commerce
// orders.
func (rt *runtime) wireMachines(ctx context.Context) (outbox.Store, []string, error) {
	if err := rt.migrate(ctx,
		controllerstore.Schema(), devicestore.Schema(), containerstore.Schema(),
		storagepg.AuditSchema(controllerstore.AuditTable),
		outbox.Schema("machine_events"),
	); err != nil {
		return nil, nil, err
	}

	sink, err := outbox.NewPostgres(rt.db, rt.guard, "machine_events")
	if err != nil {
		return nil, nil, fmt.Errorf("outbox store: %w", err)
	}

	controllers, err := controllerstore.NewPostgres(rt.db, rt.guard, sink, rt.log)
	if err != nil {
		return nil, nil, fmt.Errorf("controller store: %w", err)
	}
	containers, err := containerstore.NewPostgres(rt.db, rt.guard, sink, rt.log)
	if err != nil {
		return nil, nil, fmt.Errorf("container store: %w", err)
	}
	devices, err := devicestore.NewPostgres(rt.db, rt.guard, sink, rt.log)
	if err != nil {
		return nil, nil, fmt.Errorf("device store: %w", err)
	}

	app := machinesApp{
		controllers: controllerservice.New(controllers,
			controllerservice.WithLogger(rt.log), controllerservice.WithMetrics(rt.metrics),
			controllerservice.WithHealthChecker(health.NewChecker(health.WithLogger(rt.log)))),
		devices: deviceservice.New(devices, controllers, containers,
			deviceservice.WithLogger(rt.log), deviceservice.WithMetrics(rt.metrics)),
		containers: containerservice.New(containers, controllers,
			containerservice.WithLogger(rt.log), containerservice.WithMetrics(rt.metrics)),
	}

	rt.bus.Subscribe(ordermodels.EventOrderPlaced, rt.idempotent(app.containers.OrderPlacedHandler()))

	rt.group.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := app.controllers.SweepHealth(ctx); err != nil {
					rt.log.Error("health sweep failed", "error", err)
				}
			}
		}
	})

	return sink, []string{ordermodels.AggregateType}, nil
}

// wireCommerce assembles the customer side: accounts, orders, payments, and
// the order settlement triggered by successful charges.
func (rt *runtime) wireCommerce(ctx context.Context, cfg config.Config) (outbox.Store, []string, error) {
	if err := rt.migrate(ctx,
		userstore.Schema(), orderstore.Schema(), paymentstore.Schema(),
		storagepg.AuditSchema(userstore.AuditTable),
		outbox.Schema("commerce_events"),
	); err != nil {
		return nil, nil, err
	}

	sink, err := outbox.NewPostgres(rt.db, rt.guard, "commerce_events")
	if err != nil {
		return nil, nil, fmt.Errorf("outbox store: %w", err)
	}

	users, err := userstore.NewPostgres(rt.db, rt.guard, sink, rt.log)
	if err != nil {
		return nil, nil, fmt.Errorf("user store: %w", err)
	}
	orders, err := orderstore.NewPostgres(rt.db, rt.guard, sink, rt.log)
	if err != nil {
		return nil, nil, fmt.Errorf("order store: %w", err)
	}
	payments, err := paymentstore.NewPostgres(rt.db, rt.guard, sink, rt.log)
	if err != nil {
		return nil, nil, fmt.Errorf("payment store: %w", err)
	}
	methods, err := paymentstore.NewMethodPostgres(rt.db, rt.guard, sink, rt.log)
	if err != nil {
		return nil, nil, fmt.Errorf("payment method store: %w", err)
	}

	tokens := token.NewService(cfg.JWTSigningKey, "vendcore", cfg.TokenTTL)
	app := commerceApp{
		users: userservice.New(users, tokens,
			userservice.WithLogger(rt.log), userservice.WithMetrics(rt.metrics),
			userservice.WithPurchaseHistory(orders)),
		orders: orderservice.New(orders, user.NewDirectory(users),
			orderservice.WithLogger(rt.log), orderservice.WithMetrics(rt.metrics)),
		payments: paymentservice.New(payments, methods,
			paymentgateway.NewOffline(rt.log),
			risk.NewScreener(risk.WithLogger(rt.log)),
			paymentservice.WithLogger(rt.log), paymentservice.WithMetrics(rt.metrics)),
	}

	rt.bus.Subscribe(paymentmodels.EventPaymentSucceeded, rt.idempotent(app.orders.PaymentSucceededHandler()))

	return sink, []string{paymentmodels.AggregateType}, nil
}

// migrate applies idempotent DDL so a fresh database is usable on first boot.
func (rt *runtime) migrate(ctx context.Context, statements ...string) error {
	for _, statement := range statements {
		if _, err := rt.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// machinesApp groups the machines-service surface. The controller and device
// services have no in-process trigger yet; they are driven by the telemetry
// transport deployed next to this binary.
type machinesApp struct {
	controllers *controllerservice.Service
	devices     *deviceservice.Service
	containers  *containerservice.Service
}

// commerceApp groups the commerce-service surface. Account and charge flows
// are driven by the customer-facing transport deployed next to this binary.
type commerceApp struct {
	users    *userservice.Service
	orders   *orderservice.Service
	payments *paymentservice.Service
}
