package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yuzvak/checkout-service/internal/application/commands"
	"github.com/yuzvak/checkout-service/internal/application/use_cases"
	"github.com/yuzvak/checkout-service/internal/config"
	"github.com/yuzvak/checkout-service/internal/domain/notification"
	"github.com/yuzvak/checkout-service/internal/infrastructure/bloom"
	"github.com/yuzvak/checkout-service/internal/infrastructure/http/handlers"
	"github.com/yuzvak/checkout-service/internal/infrastructure/http/server"
	"github.com/yuzvak/checkout-service/internal/infrastructure/messaging/kafka"
	"github.com/yuzvak/checkout-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/checkout-service/internal/infrastructure/orderapi"
	"github.com/yuzvak/checkout-service/internal/infrastructure/persistence/postgres"
	"github.com/yuzvak/checkout-service/internal/infrastructure/persistence/redis"
	"github.com/yuzvak/checkout-service/internal/infrastructure/scheduler"
	"github.com/yuzvak/checkout-service/internal/infrastructure/stripe"
	"github.com/yuzvak/checkout-service/internal/pkg/logger"
)

const (
	transitionBuffer   = 1024
	deliveryFilterKey  = "checkout:cart-events:delivered"
	deliveryFilterSize = 1_000_000
	supportPrefix      = "/api/support/"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Sync()
	log.Info("Starting Checkout Service")

	cfg, configErr := config.LoadConfig(*configPath)
	if configErr != nil {
		log.Fatal("Failed to load configuration", "error", configErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, dbErr := postgres.NewConnection(ctx, cfg.Database)
	if dbErr != nil {
		log.Fatal("Failed to connect to database", "error", dbErr)
	}
	defer db.Close()

	if migrationErr := postgres.RunMigrations(db, cfg.Database.MigrationsPath, log); migrationErr != nil {
		log.Fatal("Failed to run migrations", "error", migrationErr)
	}

	redisConn, err := redis.NewConnection(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisConn.Close()

	dbMetricsCollector := monitoring.NewDBMetricsCollector(db.GetDB())
	dbMetricsCollector.StartCollecting(ctx, 30*time.Second)

	carts := redis.NewCartStore(redisConn, log)
	reconciliations := postgres.NewReconciliationRepository(db)

	transitionLog := postgres.NewTransitionLog(db, transitionBuffer, log)
	transitionLog.Start()
	recorder := monitoring.NewCheckoutMetricsRecorder(transitionLog)

	orders := orderapi.NewClient(orderapi.Options{
		BaseURL:         cfg.OrdersAPI.BaseURL,
		Timeout:         cfg.OrdersAPI.Timeout.Duration,
		BreakerFailures: cfg.OrdersAPI.BreakerFailures,
		BreakerCooldown: cfg.OrdersAPI.BreakerCooldown.Duration,
	}, log)
	confirmer := stripe.NewConfirmer(stripe.Options{
		SecretKey: cfg.Stripe.SecretKey,
		ReturnURL: cfg.Stripe.ReturnURL,
		Timeout:   cfg.Stripe.Timeout.Duration,
	}, log)

	registry := use_cases.NewSessionRegistry(carts, use_cases.CheckoutDependencies{
		Config:          orders,
		Intents:         orders,
		Confirmer:       confirmer,
		Orders:          orders,
		Carts:           carts,
		Reconciliations: reconciliations,
		Transitions:     recorder,
	}, use_cases.CheckoutSettings{
		Currency:        cfg.Checkout.Currency,
		SuccessRedirect: cfg.Checkout.SuccessRedirect,
	}, use_cases.RegistryLimits{
		SessionTTL:        cfg.Checkout.SessionTTL.Duration,
		TerminalRetention: cfg.Checkout.TerminalRetention.Duration,
	}, nil, log)

	queue := notification.NewQueue(cfg.Checkout.NotificationTTL.Duration, nil)

	var (
		publisher handlers.CartEventPublisher
		consumer  *kafka.CartEventsConsumer
		kafkaPub  *kafka.CartEventsPublisher
	)
	kafkaClient := kafka.NewClient(cfg.Kafka.Brokers)
	if kafkaClient.Enabled() {
		kafkaPub = kafka.NewCartEventsPublisher(kafkaClient, cfg.Kafka.CartEventsTopic)
		publisher = kafkaPub
		deliveries := bloom.NewDeliveryFilter(redisConn.GetClient(), deliveryFilterKey, deliveryFilterSize, 0.001, 24*time.Hour)
		bits, hashes := deliveries.Size()
		log.Info("Cart event delivery filter ready",
			"bits", bits,
			"hashes", hashes,
			"false_positive_rate_at_capacity", deliveries.EstimateFalsePositiveRate(deliveryFilterSize))
		consumer = kafka.NewCartEventsConsumer(kafkaClient, cfg.Kafka.CartEventsTopic, cfg.Kafka.ConsumerGroupID, queue, log).
			WithDeliveryFilter(deliveries)
		go consumer.Run(ctx)
	} else {
		log.Info("Kafka disabled, cart events stay in process")
	}

	checkoutHandler := handlers.NewCheckoutHandler(
		commands.NewStartCheckoutHandler(registry, log),
		commands.NewConfirmPaymentHandler(registry, log),
		commands.NewResolvePaymentHandler(registry, log),
		commands.NewCheckoutSessionHandler(registry, log),
		log,
	)

	httpServer := server.NewServer(cfg.Server, server.Handlers{
		Health:        handlers.NewHealthHandler(db, redisConn, registry, log).WithOrderBreaker(orders),
		Checkout:      checkoutHandler,
		Notifications: handlers.NewNotificationHandler(queue, publisher, log),
		Support:       handlers.NewSupportHandler(reconciliations, transitionLog, log),
	}, log)

	var metricsServer *monitoring.MetricsServer
	if cfg.Server.MetricsAddr != "" {
		metricsServer = monitoring.NewMetricsServer(cfg.Server.MetricsAddr)
		if support := httpServer.SupportHandler(); support != nil {
			metricsServer.Mount(supportPrefix, support)
		}
		go func() {
			log.Info("Metrics server starting", "address", cfg.Server.MetricsAddr)
			if err := metricsServer.Start(); err != nil {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	reaper := scheduler.NewSessionReaper(
		registry,
		recorder,
		cfg.Checkout.ReapInterval.Duration,
		2*cfg.Checkout.SessionTTL.Duration,
		nil,
		log,
	)
	go reaper.Start(ctx)

	stopped := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer close(stopped)
		<-sigChan

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer shutdownCancel()

		log.Info("Shutting down server...")
		reaper.Stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				log.Error("Metrics server shutdown error", "error", err)
			}
		}

		if err := registry.Drain(shutdownCtx); err != nil {
			log.Warn("Checkout sessions still in flight at shutdown", "error", err)
		}
		registry.CloseAll()
		transitionLog.Stop()
		cancel()

		if consumer != nil {
			consumer.Close()
		}
		if kafkaPub != nil {
			if err := kafkaPub.Close(); err != nil {
				log.Error("Kafka writer close error", "error", err)
			}
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Server failed", "error", err)
	}

	<-stopped
	log.Info("Server stopped")
}
