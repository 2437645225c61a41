package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sendflow/internal/config"
	"sendflow/internal/db"
	"sendflow/internal/events"
	"sendflow/internal/fees"
	"sendflow/internal/logger"
	"sendflow/internal/models"
	"sendflow/internal/router"
	"sendflow/internal/services"
	"sendflow/internal/store"
	"sendflow/internal/store/memstore"
	"sendflow/internal/worker"
)

func main() {
	cfg, cfgErr := config.LoadConfig()

	log := logger.InitLogger(cfg.LogLevel)
	if cfgErr != nil {
		log.Fatal().Err(cfgErr).Msg("Invalid configuration")
	}
	log.Info().Str("store", cfg.StoreDriver).Msg("Starting SendFlow")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, &cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	publishers := events.Fanout{events.NewLogPublisher(log)}
	var limiter services.AttemptLimiter = services.NewLocalAttemptLimiter(cfg.CodeAttemptLimit, cfg.CodeAttemptWindow)
	var notifier *events.RedisNotifier

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis not reachable, realtime notifications may be delayed")
		}
		notifier = events.NewRedisNotifier(client, "sendflow")
		publishers = append(publishers, notifier)
		limiter = services.NewRedisAttemptLimiter(client, "sendflow", cfg.CodeAttemptLimit, cfg.CodeAttemptWindow)
		log.Info().Msg("Redis notifications and attempt limiter enabled")
	}

	if cfg.RabbitMQURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.RabbitMQURL, events.DefaultExchange)
		if err != nil {
			log.Error().Err(err).Msg("RabbitMQ unavailable, domain events will only be logged")
		} else {
			defer rabbit.Close()
			publishers = append(publishers, rabbit)
			log.Info().Str("exchange", events.DefaultExchange).Msg("RabbitMQ event publisher enabled")
		}
	}

	sagas := services.NewSagaRunner(st, st, log)
	deps := services.Deps{
		Store:             st,
		Sagas:             sagas,
		Publisher:         publishers,
		PlatformAccountID: cfg.PlatformAccountID,
		Logger:            log,
	}
	calc := fees.NewCalculator(cfg.Fees)

	authService := services.NewAuthService(cfg.JWTSecret, log)
	userService := services.NewUserService(st, log)
	balanceService := services.NewBalanceService(st, st, log)
	transferService := services.NewTransferService(deps, calc)
	withdrawalService := services.NewWithdrawalService(deps, calc, limiter)
	requestService := services.NewWithdrawalRequestService(deps, calc, userService, services.WithdrawalRequestOptions{
		FeeFree:          cfg.AgentRequestFeeFree,
		BiometricEnabled: cfg.BiometricEnabled,
	})
	depositService := services.NewDepositService(deps, calc)

	compensations := worker.NewCompensationWorker(st, sagas, cfg.CompensationInterval, cfg.CompensationMaxAttempts, log)
	go compensations.Run(ctx)

	scheduler := worker.NewScheduler(balanceService, transferService, worker.ScheduleConfig{
		Reconcile:          cfg.ReconcileSchedule,
		Expiry:             cfg.ExpirySchedule,
		PendingTransferTTL: cfg.PendingTransferTTL,
	}, log)
	scheduler.Start()

	svc := router.Services{
		Auth:               authService,
		Users:              userService,
		Balances:           balanceService,
		Transfers:          transferService,
		Withdrawals:        withdrawalService,
		WithdrawalRequests: requestService,
		Deposits:           depositService,
	}
	if notifier != nil {
		svc.Notifications = notifier
	}
	handler := router.SetupRouter(svc, router.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("Scheduled jobs still running at shutdown")
	}

	log.Info().Msg("Server stopped")
}

// openStore returns the configured ledger store and its cleanup function.
// The memory driver seeds the platform account it settles commissions into.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		mem := memstore.New()
		cfg.PlatformAccountID = mem.Seed(models.User{
			FullName: "SendFlow Platform",
			Phone:    "+000000000000",
			Email:    "platform@sendflow.local",
			Role:     models.RoleAdmin,
		}, decimal.Zero)
		log.Warn().Int("platform_account_id", cfg.PlatformAccountID).Msg("Using in-memory store, data is not persisted")
		return mem, func() {}, nil
	}

	database, err := db.InitDB(ctx, cfg.DBUrl, log)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(ctx, database, log); err != nil {
		database.Close()
		return nil, nil, err
	}
	return store.NewMySQLStore(database), func() { database.Close() }, nil
}
