package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"cashtimachann/internal/amqp"
	"cashtimachann/internal/backend"
	"cashtimachann/internal/cache"
	"cashtimachann/internal/cli"
	apphttp "cashtimachann/internal/http"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/middleware/idempotency"
	"cashtimachann/internal/middleware/ratelimit"
	"cashtimachann/internal/recipients"
	"cashtimachann/internal/services"
	"cashtimachann/internal/session"
	"cashtimachann/internal/twofactor"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize gateway", applog.FieldError, err.Error(), "backend", cfg.GatewayBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}
	gw := result.Gateway

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	sealer, err := session.NewSealer(cfg.SessionSecret)
	if err != nil {
		logger.Error("Failed to initialize session sealer", applog.FieldError, err.Error())
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set; sessions do not survive a restart")
	}

	caches := cache.NewManager(logger)

	var (
		sessionStore session.Store
		idemStore    idempotency.Store
		loginLimiter ratelimit.Allower
	)
	if rdb := cli.InitRedis(logger, cfg.RedisURL); rdb != nil {
		defer rdb.Close()
		sessionStore = session.NewRedisStore(rdb)
		idemStore = idempotency.NewRedisStore(rdb)
		loginLimiter = ratelimit.NewRedisLimiter(rdb, "ctm:login", cfg.LoginMaxPerMinute, logger)
	} else {
		mem := session.NewMemoryStore(10000)
		caches.Register("sessions", mem.Cache())
		sessionStore = mem
		idemStore = idempotency.NewMemoryStore(10000)
		loginLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.LoginMaxPerMinute})
	}

	sessions := session.NewManager(sessionStore, sealer, session.Options{
		TTL:               cfg.SessionTTL,
		InactivityTimeout: cfg.InactivityTimeout,
		LogoutGrace:       cfg.LogoutGrace,
		SecureCookies:     cfg.SecureCookies,
	}, logger)

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP_URL not set; recipients are saved inline and sheet export is disabled")
	}

	coreData := services.NewCoreData(gw, services.DefaultCoreDataConfig(), logger)
	caches.Register("core_data", coreData.Cache())

	book := recipients.NewBook(repo, logger)
	caches.Register("recipient_misses", book.Misses())
	caches.StartCleanup(5 * time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Gateway:          gw,
		Sessions:         sessions,
		CoreData:         coreData,
		Payments:         services.NewPayments(gw, coreData, book, publisher, logger),
		Admin:            services.NewAdmin(gw, repo, logger),
		Accounts:         services.NewAccounts(gw, logger),
		Recipients:       book,
		TwoFactor:        twofactor.NewService(repo, cfg.TOTPIssuer, logger),
		Publisher:        publisher,
		IdempotencyStore: idemStore,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		LoginLimiter:     loginLimiter,
		Logger:           logger,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
		caches.Stop()
	})

	logger.Info("Starting Cash Ti Machann dashboard",
		"port", cfg.Port,
		"backend", cfg.GatewayBackend,
		"redis", cfg.RedisURL != "",
		"amqp", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
