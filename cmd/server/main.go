package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"barter/internal/api"
	"barter/internal/auth"
	"barter/internal/config"
	"barter/internal/db"
	"barter/internal/email"
	"barter/internal/events"
	"barter/internal/notify"
	"barter/internal/pubsub"
	"barter/internal/ratelimit"
	"barter/internal/trade"
	"barter/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	if cfg.Database.SeedDemoData {
		seedDemoData(database, cfg.Auth.BcryptCost)
	}

	accountRepo := db.NewAccountRepository(database)
	profileRepo := db.NewProfileRepository(database)
	itemRepo := db.NewItemRepository(database)
	refreshTokenRepo := db.NewRefreshTokenRepository(database)
	resetTokenRepo := db.NewResetTokenRepository(database)
	tradeRepo := db.NewTradeRepository(database)
	messageRepo := db.NewMessageRepository(database)
	notificationRepo := db.NewNotificationRepository(database)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanupService := db.NewCleanupService(refreshTokenRepo, resetTokenRepo, cfg.Database.CleanupInterval)
	go cleanupService.Start(ctx)

	emailService := email.NewSMTPService(
		cfg.Email.SMTP.Host,
		cfg.Email.SMTP.Port,
		cfg.Email.SMTP.Username,
		cfg.Email.SMTP.Password,
		cfg.Email.SMTP.From,
		cfg.Auth.ResetTokenTTL,
	)
	slog.Info("email configured", "host", cfg.Email.SMTP.Host, "port", cfg.Email.SMTP.Port)

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	tokenService := auth.NewTokenService(jwtService, refreshTokenRepo)
	accountService := auth.NewAccountService(
		accountRepo,
		profileRepo,
		resetTokenRepo,
		tokenService,
		emailService,
		auth.AccountServiceConfig{
			ResetTokenTTL: cfg.Auth.ResetTokenTTL,
			BcryptCost:    cfg.Auth.BcryptCost,
		},
	)

	hub := ws.NewHub(ws.NewParticipantAuthorizer(tradeRepo))

	publishers := pubsub.Multi{hub}
	var broker *pubsub.AMQPPublisher
	if cfg.Broker.URL != "" {
		broker, err = pubsub.DialAMQP(cfg.Broker.URL, cfg.Broker.Exchange, cfg.Broker.BufferSize)
		if err != nil {
			slog.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		broker.Start(ctx)
		publishers = append(publishers, broker)
		slog.Info("broker mirror enabled", "exchange", cfg.Broker.Exchange)
	}

	bus := events.NewBus()
	dispatcher := notify.NewDispatcher(notificationRepo, publishers)
	dispatcher.Register(bus)
	notify.NewRelay(publishers).Register(bus)
	tradeService := trade.NewService(tradeRepo, itemRepo, profileRepo, messageRepo, bus)

	limiterCfg := ratelimit.Config{
		Capacity:     cfg.RateLimit.Capacity,
		RefillTokens: cfg.RateLimit.RefillTokens,
		Period:       cfg.RateLimit.Period,
	}
	var limiter ratelimit.Limiter = ratelimit.NewRegistry(limiterCfg)
	if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("redis not reachable, rate limiter will fail open", "addr", cfg.Redis.Addr, "error", err)
		}
		limiter = ratelimit.NewRedisLimiter(redisClient, limiterCfg, cfg.RateLimit.RedisPrefix, 0)
	}
	slog.Info("rate limiter configured",
		"backend", cfg.RateLimit.Backend,
		"capacity", limiterCfg.Capacity,
		"refill_tokens", limiterCfg.RefillTokens,
		"period", limiterCfg.Period.String(),
	)

	server, err := api.NewServer(cfg, api.Dependencies{
		Database:      database,
		Tokens:        tokenService,
		Accounts:      accountService,
		Trades:        tradeService,
		Notifications: dispatcher,
		Limiter:       limiter,
		Hub:           hub,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	accountService.WaitForMail()
	if broker != nil {
		if err := broker.Close(); err != nil {
			slog.Warn("broker close error", "error", err)
		}
	}
	cancel()

	slog.Info("server stopped")
}

func seedDemoData(database *db.DB, bcryptCost int) {
	hash, err := auth.HashPassword(db.DemoPassword, bcryptCost)
	if err != nil {
		slog.Error("failed to hash demo password", "error", err)
		os.Exit(1)
	}
	result, err := db.SeedDemoData(context.Background(), database, hash)
	if err != nil {
		slog.Error("failed to seed demo data", "error", err)
		os.Exit(1)
	}
	if result.Skipped {
		slog.Info("demo data skipped, database not empty")
		return
	}
	slog.Info("demo data seeded", "profiles", result.Profiles, "items", result.Items)
}
