package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"talkative/internal/broker"
	"talkative/internal/chat"
	"talkative/internal/config"
	"talkative/internal/db"
	"talkative/internal/events"
	"talkative/internal/logging"
	"talkative/internal/presence"
	"talkative/internal/user"
)

type profileDirectory interface {
	chat.ProfileResolver
	user.Directory
}

func main() {
	// 1. Config & Flags
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	addr := flag.String("addr", cfg.Addr, "http service address")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Persistence (Postgres, or in-memory when no DSN is set)
	var (
		store     chat.Store
		groups    chat.MembershipResolver
		directory profileDirectory
	)
	if cfg.DatabaseDSN != "" {
		database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("failed to connect to DB", zap.Error(err))
		}
		defer database.Close()
		logger.Info("connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		store = chat.NewRepository(database.Conn)
		groups = chat.NewGroupRepository(database.Conn)
		directory = user.NewRepository(database.Conn)
	} else {
		logger.Warn("DB_DSN not set, messages are kept in memory")
		store = chat.NewMemoryStore()
		groups = chat.NewMemoryGroups()
		directory = user.NewMemoryDirectory()
	}

	// 3. Core: presence, ingest, fan-out
	registry := presence.NewRegistry()

	ingestOpts := chat.IngestOptions{
		StoreTimeout:  cfg.StoreTimeout,
		MaxTextLength: cfg.MaxTextLength,
		NotifyTimeout: cfg.NotifyTimeout,
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		ingestOpts.Notifier = producer
		logger.Info("publishing message events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	ingest := chat.NewIngestService(store, ingestOpts, logger.Named("ingest"))
	defer ingest.Close()

	router := chat.NewRouter(registry, groups, directory, cfg.ResolverTimeout, logger.Named("router"))
	var dispatcher chat.Dispatcher = router

	// 4. Optional cross-instance relay
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

		relay := broker.NewRelay(redisClient, cfg.RedisChannel, cfg.RelayWorkers, router, logger.Named("relay"))
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error("relay stopped", zap.Error(err))
			}
		}()
		dispatcher = relay
	}

	chatHandler := chat.NewHandler(registry, ingest, dispatcher, store, chat.HandlerOptions{
		SendBufferSize: cfg.SendBufferSize,
		MaxMessageSize: cfg.MaxMessageSize,
		HistoryLimit:   cfg.HistoryLimit,
	}, logger.Named("ws"))
	userHandler := user.NewHandler(directory, registry)

	// 5. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", chatHandler.Health)
	r.Get("/ws", chatHandler.ServeWs)
	r.Get("/api/messages", chatHandler.GetChatHistory)
	r.Get("/api/users/search", userHandler.SearchUsers)

	srv := &http.Server{Addr: *addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("server starting", zap.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("listen", zap.Error(err))
	}
	logger.Info("server stopped")
}
