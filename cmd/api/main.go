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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	v1 "go-chatline/cmd/api/router/v1"
	"go-chatline/internal/config"
	authAdapter "go-chatline/internal/infrastructure/auth/adapter"
	"go-chatline/internal/infrastructure/database"
	"go-chatline/internal/infrastructure/logging"
	busAdapter "go-chatline/internal/infrastructure/pubsub/adapter"
	busPort "go-chatline/internal/infrastructure/pubsub/port"
	queueAdapter "go-chatline/internal/infrastructure/queue/adapter"
	"go-chatline/internal/infrastructure/realtime"
	"go-chatline/internal/pkg/chat/application/port"
	"go-chatline/internal/pkg/chat/application/task"
	repoAdapter "go-chatline/internal/pkg/chat/persistence/repository/adapter"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
	"go-chatline/internal/pkg/chat/presentation/controller"
	httpHandler "go-chatline/internal/pkg/chat/presentation/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatline: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]controller.HealthCheck{}

	repo, closeStore, err := openStore(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	var bus busPort.Bus
	if cfg.RedisURL != "" {
		redisBus, err := busAdapter.NewRedisBus(cfg.RedisURL, log.Named("bus"))
		if err != nil {
			return err
		}
		bus = redisBus
		checks["redis"] = redisBus.Ping
	} else {
		log.Info("REDIS_URL not set, running as a single instance")
		bus = busAdapter.NewLocalBus()
	}
	defer bus.Close()

	hub := realtime.NewHub(bus, realtime.WithLogger(log.Named("hub")), realtime.WithChannel(cfg.BusChannel))
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	defer hub.Close()

	verifier, err := authAdapter.NewJWTVerifier(cfg.JWTSecret)
	if err != nil {
		return err
	}

	uc := httpHandler.NewUseCases(repo, hub, port.AllowAll{}, cfg.HistoryPageSize)
	deps := httpHandler.Deps{
		Hub:            hub,
		Verifier:       verifier,
		Log:            log,
		AuthTimeout:    cfg.AuthTimeout,
		RequestTimeout: cfg.RequestTimeout,
	}

	workerDone := make(chan error, 1)
	if cfg.RedisURL != "" {
		client, err := queueAdapter.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		deps.Queue = client

		srv, err := queueAdapter.NewAsynqServer(queueAdapter.ServerConfig{
			RedisURL:    cfg.RedisURL,
			Concurrency: cfg.AsynqConcurrency,
			Queues:      cfg.AsynqQueues,
		}, log.Named("worker"))
		if err != nil {
			return err
		}
		task.RegisterSendMessageTask(srv, uc.Send, log.Named("task"))
		go func() { workerDone <- srv.Run(ctx) }()
	} else {
		close(workerDone)
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), httpHandler.RequestLogger(log.Named("http")))
	v1.RegisterRoutes(r, deps, uc, checks)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", string(cfg.StoreBackend)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// websocket handlers are hijacked and not tracked by Shutdown; closing the hub ends them
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	stop()
	if err := <-workerDone; err != nil {
		log.Warn("worker stopped with error", zap.Error(err))
	}
	return nil
}

// openStore connects the configured conversation store and registers its
// health check. The returned func releases the connection.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger, checks map[string]controller.HealthCheck) (repository.ChatRepository, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := database.Connect(connectCtx, cfg.DatabaseURL, database.WithMaxConns(cfg.DBMaxConns))
		if err != nil {
			return nil, nil, err
		}
		if cfg.MigrateOnStart {
			if err := database.Migrate(connectCtx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
		log.Info("postgres store ready")
		return repoAdapter.NewPgChatRepository(pool), closePool(pool), nil

	case config.StoreMongo:
		client, err := database.ConnectMongo(connectCtx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		db := client.Database(cfg.MongoDatabase)
		if cfg.MigrateOnStart {
			if err := database.EnsureMongoIndexes(connectCtx, db, repoAdapter.MongoConversations, repoAdapter.MongoMessages); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, nil, err
			}
		}
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		log.Info("mongo store ready", zap.String("database", cfg.MongoDatabase))
		return repoAdapter.NewMongoChatRepository(db), disconnectMongo(client), nil

	default:
		log.Warn("using in-memory store; data is lost on restart")
		return repoAdapter.NewMemoryChatRepository(), func() {}, nil
	}
}

func closePool(pool *pgxpool.Pool) func() {
	return pool.Close
}

func disconnectMongo(client *mongo.Client) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}
}
