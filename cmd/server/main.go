package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/api"
	"marketplace-service/internal/broker"
	"marketplace-service/internal/events"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/service"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"
	"marketplace-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting marketplace service")

	decimal.MarshalJSONWithoutQuotes = true

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	migrateCancel()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMarketplace)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicMarketplace))

	eventPublisher := broker.NewEventPublisher(producer)
	dispatcher := events.NewDispatcher()

	filter := service.NewOwnershipFilter(db)
	ledger := service.NewCommissionLedger(db, cfg.Business.CommissionRate, eventPublisher)
	productService := service.NewProductService(db, filter)
	orderService := service.NewOrderService(db, filter, dispatcher, eventPublisher, redisClient, redisClient, service.OrderOptions{
		RejectEmptyOrders: cfg.Business.RejectEmptyOrders,
		IdempotencyTTL:    cfg.Business.IdempotencyTTL,
		LockTTL:           cfg.Business.OrderLockTTL,
	})
	statsService := service.NewStatsService(db, ledger)

	dispatcher.Subscribe("commission-ledger", ledger.HandleOrderStatusChanged)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var hostWorker *worker.HostOrderWorker
	if cfg.Kafka.ConsumeHostEvents {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicHostOrders, cfg.Kafka.ConsumerGroup)
		hostWorker = worker.NewHostOrderWorker(consumer, service.NewHostEventHandler(db, orderService))
		go func() {
			if err := hostWorker.Start(workerCtx); err != nil {
				logger.Error("Host order worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(
		api.Services{
			Products:    productService,
			Orders:      orderService,
			Stats:       statsService,
			Commissions: ledger,
		},
		api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		api.Paging{DefaultPerPage: cfg.Business.DefaultPerPage, MaxPerPage: cfg.Business.MaxPerPage},
		map[string]api.Pinger{"postgres": db, "redis": redisClient},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if hostWorker != nil {
		if err := hostWorker.Stop(); err != nil {
			logger.Error("Failed to stop host order worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
