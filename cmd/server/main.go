package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wanderlog/service-payment/internal/adapter"
	"github.com/wanderlog/service-payment/internal/application"
	"github.com/wanderlog/service-payment/internal/common/auth"
	"github.com/wanderlog/service-payment/internal/common/database"
	"github.com/wanderlog/service-payment/internal/common/health"
	"github.com/wanderlog/service-payment/internal/common/kafka"
	"github.com/wanderlog/service-payment/internal/common/logger"
	"github.com/wanderlog/service-payment/internal/common/middleware"
	"github.com/wanderlog/service-payment/internal/common/response"
	"github.com/wanderlog/service-payment/internal/config"
	"github.com/wanderlog/service-payment/internal/domain/payment"
	paymentEvents "github.com/wanderlog/service-payment/internal/events"
	"github.com/wanderlog/service-payment/internal/handler"
	"github.com/wanderlog/service-payment/internal/repository"
	"github.com/wanderlog/service-payment/internal/saga"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, "service-payment")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting service-payment",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageConfig.Driver),
		zap.String("momo_mode", cfg.MomoConfig.Mode),
	)

	response.ExposeInternalErrors(cfg.AppEnv == "development")

	store, err := openStore(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to open payment store", zap.Error(err))
	}
	defer store.Close()

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		cfg.JWTConfig.AccessTTL,
		cfg.JWTConfig.RefreshTTL,
	)

	// Initialize event publisher
	var publisher kafka.Publisher
	if cfg.KafkaConfig.Enabled {
		producer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
		defer producer.Close()
		publisher = producer
	} else {
		zapLogger.Warn("kafka disabled, payment events will not be published")
		publisher = kafka.NewNoopPublisher(zapLogger)
	}

	// Initialize gateways
	gateways := adapter.NewRegistry().
		Register(payment.MethodMobileMoney, newMomoGateway(cfg.MomoConfig, zapLogger))

	// Initialize workflow and application services
	issuer := saga.NewReceiptIssuer(zapLogger)
	workflow := saga.NewPaymentWorkflow(store, gateways, issuer, publisher, saga.WorkflowOptions{
		ResolveTimeout: cfg.ResolveTimeout,
		PayerMessage:   cfg.PayerMessage,
		PayeeNote:      cfg.PayeeNote,
	}, zapLogger)

	qr := adapter.NewReceiptQRGenerator(cfg.ReceiptConfig.VerifyBaseURL, cfg.ReceiptConfig.QRSize)
	paymentService := application.NewPaymentService(store, workflow, qr, zapLogger)
	reconciler := application.NewReconciler(
		store,
		workflow,
		cfg.ReconcileConfig.Grace,
		cfg.ReconcileConfig.BatchSize,
		zapLogger,
	)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if cfg.ReconcileConfig.Enabled {
		go reconciler.Run(bgCtx, cfg.ReconcileConfig.Interval)
	}

	// Start Kafka consumer for booking events
	if cfg.KafkaConfig.Enabled {
		consumerGroupID := cfg.KafkaConfig.GroupPrefix + "payment-service"
		bookingConsumer := paymentEvents.NewBookingEventConsumer(
			cfg.KafkaConfig.Brokers,
			consumerGroupID,
			paymentService,
			zapLogger,
		)
		defer bookingConsumer.Close()

		go func() {
			zapLogger.Info("starting booking event consumer")
			if err := bookingConsumer.Start(bgCtx); err != nil {
				if bgCtx.Err() == nil {
					zapLogger.Error("booking event consumer failed", zap.Error(err))
				}
			}
		}()
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	handler.RegisterFallbacks(router)

	// Register health check routes
	health.NewHandler(store, "service-payment").RegisterRoutes(router)

	// Register payment routes
	apiV1 := router.Group("/api/v1")
	handler.NewPaymentHandler(paymentService).RegisterRoutes(apiV1, jwtManager)
	handler.NewAdminPaymentHandler(paymentService, reconciler).RegisterRoutes(apiV1, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ResolveTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down service-payment...")

	// Stop the consumer and the reconciler
	bgCancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("service-payment stopped")
}

// openStore connects the configured backend and brings its schema up to date.
func openStore(cfg *config.ServiceConfig, zapLogger *zap.Logger) (repository.Store, error) {
	if cfg.StorageConfig.Driver == config.StorageBolt {
		zapLogger.Info("using embedded bolt store", zap.String("path", cfg.StorageConfig.BoltPath))
		return repository.NewBoltStore(cfg.StorageConfig.BoltPath)
	}

	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	db, err := database.Connect(dbConfig, zapLogger)
	if err != nil {
		return nil, err
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(repository.AutoMigrateModels()...); err != nil {
			return nil, err
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(dbConfig.DatabaseURL(), repository.Migrations, repository.MigrationsDir, zapLogger); err != nil {
			return nil, err
		}
	}

	return repository.NewGormStore(db), nil
}

// newMomoGateway returns the live MoMo client or the in-process simulator.
func newMomoGateway(cfg config.MomoConfig, zapLogger *zap.Logger) adapter.Gateway {
	if cfg.Mode == config.MomoModeMock {
		zapLogger.Warn("using mock MoMo gateway", zap.String("outcome", cfg.MockOutcome))
		return adapter.NewMockMomoAdapter(cfg.MockOutcome, zapLogger)
	}
	return adapter.NewMomoAdapter(adapter.MomoOptions{
		BaseURL:           cfg.BaseURL,
		SubscriptionKey:   cfg.SubscriptionKey,
		APIUser:           cfg.APIUser,
		APIKey:            cfg.APIKey,
		TargetEnvironment: cfg.TargetEnvironment,
		Timeout:           cfg.Timeout,
		StatusRetries:     cfg.StatusRetries,
	}, zapLogger)
}
