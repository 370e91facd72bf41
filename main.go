// main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chowdash/cache"
	"chowdash/controllers"
	"chowdash/ingest"
	"chowdash/middleware"
	"chowdash/reconcile"
	"chowdash/routes"
	"chowdash/utils"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found. Proceeding with environment variables.")
	}

	// Set the JWT secret key
	utils.JwtKey = []byte(os.Getenv("JWT_SECRET"))

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "chowdash"
	}

	// Initialize EmailService
	emailService := utils.NewEmailService()
	notifier := utils.NewNotifier(logger)

	// Connect to MongoDB
	client := utils.ConnectDB(logger)
	defer func() {
		if err := client.Disconnect(context.TODO()); err != nil {
			logger.Error("failed to disconnect MongoDB", zap.Error(err))
		}
	}()

	// Redis is optional: without it menu reads fall through to Mongo
	rdb, err := cache.InitRedis(logger)
	if err != nil {
		logger.Warn("Redis unavailable, menu caching disabled", zap.Error(err))
		rdb = nil
	}

	store := reconcile.NewMongoStores(client, dbName, logger)
	cfg := reconcile.DefaultConfig()

	// Initialize controllers
	customerController := controllers.NewCustomerController(client, dbName, emailService)
	menuController := controllers.NewMenuController(client, dbName, rdb, logger)
	cartController := controllers.NewCartController(client, dbName)
	orderController := controllers.NewOrderController(client, dbName, store, cfg, emailService, notifier, logger)
	adminController := controllers.NewAdminController(client, dbName, emailService, logger)
	alertController := controllers.NewAlertController(client, dbName, logger)
	announcementController := controllers.NewAnnouncementController(client, dbName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Drain the bank alert topic when a broker is configured
	if os.Getenv("KAFKA_BROKER") != "" {
		consumer, err := ingest.InitConsumer(logger)
		if err != nil {
			logger.Fatal("failed to initialize Kafka consumer", zap.Error(err))
		}
		defer consumer.Close()
		go func() {
			if err := ingest.StartConsumer(ctx, consumer, client.Database(dbName), logger); err != nil {
				logger.Error("Kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	// Set up the router
	router := mux.NewRouter()
	router.Use(middleware.MetricsMiddleware)
	router.Handle("/metrics", middleware.PrometheusHandler()).Methods("GET")

	// Register routes
	routes.RegisterRoutes(router, customerController, menuController, cartController,
		orderController, adminController, alertController, announcementController)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.Info("Server is running", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
