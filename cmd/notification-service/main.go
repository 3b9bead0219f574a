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

	"auction-settlement/internal/api/handlers"
	apimiddleware "auction-settlement/internal/api/middleware"
	"auction-settlement/internal/config"
	"auction-settlement/internal/infrastructure/redis"
	"auction-settlement/internal/infrastructure/websocket"
	"auction-settlement/internal/services"
	"auction-settlement/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

func main() {
	log := logger.New()
	log.Info("Starting Notification Service")

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("Configuration loaded", "config", cfg.GetConfigString())

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	// Initialize components
	eventPublisher := redis.NewEventPublisher(rdb, log)
	connManager := websocket.NewConnectionManager(log)
	dispatcher := services.NewNotificationDispatcher(connManager, log)
	router := services.NewInterestRouter(eventPublisher, log)

	// Each consumer loop holds its own subscription
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	go func() {
		sub := redis.NewEventSubscriber(rdb, log)
		if err := router.Start(consumerCtx, sub); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Interest router stopped", "error", err)
		}
	}()
	go func() {
		sub := redis.NewEventSubscriber(rdb, log)
		if err := dispatcher.StartAuctionStream(consumerCtx, sub); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Auction stream stopped", "error", err)
		}
	}()
	go func() {
		sub := redis.NewEventSubscriber(rdb, log)
		if err := dispatcher.StartPaymentStream(consumerCtx, sub); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Payment stream stopped", "error", err)
		}
	}()

	// Initialize handlers
	pushHandler := websocket.NewPushHandler(dispatcher, log)
	interestHandler := handlers.NewInterestHandler(dispatcher, log)

	// Setup routes
	r := mux.NewRouter()
	r.Use(apimiddleware.CORS)

	r.HandleFunc("/ws/clients/{clientID}", pushHandler.HandleConnection)
	r.HandleFunc("/interests", interestHandler.RegisterInterest).Methods("POST")
	r.HandleFunc("/interests/{clientID}/{auctionID}", interestHandler.CancelInterest).Methods("DELETE")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Start HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("Starting notification service", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification service...")

	stopConsumers()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Notification service stopped")
}
