package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"webhook-bridge/internal/api"
	"webhook-bridge/internal/auth"
	"webhook-bridge/internal/command"
	"webhook-bridge/internal/config"
	"webhook-bridge/internal/consumer"
	"webhook-bridge/internal/dedup"
	"webhook-bridge/internal/delivery"
	"webhook-bridge/internal/manager"
	"webhook-bridge/internal/messaging"
	"webhook-bridge/internal/metrics"
	"webhook-bridge/internal/render"
	"webhook-bridge/internal/router"
	"webhook-bridge/internal/storage"
	"webhook-bridge/internal/worker"
)

// @title Webhook Bridge Management API
// @version 1.0
// @description Manage chat-room webhook registrations. Tokens carry the subscriber's chat user id as subject.
// @host localhost:8080
// @BasePath /
// @schemes http

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	issueToken := flag.String("issue-token", "", "print a management API token for this chat user id and exit")
	flag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := cfg.NewLogger(os.Stderr)
	logger.Info("configuration loaded", "path", *configPath)

	var authn *auth.Authenticator
	if cfg.Auth.JWTSecret != "" {
		authn = auth.NewAuthenticator(cfg.Auth.JWTSecret, 0)
	}
	if *issueToken != "" {
		if authn == nil {
			log.Fatalf("auth.jwt_secret is not set")
		}
		token, err := authn.GenerateToken(*issueToken)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// Init Metrics
	metrics.Init()

	// Init Tracing
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Init Database
	db, err := storage.NewStorage(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()
	logger.Info("database connected", "driver", db.Driver())

	// Init RabbitMQ
	rabbitClient, err := messaging.NewRabbitClient(cfg.RabbitMQ.URL, cfg.RabbitMQ.EventsQueue, cfg.RabbitMQ.RepliesQueue, logger)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitClient.Close()
	if err := rabbitClient.DeclareQueues(); err != nil {
		log.Fatalf("Failed to declare queues: %v", err)
	}
	logger.Info("rabbitmq connected")

	// Init Dedup
	var deduper dedup.Deduper = dedup.Noop{}
	if cfg.Redis.URL != "" {
		d, err := dedup.NewRedis(context.Background(), cfg.Redis.URL, cfg.Redis.DedupTTL, logger)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		deduper = d
		logger.Info("redis dedup enabled", "ttl", cfg.Redis.DedupTTL)
	}
	defer deduper.Close()

	// Event pipeline
	renderer := render.NewRenderer(cfg.MessageTemplate, cfg.CustomFields, cfg.IncludeEmptyFields, logger)
	engine := delivery.NewEngine(cfg.Delivery(), rabbitClient, delivery.NewTracer(nil), logger)
	rt := router.New(db, renderer, engine, router.Options{
		BotUserID:     cfg.Bot.UserID,
		CommandPrefix: cfg.Bot.CommandPrefix,
	}, logger)
	commands := command.New(db, rabbitClient, cfg.Bot.CommandPrefix, logger)

	// Graceful Shutdown Setup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := worker.NewWorkerPool(cfg.Workers, rt, commands, deduper, logger)
	pipeline := manager.NewManager(pool, func(handler func(amqp.Delivery)) (manager.Source, error) {
		c, err := consumer.StartConsumer(rabbitClient.GetConnection(), rabbitClient.EventsQueue(), cfg.Workers*2, handler, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}, rabbitClient, 10*time.Second, logger)
	if err := pipeline.Start(ctx); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}

	// Init API
	apiHandler := api.NewAPI(db, authn, logger)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting API server", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done() // Wait for interrupt signal
	logger.Info("shutdown initiated")

	// Shutdown sequence
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}

	// Stop taking events, then let in-flight deliveries finish or give up at the deadline
	pipeline.Shutdown(shutdownCtx)

	logger.Info("graceful shutdown complete")
}
