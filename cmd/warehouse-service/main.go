package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	dispatchhandler "github.com/stockflow/stockflow-backend/internal/dispatch/handler"
	dispatchrepo "github.com/stockflow/stockflow-backend/internal/dispatch/repository"
	dispatchservice "github.com/stockflow/stockflow-backend/internal/dispatch/service"
	fulfillmenthandler "github.com/stockflow/stockflow-backend/internal/fulfillment/handler"
	fulfillmentrepo "github.com/stockflow/stockflow-backend/internal/fulfillment/repository"
	fulfillmentservice "github.com/stockflow/stockflow-backend/internal/fulfillment/service"
	"github.com/stockflow/stockflow-backend/internal/idempotency"
	"github.com/stockflow/stockflow-backend/internal/integration"
	inventoryhandler "github.com/stockflow/stockflow-backend/internal/inventory/handler"
	inventoryrepo "github.com/stockflow/stockflow-backend/internal/inventory/repository"
	inventoryservice "github.com/stockflow/stockflow-backend/internal/inventory/service"
	notificationhandler "github.com/stockflow/stockflow-backend/internal/notification/handler"
	notificationrepo "github.com/stockflow/stockflow-backend/internal/notification/repository"
	notificationservice "github.com/stockflow/stockflow-backend/internal/notification/service"
	"github.com/stockflow/stockflow-backend/internal/operation"
	pickinghandler "github.com/stockflow/stockflow-backend/internal/picking/handler"
	pickingrepo "github.com/stockflow/stockflow-backend/internal/picking/repository"
	pickingservice "github.com/stockflow/stockflow-backend/internal/picking/service"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("warehouse-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("warehouse-service", cfg.Server.Environment)
	log.Info().Msg("starting Warehouse Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Connect to redis (notification dedup)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Event plumbing: in-process bus, broker mirror and idempotency store
	bus := events.NewBus(log)

	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeWarehouseEvents, "warehouse-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	// Mirror every committed domain event to the broker for external
	// consumers.
	bus.SubscribeAll(func(ctx context.Context, ev events.Event) error {
		return publisher.Publish(ctx, ev.Name, ev)
	})

	store := idempotency.NewStore(db, cfg.Idempotency.Retention)
	runner := operation.NewRunner(store, db, bus, log)

	// Repositories
	recordRepo := inventoryrepo.NewRecordRepository(db)
	ruleRepo := inventoryrepo.NewRuleRepository(db)
	movementRepo := inventoryrepo.NewMovementRepository(db)
	pickRepo := pickingrepo.NewPickRepository(db)
	fulfillmentRepo := fulfillmentrepo.NewFulfillmentRepository(db)
	carrierRepo := fulfillmentrepo.NewCarrierRepository(db)
	shipmentRepo := dispatchrepo.NewShipmentRepository(db)
	loadPlanRepo := dispatchrepo.NewLoadPlanRepository(db)
	notificationRepo := notificationrepo.NewNotificationRepository(db)
	directory := notificationrepo.NewDirectory(db)

	// Services
	ledger := inventoryservice.NewLedger(recordRepo, ruleRepo, movementRepo, log)
	inventorySvc := inventoryservice.NewInventoryService(runner, ledger, recordRepo, movementRepo, log)
	orchestrator := pickingservice.NewOrchestrator(runner, pickRepo, recordRepo, ledger, fulfillmentRepo, log)
	automation := fulfillmentservice.NewAutomationEngine(runner, fulfillmentRepo, carrierRepo, recordRepo, log)
	dispatcher := dispatchservice.NewDispatcher(runner, loadPlanRepo, shipmentRepo, log)

	// Notification routing off the bus
	deduper := notificationservice.NewRedisDeduper(redisClient, cfg.Redis.DedupTTL)
	resolver := notificationservice.NewResolver(directory)
	router := notificationservice.NewRouter(notificationRepo, resolver, deduper, log)
	router.Subscribe(bus)

	// Platform sync off the broker
	syncer := integration.NewSyncer(recordRepo, cfg.Integration, log)
	for name, platform := range cfg.Integration.Platforms {
		syncer.Register(integration.NewHTTPAdapter(
			name, platform.BaseURL, platform.APIKey, cfg.Integration.RequestTimeout, log))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncConsumer, err := messaging.NewConsumer(rmq, messaging.QueueSyncRequests, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sync consumer")
	}
	if err := syncConsumer.Subscribe(messaging.ExchangeWarehouseEvents, messaging.MessagePlatformSyncRequested); err != nil {
		log.Fatal().Err(err).Msg("failed to bind sync queue")
	}
	syncConsumer.RegisterHandler(messaging.MessagePlatformSyncRequested, syncer.HandleSyncRequested)
	if err := syncConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sync consumer")
	}

	// Sweeper: redelivers committed-but-unpublished events and purges
	// expired idempotency records.
	sweeper := idempotency.NewSweeper(store, bus, cfg.Idempotency.SweepInterval, cfg.Idempotency.RedeliverAfter, log)
	go sweeper.Run(ctx)

	// Handlers
	inventoryHandler := inventoryhandler.NewInventoryHandler(inventorySvc, log)
	pickHandler := pickinghandler.NewPickHandler(orchestrator, log)
	fulfillmentHandler := fulfillmenthandler.NewFulfillmentHandler(automation, log)
	dispatchHandler := dispatchhandler.NewDispatchHandler(dispatcher, log)
	notificationHandler := notificationhandler.NewNotificationHandler(notificationRepo, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Actor)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS - allows the warehouse dashboard frontends
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			// Allow localhost variations (development)
			if origin == "http://localhost:3000" || origin == "http://localhost:5173" {
				return true
			}
			// Allow *.stockflow.io for production
			if len(origin) > 13 && origin[len(origin)-13:] == ".stockflow.io" {
				return true
			}
			return origin == "https://stockflow.io"
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		redisStatus := "healthy"
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			redisStatus = "unhealthy: " + err.Error()
		}
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "warehouse-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
			"redis":    redisStatus,
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/inventory", func(r chi.Router) {
			r.Post("/adjust", inventoryHandler.Adjust)
			r.Post("/transfer", inventoryHandler.Transfer)
			r.Get("/products/{productID}", inventoryHandler.ListRecords)
			r.Get("/products/{productID}/locations/{locationID}", inventoryHandler.GetRecord)
			r.Get("/products/{productID}/movements", inventoryHandler.ListMovements)
			r.Post("/movements/{id}/review", inventoryHandler.ReviewMovement)
		})

		r.Route("/picks", func(r chi.Router) {
			r.Get("/", pickHandler.List)
			r.Post("/", pickHandler.Create)
			r.Get("/{id}", pickHandler.Get)
			r.Post("/{id}/assign", pickHandler.Assign)
			r.Post("/{id}/start", pickHandler.Start)
			r.Post("/{id}/items/{itemID}/picked", pickHandler.MarkItemPicked)
			r.Post("/{id}/complete", pickHandler.Complete)
			r.Post("/{id}/optimize", pickHandler.Optimize)
		})

		r.Route("/fulfillments", func(r chi.Router) {
			r.Get("/", fulfillmentHandler.List)
			r.Post("/", fulfillmentHandler.Process)
			r.Get("/{id}", fulfillmentHandler.Get)
			r.Post("/{id}/complete", fulfillmentHandler.Complete)
			r.Post("/{id}/cancel", fulfillmentHandler.Cancel)
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Post("/", dispatchHandler.CreateShipment)
			r.Get("/{id}", dispatchHandler.GetShipment)
		})

		r.Route("/load-plans", func(r chi.Router) {
			r.Post("/", dispatchHandler.CreatePlan)
			r.Get("/{id}", dispatchHandler.GetPlan)
			r.Post("/{id}/optimize", dispatchHandler.Optimize)
			r.Post("/{id}/load", dispatchHandler.Load)
			r.Post("/{id}/dispatch", dispatchHandler.Dispatch)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Put("/{id}/acknowledge", notificationHandler.Acknowledge)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop the consumer and sweeper
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
