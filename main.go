package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"routineLoopAPI/handlers"
	"routineLoopAPI/internal/analytics"
	"routineLoopAPI/internal/backend"
	"routineLoopAPI/internal/bridge"
	"routineLoopAPI/internal/storage"
	"routineLoopAPI/middleware"
	"routineLoopAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool             *pgxpool.Pool
	appStateService    *services.AppStateService
	entitlementService *services.EntitlementService
	entitlementBackend backend.Backend
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store storage.Driver

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL != "" {
		poolConfig, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			log.Fatal("Failed to parse database URL:", err)
		}

		poolConfig.MaxConns = 25
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute
		poolConfig.HealthCheckPeriod = time.Minute

		dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			log.Fatal("Failed to create connection pool:", err)
		}

		if err := dbPool.Ping(ctx); err != nil {
			log.Fatal("Failed to ping database:", err)
		}
		log.Println("Successfully connected to Postgres")

		pgDriver := storage.NewPostgresDriver(dbPool, "default")
		if err := pgDriver.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to create app state schema:", err)
		}
		store = pgDriver

		pgBackend := backend.NewPostgresBackend(dbPool)
		if err := pgBackend.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to create entitlement schema:", err)
		}
		entitlementBackend = pgBackend
	} else {
		statePath := os.Getenv("STATE_FILE")
		if statePath == "" {
			statePath = "./data/appstate.json"
		}
		log.Printf("DATABASE_URL not set, using file state at %s and in-memory backend", statePath)

		store = storage.NewFileDriver(statePath)
		entitlementBackend = backend.NewStubBackend()
	}

	analytics.InitPrometheus()
	middleware.InitPrometheus()

	tracker := analytics.NewTracker()

	appStateService = services.NewAppStateService(store, tracker)
	if err := appStateService.Hydrate(ctx); err != nil {
		log.Fatal("Failed to load app state:", err)
	}

	purchaseBridge, ok := bridge.Detect()
	if ok {
		log.Println("Purchase bridge detected")
	} else {
		log.Println("No purchase bridge configured, running backend-only purchases")
	}

	entitlementService = services.NewEntitlementService(appStateService, entitlementBackend, purchaseBridge, tracker)
}

func main() {
	defer func() {
		if dbPool != nil {
			log.Println("Closing database connection pool...")
			dbPool.Close()
		}
	}()

	routineHandler := handlers.NewRoutineHandler(appStateService)
	reportHandler := handlers.NewReportHandler(appStateService)
	entitlementHandler := handlers.NewEntitlementHandler(appStateService, entitlementService)
	webhookHandler := handlers.NewWebhookHandler(entitlementBackend, entitlementService)

	// Reconcile entitlements once in the background so a pending purchase or a
	// refund issued while the service was down takes effect on boot.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		entitlementService.RestoreOnStartup(ctx)
	}()

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if dbPool != nil {
			if err := dbPool.Ping(ctx); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "routineLoop-api"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/purchase", webhookHandler.HandlePurchaseWebhook).Methods("POST")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.UserKeyMiddleware)

	api.HandleFunc("/state", routineHandler.GetAppState).Methods("GET")
	api.HandleFunc("/onboarding/complete", routineHandler.CompleteOnboarding).Methods("POST")
	api.HandleFunc("/reset", routineHandler.ResetAllData).Methods("POST")

	api.HandleFunc("/routines", routineHandler.CreateRoutine).Methods("POST")
	api.HandleFunc("/routines/today", routineHandler.GetTodayRoutines).Methods("GET")
	api.HandleFunc("/routines/{routineId}", routineHandler.UpdateRoutine).Methods("PUT")
	api.HandleFunc("/routines/{routineId}", routineHandler.DeleteRoutine).Methods("DELETE")
	api.HandleFunc("/routines/{routineId}/restart", routineHandler.RestartRoutine).Methods("POST")
	api.HandleFunc("/routines/{routineId}/checkin", routineHandler.CheckinRoutine).Methods("POST")
	api.HandleFunc("/routines/{routineId}/note", routineHandler.AddNote).Methods("POST")
	api.HandleFunc("/routines/{routineId}/shield", routineHandler.ApplyStreakShield).Methods("POST")
	api.HandleFunc("/routines/{routineId}/checkins", reportHandler.GetRecentCheckins).Methods("GET")
	api.HandleFunc("/shields/remaining", routineHandler.GetStreakShieldsRemaining).Methods("GET")

	api.HandleFunc("/reports/weekly", reportHandler.GetWeeklyReport).Methods("GET")
	api.HandleFunc("/reports/heatmap", reportHandler.GetHeatmap).Methods("GET")
	api.HandleFunc("/reports/trend", reportHandler.GetWeeklyTrend).Methods("GET")
	api.HandleFunc("/notes/recent", reportHandler.GetRecentNotes).Methods("GET")

	api.HandleFunc("/premium/products", entitlementHandler.GetProducts).Methods("GET")
	api.HandleFunc("/premium/status", entitlementHandler.GetPremiumStatus).Methods("GET")
	api.HandleFunc("/premium/trial", entitlementHandler.StartTrial).Methods("POST")
	api.HandleFunc("/premium/purchase", entitlementHandler.Purchase).Methods("POST")
	api.HandleFunc("/premium/restore", entitlementHandler.RestorePurchases).Methods("POST")
	api.HandleFunc("/premium/banners", entitlementHandler.GetBanners).Methods("GET")
	api.HandleFunc("/premium/banners/trial/dismiss", entitlementHandler.DismissTrialExpiredBanner).Methods("POST")
	api.HandleFunc("/premium/banners/refund/dismiss", entitlementHandler.DismissRefundRevokedBanner).Methods("POST")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "X-User-Key", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
