package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/chat"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/config"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/db"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/handler"
	authmw "github.com/jharjadi/pro-rag/chat-api-go/internal/middleware"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/model"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Stops background workers and triggers graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database is only needed for login and the postgres search backend
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		postgresSearch := cfg.SearchBackend == config.BackendPostgres
		req := db.RequirementsFor(cfg.AuthEnabled, postgresSearch, cfg.EmbedEndpoint != "")
		if err := db.StartupChecks(ctx, pool, req); err != nil {
			slog.Error("startup checks failed", "error", err)
			os.Exit(1)
		}

		if postgresSearch {
			// Non-fatal: broken services are reported at retrieval time
			if _, err := db.CheckSearchCatalog(ctx, pool); err != nil {
				slog.Error("search catalog check failed", "error", err)
			}
		}
	}

	// Collaborators
	backend, err := newBackend(cfg, pool)
	if err != nil {
		slog.Error("failed to configure collaborators", "error", err)
		os.Exit(1)
	}

	// Initialize services
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiryHours)
	discoverySvc := service.NewDiscoveryService(backend.catalog)
	retrievalSvc := service.NewRetrievalService(
		backend.searcher,
		cfg.SearchColumns,
		service.DefaultFilter(cfg.SearchFilterLanguage),
	)
	completionSvc := service.NewCompletionService(backend.completer, cfg.LLMProvider, cfg.Models)

	conversation := chat.NewConversation(discoverySvc, retrievalSvc, completionSvc, cfg.QueryExpansion)
	manager := chat.NewManager(model.Settings{
		Model:               cfg.DefaultModel,
		RetrievedChunkCount: cfg.DefaultRetrievedChunks,
		HistoryWindowSize:   cfg.DefaultHistoryWindow,
	}, cfg.SessionIdleTTL())
	limiter := authmw.NewUserLimiter(cfg.QuestionsPerMinute)

	go manager.Run(ctx)
	go forgetIdleLimiters(ctx, limiter, cfg.SessionIdleTTL())

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(manager, conversation, discoverySvc, cfg.Models)
	wsHandler := handler.NewWSHandler(sessionHandler, limiter)

	// Build router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"unhealthy","error":%q}`, err.Error())
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, manager.Len())
	})

	r.Handle("/metrics", promhttp.Handler())

	// Auth endpoints (no auth required, these issue tokens)
	if pool != nil {
		authHandler := handler.NewAuthHandler(pool, authSvc)
		r.Post("/v1/auth/login", authHandler.Login)
	}

	// Protected endpoints (JWT when AUTH_ENABLED=true, X-User-ID header when false)
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(authSvc, cfg.AuthEnabled))

		r.Get("/v1/models", sessionHandler.Models)
		r.Get("/v1/search-services", sessionHandler.SearchServices)

		r.Route("/v1/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/{id}", sessionHandler.Get)
			r.Delete("/{id}", sessionHandler.Delete)
			r.Patch("/{id}/settings", sessionHandler.UpdateSettings)
			r.With(authmw.RateLimit(limiter)).Post("/{id}/messages", sessionHandler.Ask)
			r.With(authmw.RateLimit(limiter)).Post("/{id}/summary", sessionHandler.Summary)
			r.Post("/{id}/clear", sessionHandler.Clear)
			r.Post("/{id}/discover", sessionHandler.Discover)
			r.Get("/{id}/ws", wsHandler.ServeHTTP)
		})

		// Admin-only endpoints (require admin role)
		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole("admin"))
			r.Post("/v1/admin/sweep", sessionHandler.Sweep)
		})
	})

	// Serve web UI (static files from /web directory if it exists)
	webDir := os.Getenv("WEB_DIR")
	if webDir == "" {
		webDir = "/web"
	}
	if info, err := os.Stat(webDir); err == nil && info.IsDir() {
		slog.Info("serving web UI", "dir", webDir)
		fs := http.FileServer(http.Dir(webDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" {
				http.ServeFile(w, r, webDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
	} else {
		slog.Info("web UI not available", "dir", webDir, "reason", "directory not found")
	}

	slog.Info("chat configuration",
		"search_backend", cfg.SearchBackend,
		"llm_provider", cfg.LLMProvider,
		"models", cfg.Models,
		"default_model", cfg.DefaultModel,
		"query_expansion", cfg.QueryExpansion,
		"session_idle_ttl", cfg.SessionIdleTTL().String(),
		"questions_per_minute", cfg.QuestionsPerMinute,
		"auth_enabled", cfg.AuthEnabled,
		"jwt_expiry_hours", cfg.JWTExpiryHours,
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(cancelCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// forgetIdleLimiters drops rate limiter buckets of users who have been quiet
// for longer than idle.
func forgetIdleLimiters(ctx context.Context, limiter *authmw.UserLimiter, idle time.Duration) {
	if limiter == nil {
		return
	}
	if idle <= 0 {
		idle = time.Hour
	}
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Forget(idle); n > 0 {
				slog.Debug("rate limiter buckets released", "count", n)
			}
		}
	}
}
