package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/wagate/internal/audit"
	"github.com/openclaw/wagate/internal/config"
	"github.com/openclaw/wagate/internal/database"
	"github.com/openclaw/wagate/internal/engine"
	"github.com/openclaw/wagate/internal/handler"
	"github.com/openclaw/wagate/internal/jobs"
	"github.com/openclaw/wagate/internal/middleware"
	"github.com/openclaw/wagate/internal/redis"
	"github.com/openclaw/wagate/internal/repository"
	"github.com/openclaw/wagate/internal/service"
	"github.com/openclaw/wagate/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := cfg.IsProduction()
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	} else {
		log.Info().Msg("REDIS_URL not set: lifecycle events stay in-process")
	}

	var (
		db        *database.DB
		auditRepo repository.AuditRepository
	)
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := database.Migrate(ctx, db); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		cancel()
		log.Info().Msg("database connected")

		auditRepo = repository.NewAuditRepository(db.DB)
		stopSink := audit.StartSink(auditRepo)
		defer stopSink()
	} else {
		log.Info().Msg("DATABASE_URL not set: audit events are logged only")
	}

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	store := repository.NewSessionStore()
	bridge := engine.NewBridge(cfg.EngineURL, cfg.EngineCallbackURL, cfg.EngineSignatureSecret, config.EngineRequestTimeout)

	issuer := service.NewCredentialIssuer(store, cfg.JWTSecret, cfg.TokenTTL())
	sessionService := service.NewSessionService(
		store, bridge, service.NewQRCodeRenderer(), issuer, broker, cfg.CodeWaitTimeout(),
	)
	messageService := service.NewMessageService(
		store, service.NewMediaResolver(cfg.MediaFetchTimeout(), cfg.MediaMaxBytes),
	)

	authMiddleware := middleware.NewAuthMiddleware(issuer)
	engineSignatureMiddleware := middleware.NewEngineSignatureMiddleware(cfg.EngineSignatureSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.MaxBodyBytes)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	sessionHandler := handler.NewSessionHandler(sessionService)
	messageHandler := handler.NewMessageHandler(messageService, cfg.UploadDir)
	eventsHandler := handler.NewEventsHandler(broker, sessionService)
	engineHandler := handler.NewEngineHandler(bridge)
	auditHandler := handler.NewAuditHandler(auditReader(auditRepo))

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)

		// SSE streams outlive the request timeout.
		r.Get("/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimitMiddleware.Handler)

			r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]any{
					"status":          "ok",
					"activeSessions":  sessionService.ActiveSessions(),
					"engineInstances": bridge.ActiveInstances(),
					"sseClients":      broker.TotalClients(),
					"timestamp":       time.Now().UnixMilli(),
				})
			})

			r.Get("/get_qr", sessionHandler.GetQR)
			r.Get("/check_status", sessionHandler.CheckStatus)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Handler)
				r.Post("/send_message", messageHandler.SendMessage)
				r.Delete("/sessions/{sessionId}", sessionHandler.Logout)
				r.Get("/sessions/{sessionId}/audit", auditHandler.List)
			})

			r.Route("/engine", func(r chi.Router) {
				r.Use(engineSignatureMiddleware.Handler)
				r.Post("/events", engineHandler.Events)
			})
		})
	})

	if cfg.StaticDir != "" {
		r.NotFound(handler.NewClientHandler(cfg.StaticDir).ServeHTTP)
		log.Info().Str("dir", cfg.StaticDir).Msg("serving browser client")
	}

	var txRunner jobs.TxRunner
	if db != nil {
		txRunner = db
	}
	cleanupJob := jobs.NewCleanupJob(sessionService, txRunner, auditRepo, jobs.CleanupOptions{
		PendingSessionTTL: cfg.PendingSessionTTL(),
		AuditRetention:    cfg.AuditRetention(),
		UploadDir:         cfg.UploadDir,
		StaleUploadAge:    config.StaleUploadAge,
	}, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("engine", cfg.EngineURL).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Close open SSE streams first so Shutdown does not wait on them.
	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	sessionService.Shutdown(shutdownCtx)

	log.Info().Msg("server stopped")
}

// auditReader keeps a missing repository a nil interface.
func auditReader(repo repository.AuditRepository) handler.AuditReader {
	if repo == nil {
		return nil
	}
	return repo
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
