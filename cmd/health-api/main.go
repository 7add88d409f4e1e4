package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"healthtrack/backend/internal/api"
	"healthtrack/backend/internal/api/handlers"
	"healthtrack/backend/internal/auth"
	"healthtrack/backend/internal/config"
	"healthtrack/backend/internal/crypto"
	"healthtrack/backend/internal/db"
	"healthtrack/backend/internal/device"
	"healthtrack/backend/internal/health"
	"healthtrack/backend/internal/logger"
	"healthtrack/backend/internal/repository"
	"healthtrack/backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logger)

	logger.Info().
		Str("environment", cfg.Logger.Environment).
		Str("log_level", cfg.Logger.Level).
		Msg("configuration loaded successfully")

	logger.Info().Msg("running database migrations")
	if err := db.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx := context.Background()
	database, err := db.NewDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("database connected successfully")

	encryptor, err := crypto.NewTokenEncryptor(cfg.External.TokenEncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token encryption key")
	}

	// Repositories
	recordRepo := repository.NewHealthRecordRepository(database.Pool)
	deviceRepo := repository.NewDeviceRepository(database.Pool)
	syncLogRepo := repository.NewSyncLogRepository(database.Pool)
	budgetRepo := repository.NewBudgetRepository(database.Pool)
	commentRepo := repository.NewCommentRepository(database.Pool)
	userRepo := repository.NewUserRepository(database.Pool)

	// Device adapters and sync orchestration
	factory := device.NewFactory(cfg.Providers, device.Stores{
		Records:     recordRepo,
		Connections: deviceRepo,
		SyncLog:     syncLogRepo,
	})
	syncService := service.NewDeviceSyncService(factory, deviceRepo, syncLogRepo, encryptor, cfg.Providers.DefaultSyncDays)

	authService := service.NewAuthService(userRepo)
	if cfg.External.AdminUsername != "" && cfg.External.AdminPassword != "" {
		if err := authService.EnsureUser(ctx, cfg.External.AdminUsername, cfg.External.AdminPassword); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed initial user")
		}
	}

	assistantService := service.NewAssistantService(cfg.External.OpenAIAPIKey, recordRepo, budgetRepo, commentRepo)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	recordHandler := handlers.NewRecordHandler(recordRepo)
	deviceHandler := handlers.NewDeviceHandler(syncService)
	budgetHandler := handlers.NewBudgetHandler(budgetRepo)
	commentHandler := handlers.NewCommentHandler(commentRepo)
	assistantHandler := handlers.NewAssistantHandler(assistantService)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(api.RequestIDMiddleware())
	router.Use(api.LoggingMiddleware())
	router.Use(api.CORSMiddleware(cfg.CORS))
	router.Use(api.RecoveryMiddleware())

	healthHandler := health.NewHandler(database, cfg.Database.HealthTimeout)
	router.GET("/health", healthHandler.Check)

	// Login and OAuth callbacks stay outside the session wall: callbacks are
	// invoked by provider redirects that carry no session.
	router.POST("/api/auth/login", authHandler.Login)
	router.GET("/api/auth/check", authHandler.Check)
	router.GET("/api/providers/:type/callback", deviceHandler.Callback)

	apiRoutes := router.Group("/api")
	apiRoutes.Use(auth.SessionMiddleware(authService))
	{
		apiRoutes.POST("/auth/logout", authHandler.Logout)

		records := apiRoutes.Group("/health-records")
		{
			records.GET("", recordHandler.List)
			records.GET("/:date", recordHandler.Get)
			records.PUT("/:date", recordHandler.Put)
			records.PATCH("/:date", recordHandler.Patch)
			records.DELETE("/:date", recordHandler.Delete)
		}

		apiRoutes.GET("/providers/:type/connect", deviceHandler.Connect)

		devices := apiRoutes.Group("/devices")
		{
			devices.GET("", deviceHandler.ListDevices)
			devices.POST("/:id/sync", deviceHandler.TriggerSync)
			devices.PUT("/:id/sync-enabled", deviceHandler.SetSyncEnabled)
			devices.GET("/:id/sync-logs", deviceHandler.SyncLogs)
			devices.DELETE("/:id", deviceHandler.Disconnect)
		}

		budgets := apiRoutes.Group("/budgets")
		{
			budgets.GET("/:month", budgetHandler.ListBudgets)
			budgets.PUT("/:month", budgetHandler.SetBudget)
			budgets.GET("/:month/summary", budgetHandler.Summary)
		}

		expenses := apiRoutes.Group("/expenses")
		{
			expenses.POST("", budgetHandler.CreateExpense)
			expenses.GET("", budgetHandler.ListExpenses)
			expenses.DELETE("/:id", budgetHandler.DeleteExpense)
		}

		comments := apiRoutes.Group("/comments")
		{
			comments.POST("", commentHandler.Create)
			comments.GET("", commentHandler.List)
			comments.DELETE("/:id", commentHandler.Delete)
		}

		apiRoutes.POST("/ai/query", assistantHandler.Query)
		apiRoutes.POST("/reports/generate", assistantHandler.GenerateReport)
	}

	addr := cfg.GetBindAddress()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("failed to bind listener")
	}

	srv := &http.Server{
		Addr:    ln.Addr().String(),
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}
