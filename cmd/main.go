package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/ladder-system/config"
	"github.com/Dosada05/ladder-system/db"
	"github.com/Dosada05/ladder-system/handlers"
	"github.com/Dosada05/ladder-system/live"
	"github.com/Dosada05/ladder-system/repositories"
	api "github.com/Dosada05/ladder-system/routes"
	"github.com/Dosada05/ladder-system/services"
	"github.com/Dosada05/ladder-system/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Инициализация загрузчика файлов (Cloudflare R2), если настроен
	var uploader storage.FileUploader
	if cfg.R2AccountID != "" {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 storage is not configured, avatar uploads disabled")
	}

	// Инициализация WebSocket Hub
	wsHub := live.NewHub(logger)
	logger.Info("WebSocket hub started")

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	sessionRepo := repositories.NewPostgresSessionRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	ratingRepo := repositories.NewPostgresPlayerRatingRepository(dbConn)
	doublesRepo := repositories.NewPostgresPlayerDoublesRatingRepository(dbConn)
	snapshotRepo := repositories.NewPostgresSnapshotRepository(dbConn)
	historyRepo := repositories.NewPostgresEloHistoryRepository(dbConn)
	logger.Info("repositories initialized")

	// Инициализация сервисов
	txRunner := services.NewSQLTxRunner(dbConn)
	authService := services.NewAuthService(userRepo)
	userService := services.NewUserService(userRepo, uploader)
	sessionService := services.NewSessionService(txRunner, sessionRepo, matchRepo)
	matchService := services.NewMatchService(matchRepo, historyRepo)
	ratingService := services.NewRatingService(ratingRepo, doublesRepo, teamRepo)
	baselineLoader := services.NewBaselineLoader(snapshotRepo, ratingRepo, doublesRepo)
	recalcService := services.NewRecalcService(
		txRunner,
		sessionRepo,
		matchRepo,
		teamRepo,
		ratingRepo,
		doublesRepo,
		snapshotRepo,
		historyRepo,
		baselineLoader,
		wsHub,
		logger,
	)
	logger.Info("services initialized")

	// Инициализация обработчиков HTTP
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	userHandler := handlers.NewUserHandler(userService)
	sessionHandler := handlers.NewSessionHandler(sessionService, matchService)
	matchHandler := handlers.NewMatchHandler(matchService, recalcService)
	ratingHandler := handlers.NewRatingHandler(ratingService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, sessionService)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		cfg.JWTSecretKey,
		authHandler,
		userHandler,
		sessionHandler,
		matchHandler,
		ratingHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
