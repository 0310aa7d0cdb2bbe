package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"picturebook-server/internal/baidu"
	"picturebook-server/internal/config"
	delivery "picturebook-server/internal/delivery/http"
	"picturebook-server/internal/delivery/http/middleware"
	"picturebook-server/internal/generator"
	"picturebook-server/internal/repository"
	"picturebook-server/internal/service"
)

func main() {
	// Загрузка переменных окружения. Тот же .env читает и внешний
	// генератор, поэтому в production файл обычно присутствует.
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	// Инициализация логгера
	initLogger()

	// Парсинг флагов командной строки
	env := flag.String("env", "development", "Environment: development, production")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*env)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Инициализация хранилища артефактов
	repo, err := repository.NewArtifactRepository(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize artifact repository")
	}

	// Инициализация генератора историй
	gen := generator.New(repo, generator.NewScriptLauncher(cfg.Generator), cfg.Generator)

	// Инициализация клиента синтеза речи
	speechClient := baidu.NewClient(baidu.Config{
		APIKey:    cfg.Speech.APIKey,
		SecretKey: cfg.Speech.SecretKey,
		TokenTTL:  cfg.Speech.TokenTTL,
	})
	if cfg.Speech.APIKey == "" || cfg.Speech.SecretKey == "" {
		log.Warn().Msg("Baidu API keys are not configured, audio synthesis will be unavailable")
	}

	// Инициализация сервисов
	storyService := service.NewStoryService(repo, gen)
	speechService := service.NewSpeechService(speechClient, repo, cfg.Speech)

	// Инициализация HTTP обработчиков
	handlers := delivery.New(storyService, speechService, repo)

	// Настройка маршрутов
	router := mux.NewRouter()
	router.Use(middleware.Logging)
	handlers.RegisterRoutes(router)

	// Настройка CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	// Создание HTTP сервера. Таймаут записи большой: запрос генерации
	// держит соединение, пока внешний процесс не создаст файл.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      c.Handler(router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: cfg.Generator.MaxWait + time.Duration(cfg.Server.WriteTimeoutSeconds)*time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	// Запуск сервера в горутине
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Настройка плавного завершения
	gracefulShutdown(server)
}

// initLogger настраивает глобальный логгер
func initLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Caller().Logger()

	// В режиме разработки используем более читаемый вывод
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
	}

	// Настройка уровня логирования
	logLevel := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logLevel = lvl
	}
	zerolog.SetGlobalLevel(logLevel)
}

// gracefulShutdown останавливает сервер по сигналу завершения
func gracefulShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}
