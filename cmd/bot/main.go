package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/inklet-ai/inklet/internal/auth"
	"github.com/inklet-ai/inklet/internal/config"
	"github.com/inklet-ai/inklet/internal/database"
	"github.com/inklet-ai/inklet/internal/events"
	"github.com/inklet-ai/inklet/internal/handlers"
	"github.com/inklet-ai/inklet/internal/llm"
	"github.com/inklet-ai/inklet/internal/pipeline"
	"github.com/inklet-ai/inklet/internal/storage"
	"github.com/inklet-ai/inklet/internal/telegram"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Starting inklet bot")

	cfg := config.Load()

	if cfg.TelegramBotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, deliveries will fail")
	}

	llmClient := llm.NewClient(cfg.GeminiAPIKey, cfg.GeminiModelFlash, cfg.GeminiAPIEndpoint)

	enhancer := pipeline.NewPromptEnhancer(llmClient, cfg.TextTimeout)
	synthesizer := pipeline.NewImageSynthesizer(cfg.ImageEndpoint, nil, cfg.ImageTimeout)
	fallback := pipeline.NewAsciiArtFallback(llmClient, cfg.TextTimeout)
	dispatcher := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramBotToken, nil)

	var sink pipeline.EventSink
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicEvents)
		defer producer.Close()
		sink = producer
	}

	var archiver pipeline.Archiver
	if cfg.S3Endpoint != "" {
		storageClient, err := storage.NewClient(
			cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket,
			cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL, cfg.S3PublicURL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize storage client")
		}
		archiver = storageClient
	}

	var journal handlers.Journal
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		outcomeRepo := database.NewOutcomeRepository(db)
		if err := outcomeRepo.EnsureSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure journal schema")
		}
		journal = outcomeRepo
	}

	orchestrator := pipeline.NewOrchestrator(enhancer, synthesizer, fallback, dispatcher, sink, archiver)

	h := handlers.NewHandler(orchestrator, journal, cfg.TelegramWebhookSecret, handlers.Defaults{
		Style:  cfg.DefaultStyle,
		Width:  cfg.DefaultWidth,
		Height: cfg.DefaultHeight,
	})
	authService := auth.NewService(cfg.APIKeyHash)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.HandleFunc("/webhook/telegram", h.TelegramWebhook).Methods("POST")

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(authService.Middleware)
	api.HandleFunc("/render", h.RenderImage).Methods("POST")

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Bot listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down bot...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// Drain in-flight webhook runs so replies already accepted still go out.
	h.Wait()
	log.Info().Msg("Bot exited")
}
