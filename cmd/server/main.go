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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kiwigeek/internal/catalog"
	"kiwigeek/internal/config"
	"kiwigeek/internal/handler"
	"kiwigeek/internal/logger"
	"kiwigeek/internal/metrics"
	"kiwigeek/internal/repository"
	"kiwigeek/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	sessionIdleTTL    = 2 * time.Hour
	sessionPruneEvery = 10 * time.Minute
	shutdownTimeout   = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	log.Info("Kiwigeek quote assistant",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Turn log is optional: the assistant keeps serving without it
	var repo *repository.PostgresRepository
	if cfg.PostgreSQL.Enabled {
		repo = connectDatabase(cfg, log)
		if repo != nil {
			defer repo.Close()
		}
	} else {
		log.Warn("PostgreSQL disabled, turn log and feedback will not be persisted")
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatal("Failed to load catalog", zap.String("path", cfg.Catalog.Path), zap.Error(err))
	}
	log.Info("Catalog loaded", zap.String("path", cat.Path), zap.Int("bytes", cat.Size()))

	generator, closeGenerator, err := newGenerator(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize generator", zap.String("provider", cfg.Generator.Provider), zap.Error(err))
	}
	defer closeGenerator()
	if !generator.IsEnabled() {
		log.Warn("Generator is not configured, every turn will ask the customer to resend",
			zap.String("provider", generator.Name()))
	}

	instruction := service.BuildSystemInstruction(cat.Content, cfg.Quote, cfg.Catalog.Currency)
	sessions := service.NewSessionStore(func() service.Conversation {
		return generator.NewConversation(instruction)
	})

	validator := service.NewValidator(cfg.Quote, service.WithCurrency(cfg.Catalog.Currency))
	decoder := service.NewQuoteDecoder(log)
	loop := service.NewCorrectionLoop(decoder, validator, cfg.Quote.MaxAttempts, log)
	m := metrics.New(sessions.Len)

	deps := service.AssistantDeps{
		Sessions:  sessions,
		Extractor: service.NewBudgetExtractor(cfg.Quote),
		Decoder:   decoder,
		Validator: validator,
		Loop:      loop,
		Selector:  service.NewSelector(cfg.Quote),
		Metrics:   m,
		Provider:  generator.Name(),
		Logger:    log,
	}
	var ping func(ctx context.Context) error
	if repo != nil {
		deps.Store = repo
		ping = repo.Ping
	}
	assistant := service.NewAssistantService(deps)

	log.Info("Services initialized",
		zap.String("provider", generator.Name()),
		zap.Int("max_attempts", cfg.Quote.MaxAttempts),
		zap.Bool("gpu_bands", cfg.Quote.GPUBandsEnabled),
		zap.Bool("case_share", cfg.Quote.CaseShareEnabled),
	)

	router := handler.NewRouter(handler.RouterDeps{
		Assistant: assistant,
		Server:    cfg.Server,
		Build: handler.BuildInfo{
			Version:   Version,
			BuildTime: BuildTime,
			GitCommit: GitCommit,
		},
		Provider:     generator.Name(),
		Metrics:      m.Handler(),
		DatabasePing: ping,
		Logger:       log,
	})

	go pruneSessions(ctx, sessions, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func connectDatabase(cfg *config.Config, log *zap.Logger) *repository.PostgresRepository {
	dsn := cfg.GetPostgreSQLDSN()

	if cfg.PostgreSQL.RunMigrations {
		version, err := repository.RunMigrations(dsn)
		if err != nil {
			log.Error("Failed to run migrations, continuing without turn log", zap.Error(err))
			return nil
		}
		log.Info("Migrations applied", zap.Uint("version", version))
	}

	repo, err := repository.NewPostgresRepository(
		dsn,
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		log.Error("Failed to connect to database, continuing without turn log", zap.Error(err))
		return nil
	}

	log.Info("Connected to PostgreSQL database")
	return repo
}

func newGenerator(ctx context.Context, cfg *config.Config, log *zap.Logger) (service.QuoteGenerator, func(), error) {
	switch cfg.Generator.Provider {
	case "openai", "":
		client := service.NewOpenAIClient(&cfg.Generator, log)
		log.Info("OpenAI-compatible generator configured",
			zap.String("api_base", cfg.Generator.APIBase),
			zap.String("model", cfg.Generator.ChatModel),
			zap.Float64("temperature", cfg.Generator.ChatTemperature),
			zap.Int("max_tokens", cfg.Generator.ChatMaxTokens),
			zap.Bool("json_mode", cfg.Generator.JSONMode),
		)
		return service.NewOpenAIGenerator(client), func() {}, nil
	case "gigachat":
		gen, err := service.NewGigaChatGenerator(ctx, &cfg.GigaChat, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("GigaChat generator configured",
			zap.String("model", cfg.GigaChat.Model),
			zap.Float64("temperature", cfg.GigaChat.Temperature),
			zap.Float64("top_p", cfg.GigaChat.TopP),
			zap.Int("max_tokens", cfg.GigaChat.MaxTokens),
		)
		return gen, gen.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown generator provider %q", cfg.Generator.Provider)
	}
}

func pruneSessions(ctx context.Context, sessions *service.SessionStore, log *zap.Logger) {
	ticker := time.NewTicker(sessionPruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(sessionIdleTTL); n > 0 {
				log.Info("Pruned idle sessions", zap.Int("count", n), zap.Int("active", sessions.Len()))
			}
		}
	}
}
