package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/inkwell-api/internal/config"
	"github.com/phrazzld/inkwell-api/internal/generation"
	"github.com/phrazzld/inkwell-api/internal/platform/gemini"
	"github.com/phrazzld/inkwell-api/internal/platform/ollama"
	"github.com/phrazzld/inkwell-api/internal/platform/postgres"
	"github.com/phrazzld/inkwell-api/internal/pubsub"
	"github.com/phrazzld/inkwell-api/internal/queue"
	"github.com/phrazzld/inkwell-api/internal/service"
	"github.com/phrazzld/inkwell-api/internal/service/auth"
	"github.com/phrazzld/inkwell-api/internal/task"
)

// application holds every long-lived component of the server. It is
// assembled once at startup and torn down by cleanup.
type application struct {
	config *config.Config
	logger *slog.Logger

	db          *sql.DB
	redisClient *redis.Client

	taskStore task.Store
	noteStore *postgres.NoteStore

	noteService *service.NoteService
	jwtService  auth.JWTService
	generator   generation.Generator
	bus         pubsub.Provider

	dispatcher *task.Dispatcher
	runner     *task.Runner
}

// newApplication wires all application components together and starts
// the background worker pool. The caller owns cleanup.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	taskQueue, err := queue.NewRedisQueue(redisClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task queue: %w", err)
	}

	bus, err := pubsub.NewRedisProvider(redisClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast bus: %w", err)
	}

	generator, err := newGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	taskStore := postgres.NewTaskStore(db)
	noteStore := postgres.NewNoteStore(db)
	noteService := service.NewNoteService(db, noteStore)

	handlers := task.NewHandlers(noteStore, generator, bus, logger)
	dispatcher := task.NewDispatcher(taskStore, taskQueue, logger)
	runner := task.NewRunner(taskStore, taskQueue, handlers, bus, cfg.Worker, logger)
	runner.Start(ctx)

	return &application{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		taskStore:   taskStore,
		noteStore:   noteStore,
		noteService: noteService,
		jwtService:  jwtService,
		generator:   generator,
		bus:         bus,
		dispatcher:  dispatcher,
		runner:      runner,
	}, nil
}

// newGenerator selects the generation adapter named by the LLM
// configuration. Streaming task types degrade to single-fragment
// delivery when the adapter does not stream.
func newGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Generator, error) {
	switch cfg.Provider {
	case "ollama":
		gen, err := ollama.NewGenerator(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama generator: %w", err)
		}
		return gen, nil
	case "gemini":
		gen, err := gemini.NewGenerator(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini generator: %w", err)
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// cleanup releases application resources in reverse dependency order.
// The worker pool drains first so in-flight tasks can still reach the
// stores and the bus.
func (app *application) cleanup() {
	app.runner.Stop()

	if err := app.redisClient.Close(); err != nil {
		app.logger.Error("Failed to close redis client", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("Failed to close database", "error", err)
	}
	app.logger.Info("Application shutdown complete")
}
