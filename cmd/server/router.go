package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/inkwell-api/internal/api"
	apiMiddleware "github.com/phrazzld/inkwell-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	taskHandler := api.NewTaskHandler(app.dispatcher, app.taskStore, app.noteService)
	streamHandler := api.NewStreamHandler(app.taskStore, app.generator, app.logger)
	wsHandler := api.NewWSHandler(app.taskStore, app.bus, app.logger)
	healthHandler := api.NewHealthHandler(app.generator, app.config.LLM.Provider)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Task lifecycle endpoints
			r.Post("/tasks/{type}", taskHandler.CreateTask)
			r.Get("/tasks", taskHandler.ListTasks)
			r.Get("/tasks/{task_id}", taskHandler.GetTask)
			r.Delete("/tasks/{task_id}", taskHandler.CancelTask)

			// Inline blog generation over SSE
			r.Post("/blog/generate/stream", streamHandler.GenerateBlog)

			// Generation backend health
			r.Get("/ai/health", healthHandler.AIHealth)
		})
	})

	// WebSocket endpoint. Browsers cannot set an Authorization header
	// on the upgrade request, so the auth middleware also accepts the
	// token as a query parameter here.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Get("/ws/stream/{task_id}", wsHandler.StreamTask)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
