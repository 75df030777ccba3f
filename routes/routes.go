package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/llm-chat-relay/app"
	"github.com/upb/llm-chat-relay/handlers"
	"github.com/upb/llm-chat-relay/middleware"
	"github.com/upb/llm-chat-relay/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Deadline(requestTimeout(deps)))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{deps.Config.Server.FrontendURL},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	health := handlers.NewHealthHandler(deps.Registry, deps.Logger)
	chat := handlers.NewChatHandler(deps.ChatService, deps.Logger, handlers.WithRedactor(deps.Redactor))

	r.Get("/health", health.HandleHealth)
	r.Get("/models", health.HandleModels)
	r.Post("/chat", chat.HandleChat)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w)
	})

	return r
}

// requestTimeout covers a primary call plus one fallback call
func requestTimeout(deps *app.Dependencies) time.Duration {
	return 2*deps.Config.Chat.ProviderTimeout + 5*time.Second
}
