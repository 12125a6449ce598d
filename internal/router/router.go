package router

import (
	"net/http"

	"botfleet-api/internal/handler"
	"botfleet-api/internal/metrics"
	"botfleet-api/internal/middleware"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router. Nil handlers leave
// their routes unmounted.
type Config struct {
	Handler          *handler.Handler
	AccountHandler   *handler.AccountHandler
	BotHandler       *handler.BotHandler
	InventoryHandler *handler.InventoryHandler
	TradeHandler     *handler.TradeHandler
	SettingsHandler  *handler.SettingsHandler
	AdminHandler     *handler.AdminHandler
	Realtime         http.Handler
	Metrics          *metrics.Metrics
	AuthMiddleware   func(http.Handler) http.Handler
	Logger           *log.Logger
}

// PublicPaths are served without an API key.
var PublicPaths = []string{"/api/v1/health", "/api/v1/ready"}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger, cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/v1/health", cfg.Handler.Health)
		r.Get("/api/v1/ready", cfg.Handler.Ready)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		if cfg.Realtime != nil {
			r.Handle("/ws", cfg.Realtime)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.AccountHandler != nil {
				r.Route("/accounts", func(r chi.Router) {
					r.Get("/", cfg.AccountHandler.List)
					r.Post("/", cfg.AccountHandler.Create)
					r.Route("/{username}", func(r chi.Router) {
						r.Get("/", cfg.AccountHandler.Get)
						r.Patch("/", cfg.AccountHandler.Update)
						r.Delete("/", cfg.AccountHandler.Delete)
					})
				})
			}

			if cfg.BotHandler != nil {
				r.Route("/bots", func(r chi.Router) {
					r.Get("/", cfg.BotHandler.List)
					r.Post("/start-all", cfg.BotHandler.StartAll)
					r.Route("/{username}", func(r chi.Router) {
						r.Get("/", cfg.BotHandler.Status)
						r.Post("/start", cfg.BotHandler.Start)
						r.Post("/stop", cfg.BotHandler.Stop)
						r.Post("/reauthenticate", cfg.BotHandler.Reauthenticate)
						r.Post("/code", cfg.BotHandler.SubmitCode)
					})
				})
			}

			if cfg.InventoryHandler != nil {
				r.Route("/inventory", func(r chi.Router) {
					r.Delete("/cache", cfg.InventoryHandler.ClearAll)
					r.Route("/{username}", func(r chi.Router) {
						r.Get("/", cfg.InventoryHandler.Get)
						r.Post("/refresh", cfg.InventoryHandler.Refresh)
						r.Delete("/cache", cfg.InventoryHandler.ClearAccount)
					})
				})
			}

			if cfg.TradeHandler != nil {
				r.Post("/trade/{username}/send", cfg.TradeHandler.Send)
			}

			if cfg.SettingsHandler != nil {
				r.Route("/settings", func(r chi.Router) {
					r.Get("/", cfg.SettingsHandler.List)
					r.Post("/", cfg.SettingsHandler.Set)
					r.Get("/{key}", cfg.SettingsHandler.Get)
					r.Put("/{key}", cfg.SettingsHandler.Put)
				})
			}

			if cfg.AdminHandler != nil {
				r.Get("/admin/stats", cfg.AdminHandler.GetStats)
			}
		})
	})

	return r
}
