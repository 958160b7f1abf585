package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/savegress/dosetrack/internal/alerts"
	"github.com/savegress/dosetrack/internal/cache"
	"github.com/savegress/dosetrack/internal/config"
	"github.com/savegress/dosetrack/internal/pk"
	"github.com/savegress/dosetrack/internal/storage"
	"github.com/savegress/dosetrack/internal/tracker"
	ws "github.com/savegress/dosetrack/internal/websocket"
)

// Server represents the API server
type Server struct {
	config   *config.Config
	router   chi.Router
	handlers *Handlers
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, store storage.Storage, registry *pk.Registry, trk *tracker.Tracker, alertEngine *alerts.Engine, hub *ws.Hub, c *cache.Cache) *Server {
	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		handlers: &Handlers{
			config:   cfg,
			storage:  store,
			registry: registry,
			tracker:  trk,
			alerts:   alertEngine,
			hub:      hub,
			cache:    c,
		},
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)
	s.router.Get("/ws", s.handlers.ServeWS)

	auth := s.writeGuard()

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/models", s.handlers.ListModels)

		// Dose records
		r.Route("/doses", func(r chi.Router) {
			r.Get("/", s.handlers.ListDoses)
			r.Get("/planned", s.handlers.ListPlannedDoses)
			r.With(auth).Post("/", s.handlers.CreateDose)
			r.With(auth).Delete("/{id}", s.handlers.DeleteDose)
		})

		// Blood tests
		r.Route("/tests", func(r chi.Router) {
			r.Get("/", s.handlers.ListTests)
			r.With(auth).Post("/", s.handlers.CreateTest)
			r.With(auth).Delete("/{id}", s.handlers.DeleteTest)
		})

		// Dosing schedules
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.handlers.ListSchedules)
			r.With(auth).Post("/", s.handlers.CreateSchedule)
			r.With(auth).Delete("/{id}", s.handlers.DeleteSchedule)
		})

		// Estimated levels
		r.Route("/level", func(r chi.Router) {
			r.Get("/current", s.handlers.GetCurrentLevel)
			r.Get("/curve", s.handlers.GetCurve)
			r.Get("/reference", s.handlers.GetReference)
		})

		// Solvers
		r.Route("/regimen", func(r chi.Router) {
			r.Post("/suggest", s.handlers.SuggestRegimen)
			r.Post("/cyclefit", s.handlers.FitCycle)
		})

		r.Post("/calibration/preview", s.handlers.PreviewCalibration)

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handlers.ListAlerts)
			r.Get("/rules", s.handlers.ListAlertRules)
			r.Get("/{id}", s.handlers.GetAlert)
			r.With(auth).Post("/{id}/ack", s.handlers.AcknowledgeAlert)
		})
	})
}

// writeGuard returns the JWT middleware applied to mutating routes, or a
// pass-through when no secret is configured
func (s *Server) writeGuard() func(http.Handler) http.Handler {
	if s.config.Server.JWTSecret == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return AuthMiddleware(s.config)
}

// Router returns the chi router
func (s *Server) Router() http.Handler {
	return s.router
}
