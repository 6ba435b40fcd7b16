package server

import (
	"fmt"
	"net/http"
	"time"

	"shelfdesk/internal/app"
	custommiddleware "shelfdesk/internal/middleware"
	"shelfdesk/internal/transport"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	app    *app.App
	logger *zap.Logger
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string         `json:"status"`
	Auth    string         `json:"auth"`
	Catalog map[string]any `json:"catalog"`
	Storage map[string]any `json:"storage"`
}

// NewRouter builds the HTTP routes on top of the application components
func NewRouter(a *app.App, logger *zap.Logger) chi.Router {
	cfg := a.Config
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.IsDevelopment()))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	router.Get("/health", healthHandler(a))

	requireSession := custommiddleware.RequireSession(a.Sessions, logger)
	requireAnonymous := custommiddleware.RequireAnonymous(a.Sessions, logger)
	authRateLimit := custommiddleware.RateLimitMiddleware(a.Redis, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.Requests,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         "shelfdesk:ratelimit:auth",
	}, logger)

	transport.NewAuthHandler(a.Sessions, logger).RegisterRoutes(router, requireSession, requireAnonymous, authRateLimit)
	transport.NewProductHandler(a.Catalog, logger).RegisterRoutes(router, requireSession)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithError(w, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}

func NewServer(a *app.App, logger *zap.Logger) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", a.Config.Server.Port),
			Handler:      NewRouter(a, logger),
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		app:    a,
		logger: logger,
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if err := s.app.Close(); err != nil {
		s.logger.Error("Failed to close application resources", zap.Error(err))
	}

	s.logger.Sync()
	return nil
}

func healthHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := a.Catalog.State()
		resp := HealthResponse{
			Status: "ok",
			Auth:   string(a.Sessions.State()),
			Catalog: map[string]any{
				"products":  len(state.Products),
				"loading":   state.Loading,
				"lastFetch": state.LastFetch,
			},
			Storage: a.StorageHealth(r.Context()),
		}

		status := http.StatusOK
		if resp.Storage["status"] != "up" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, resp)
	}
}
