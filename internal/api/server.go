// Package api exposes the HTTP interface for the analyzer service.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/brunogleite/cro-analyzer-backend/internal/config"
	"github.com/brunogleite/cro-analyzer-backend/internal/metrics"
	"github.com/brunogleite/cro-analyzer-backend/internal/models"
	"github.com/brunogleite/cro-analyzer-backend/internal/repository"
	"github.com/brunogleite/cro-analyzer-backend/internal/service"
)

// AuthProvider is the slice of AuthService the handlers need.
type AuthProvider interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	VerifyToken(ctx context.Context, token string) (*models.User, error)
	Refresh(ctx context.Context, user *models.User) (string, error)
	Profile(ctx context.Context, userID int64) (*models.User, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) error
	ListUsers(ctx context.Context, filter repository.UserFilter) ([]*models.User, error)
}

// AnalysisProvider is the slice of AnalysisService the handlers need.
type AnalysisProvider interface {
	Analyze(ctx context.Context, user *models.User, url string) (*models.Analysis, error)
	Get(ctx context.Context, user *models.User, id int64) (*models.Analysis, error)
	List(ctx context.Context, user *models.User, filter repository.AnalysisFilter) ([]*models.Analysis, error)
	Stats(ctx context.Context, user *models.User) (*models.AnalysisStats, error)
	Delete(ctx context.Context, user *models.User, id int64) error
}

// Pinger reports database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the services.
type Server struct {
	router   chi.Router
	auth     AuthProvider
	analysis AnalysisProvider
	db       Pinger
	logger   *zap.Logger
	cfg      config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	auth AuthProvider,
	analysis AnalysisProvider,
	db Pinger,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		auth:     auth,
		analysis: analysis,
		db:       db,
		logger:   logger,
		cfg:      cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/health/db", s.healthDB)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/profile", s.profile)
				r.Post("/change-password", s.changePassword)
				r.Post("/refresh", s.refresh)
				r.With(s.requireAdmin).Get("/users", s.listUsers)
			})
		})
		r.Route("/cro", func(r chi.Router) {
			r.Use(s.requireAuth)
			// Analysis requests can hold the connection for minutes while
			// the browser and the model run; everything else gets a short
			// deadline.
			r.With(timeoutMiddleware(5 * time.Minute)).Post("/analyze", s.analyze)
			r.Group(func(r chi.Router) {
				r.Use(timeoutMiddleware(30 * time.Second))
				r.Get("/analyses", s.listAnalyses)
				r.Get("/analyses/stats", s.analysisStats)
				r.Get("/analysis/{id}", s.getAnalysis)
				r.Delete("/analysis/{id}", s.deleteAnalysis)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// healthDB reports database reachability. It always answers 200; the
// body carries the verdict so probes can distinguish app-up from db-up.
func (s *Server) healthDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ok := s.db.Ping(ctx) == nil
	writeJSON(w, http.StatusOK, map[string]bool{"database": ok})
}

// errorStatus maps service sentinels onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) serviceError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}
