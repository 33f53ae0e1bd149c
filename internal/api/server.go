package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
	"github.com/JakeFAU/admissions-crawler/internal/metrics"
)

// Prefix is the mount point of the query routes.
const Prefix = "/adm_api"

// Queries is the read surface the server exposes.
type Queries interface {
	ListYears() []int
	ListRegions(ctx context.Context, year int) ([]admission.RegionView, error)
	ListSchools(ctx context.Context, year int, regionCode string) ([]string, error)
	GetFullSchool(ctx context.Context, year int, regionCode, school string) (admission.FullSchool, error)
}

// Config controls server middleware.
type Config struct {
	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

// Server wires HTTP routes to the query service.
type Server struct {
	router  chi.Router
	queries Queries
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(queries Queries, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		queries: queries,
		logger:  logger.Named("api"),
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(c.Handler)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, s.logger, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, s.logger, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route(Prefix, func(r chi.Router) {
		r.Get("/years", s.years)
		r.Get("/{year}/regions", s.regions)
		r.Get("/{year}/{region}/schools", s.schools)
		r.Get("/{year}/{region}/fullSchool/{school}", s.fullSchool)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) years(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, s.logger, s.queries.ListYears())
}

func (s *Server) regions(w http.ResponseWriter, r *http.Request) {
	year, ok := s.yearParam(w, r)
	if !ok {
		return
	}
	regions, err := s.queries.ListRegions(r.Context(), year)
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	writeSuccess(w, s.logger, regions)
}

func (s *Server) schools(w http.ResponseWriter, r *http.Request) {
	year, ok := s.yearParam(w, r)
	if !ok {
		return
	}
	schools, err := s.queries.ListSchools(r.Context(), year, pathParam(r, "region"))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	writeSuccess(w, s.logger, schools)
}

func (s *Server) fullSchool(w http.ResponseWriter, r *http.Request) {
	year, ok := s.yearParam(w, r)
	if !ok {
		return
	}
	full, err := s.queries.GetFullSchool(r.Context(), year, pathParam(r, "region"), pathParam(r, "school"))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	writeSuccess(w, s.logger, full)
}

func (s *Server) yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "year")
	year, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, fmt.Sprintf("invalid year %q", raw))
		return 0, false
	}
	return year, true
}

func (s *Server) queryFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("query failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, admission.ErrStorageOpen):
		status = http.StatusServiceUnavailable
	}
	writeError(w, s.logger, status, err.Error())
}

// pathParam returns the decoded value of a route parameter. chi matches on
// the escaped path when one is present, so its values need unescaping then.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}
