// Package api exposes the dataset ingestion and query core over HTTP.
// It is the thin intake seam: request parsing, dataset id allocation,
// and error-to-status mapping live here; all semantics live in the
// tabular package.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tabulardb/tabular"
)

// DefaultMaxUploadBytes bounds the accepted upload size.
const DefaultMaxUploadBytes = 256 << 20 // 256 MiB

// Server routes HTTP requests to the tabular service.
type Server struct {
	router         *chi.Mux
	svc            *tabular.Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewServer builds the HTTP server around a tabular service.
func NewServer(svc *tabular.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:         chi.NewRouter(),
		svc:            svc,
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Route("/api/datasets", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/{datasetID}", s.handleStatus)
		r.Post("/{datasetID}/query", s.handleQuery)
		r.Delete("/{datasetID}", s.handleDelete)
	})
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// requestLogger logs one line per request with method, path, status,
// and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// statusForError maps core sentinel errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, tabular.ErrDatasetNotFound):
		return http.StatusNotFound
	case errors.Is(err, tabular.ErrDatasetExists),
		errors.Is(err, tabular.ErrDatasetNotReady),
		errors.Is(err, tabular.ErrDatasetFailed):
		return http.StatusConflict
	case errors.Is(err, tabular.ErrEmptySheet),
		errors.Is(err, tabular.ErrUnsupportedFormat),
		errors.Is(err, tabular.ErrDuplicateColumn),
		errors.Is(err, tabular.ErrEmptyColumn),
		errors.Is(err, tabular.ErrUnknownColumn),
		errors.Is(err, tabular.ErrInvalidFilter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
