package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/example/tagcanon/internal/config"
	"github.com/example/tagcanon/internal/conflict"
	"github.com/example/tagcanon/internal/dictionary"
	"github.com/example/tagcanon/internal/stats"
	"github.com/example/tagcanon/internal/store"
	"github.com/example/tagcanon/internal/swaggerui"
	"github.com/example/tagcanon/internal/tagnorm"
)

// Store is the persistence the API needs; *store.Store satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	ListEntries(ctx context.Context, includeInactive bool) ([]store.DictionaryEntry, error)
	GetEntry(ctx context.Context, id int64) (*store.DictionaryEntry, error)
	CreateEntry(ctx context.Context, in store.EntryCreate) (*store.DictionaryEntry, error)
	UpdateEntry(ctx context.Context, id int64, upd store.EntryUpdate) (*store.DictionaryEntry, error)
	DeactivateEntry(ctx context.Context, id int64) error
	ListConflictRules(ctx context.Context, includeInactive bool) ([]store.ConflictRule, error)
	UpsertConflictRule(ctx context.Context, rule conflict.Rule) error
	CreateDocument(ctx context.Context, in store.DocumentCreate) (*store.Document, error)
	GetDocument(ctx context.Context, id int64) (*store.Document, error)
	SearchDocuments(ctx context.Context, params store.SearchParams) ([]store.Document, int, error)
	ListTags(ctx context.Context, prefix string, page, pageSize int) ([]string, int, error)
}

type Server struct {
	cfg     *config.Config
	engine  *tagnorm.Engine
	store   Store
	apiKeys *APIKeyStore
	logger  *slog.Logger
}

var (
	openapiOnce sync.Once
	openapiData []byte
	openapiErr  error
)

func loadOpenAPI() ([]byte, error) {
	openapiOnce.Do(func() {
		path := filepath.Clean("openapi.yaml")
		openapiData, openapiErr = os.ReadFile(path)
	})
	return openapiData, openapiErr
}

// NewRouter builds the HTTP surface. st may be nil when the dictionary comes
// from a file; the dictionary admin and document routes are then not mounted.
func NewRouter(cfg *config.Config, engine *tagnorm.Engine, st Store, apiKeys *APIKeyStore, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	s := &Server{cfg: cfg, engine: engine, store: st, apiKeys: apiKeys, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(loggingMiddleware(logger))

	if len(cfg.CORSAllowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept", "X-Api-Key"},
			AllowCredentials: true,
		})
		r.Use(c.Handler)
	}

	r.Get("/healthz", s.GetHealthz)
	r.Get("/readyz", s.GetReadyz)
	r.Method(http.MethodGet, "/metrics", stats.Handler())
	if cfg.OpenAPIPath != "" {
		r.Get(cfg.OpenAPIPath, s.serveOpenAPI)
		if cfg.SwaggerUIPath != "" {
			r.Mount(cfg.SwaggerUIPath, swaggerui.Handler("Tagcanon API", cfg.OpenAPIPath, cfg.SwaggerUIPath))
		}
	}

	wrapper := ServerInterfaceWrapper{Handler: s, ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
	}}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware())

		r.With(s.requirePermissions(PermCanClassify)).Post("/api/normalize", s.Normalize)
		r.With(s.requirePermissions(PermCanClassify)).Post("/api/extract", s.Extract)
		r.With(s.requirePermissions(PermCanClassify)).Post("/api/explain", s.Explain)

		r.With(s.requirePermissions(PermCanRead)).Get("/api/dictionary/status", s.DictionaryStatus)
		r.With(s.requirePermissions(PermCanAdmin)).Post("/api/dictionary/reload", s.ReloadDictionary)

		if st == nil {
			return
		}
		r.With(s.requirePermissions(PermCanRead)).Get("/api/dictionary", wrapper.ListEntries)
		r.With(s.requirePermissions(PermCanRead)).Get("/api/dictionary/{id}", wrapper.GetEntry)
		r.With(s.requirePermissions(PermCanAdmin)).Post("/api/dictionary", s.CreateEntry)
		r.With(s.requirePermissions(PermCanAdmin)).Patch("/api/dictionary/{id}", wrapper.UpdateEntry)
		r.With(s.requirePermissions(PermCanAdmin)).Delete("/api/dictionary/{id}", wrapper.DeactivateEntry)

		r.With(s.requirePermissions(PermCanRead)).Get("/api/conflict-rules", s.ListConflictRules)
		r.With(s.requirePermissions(PermCanAdmin)).Put("/api/conflict-rules/{name}", wrapper.UpsertConflictRule)

		r.With(s.requirePermissions(PermCanRead)).Get("/api/documents", wrapper.SearchDocuments)
		r.With(s.requirePermissions(PermCanRead)).Get("/api/documents/{id}", wrapper.GetDocument)
		r.With(s.requirePermissions(PermCanClassify)).Post("/api/documents", s.CreateDocument)
		r.With(s.requirePermissions(PermCanRead)).Get("/api/tags", wrapper.ListTags)
	})

	return r
}

func (s *Server) serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	data, err := loadOpenAPI()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "unable to load openapi.yaml", map[string]any{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) GetHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Health{Status: Ok})
}

// GetReadyz is ready once the dictionary compiles and the database answers.
func (s *Server) GetReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable", map[string]any{"error": err.Error()})
			return
		}
	}
	idx, err := s.engine.LoadDictionary(ctx, false)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "dictionary unavailable", map[string]any{"error": err.Error()})
		return
	}
	gen := idx.Generation
	writeJSON(w, http.StatusOK, Health{Status: Ok, Generation: &gen})
}

// engineError maps classification failures onto HTTP statuses.
func (s *Server) engineError(w http.ResponseWriter, err error) {
	if errors.Is(err, dictionary.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "dictionary_unavailable", "dictionary could not be loaded", map[string]any{"error": err.Error()})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "timeout", "request cancelled", nil)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", "classification failed", map[string]any{"error": err.Error()})
}

func storeError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", what+" not found", nil)
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", what+" already exists", nil)
	case errors.Is(err, dictionary.ErrMalformedEntry):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", "failed to access "+what, map[string]any{"error": err.Error()})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	e := Error{Code: code, Message: message}
	if details != nil {
		e.Details = &details
	}
	writeJSON(w, status, e)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			stats.HTTPRequestCounter.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", status, "duration", time.Since(start).String())
		})
	}
}

func getStringPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefStringSlice(v *[]string) []string {
	if v == nil {
		return nil
	}
	return *v
}

func derefInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func derefBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func derefSort(v *SearchDocumentsParamsSort) SearchDocumentsParamsSort {
	if v == nil {
		return SortNewest
	}
	return *v
}
