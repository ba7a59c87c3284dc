package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Sakimotor/TranslationFramework2/internal/config"
	"github.com/Sakimotor/TranslationFramework2/internal/service"
	"github.com/Sakimotor/TranslationFramework2/pkg/log"
)

// Server exposes the project over a small JSON API so an external editor
// can list texts, submit translations and trigger rebuilds.
type Server struct {
	svc         *service.ProjectService
	cfg         *config.Config
	projectFile string

	streamInterval time.Duration

	// serializes load-edit-save cycles on overlays
	editMu sync.Mutex

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithProjectFile enables PUT /api/settings, which writes the project file.
func WithProjectFile(path string) Option {
	return func(s *Server) {
		s.projectFile = path
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func NewServer(svc *service.ProjectService, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		cfg:            cfg,
		streamInterval: 2 * time.Second,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	routes := map[string]http.HandlerFunc{
		"/api/assets":      s.handleAssets,
		"/api/entries":     s.handleEntries,
		"/api/rebuild":     s.handleRebuild,
		"/api/runs":        s.handleRuns,
		"/api/runs/stream": s.handleRunStream,
		"/api/settings":    s.handleSettings,
	}
	for pattern, handler := range routes {
		s.mux.Handle(pattern, handler)
	}
	return s
}

// Handler is the API with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		log.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// ListenAndServe blocks until Shutdown; write timeouts are left unset for
// the event stream.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
	log.Info("API listening on %s", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps the event stream working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
