// Package web serves the tracker as a small server-rendered site.
package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/nami/internal/chat"
	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/metrics"
	"github.com/hpungsan/nami/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the long-lived services the web UI operates on.
type Deps struct {
	Store   *store.Store
	Relay   *chat.Relay
	Metrics *metrics.Collector
	Log     *zap.Logger
}

// NewServer creates and configures the HTTP server for the Nami web UI.
func NewServer(deps Deps, cfg *config.Config, version, bind string, port int) (*http.Server, error) {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to create template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create static sub-FS: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	h := &Handlers{
		st:       deps.Store,
		relay:    deps.Relay,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, version, loc, log),
		log:      log,
		now:      time.Now,
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", h.HandleHome)

	mux.HandleFunc("GET /urge", h.HandleUrge)
	mux.HandleFunc("POST /urge/start", h.HandleUrgeStart)
	mux.HandleFunc("POST /urge/triggers/{trigger}", h.HandleUrgeTrigger)
	mux.HandleFunc("POST /urge/next", h.HandleUrgeNext)
	mux.HandleFunc("POST /urge/strategy/{id}", h.HandleUrgeStrategy)
	mux.HandleFunc("POST /urge/skip", h.HandleUrgeSkip)
	mux.HandleFunc("POST /urge/complete", h.HandleUrgeComplete)
	mux.HandleFunc("POST /urge/cancel", h.HandleUrgeCancel)

	mux.HandleFunc("GET /mood", h.HandleMoodForm)
	mux.HandleFunc("POST /mood", h.HandleMoodCreate)
	mux.HandleFunc("GET /history", h.HandleHistory)
	mux.HandleFunc("GET /analytics", h.HandleAnalytics)
	mux.HandleFunc("GET /chat", h.HandleChat)
	mux.HandleFunc("POST /chat", h.HandleChatSend)
	mux.HandleFunc("GET /settings", h.HandleSettings)
	mux.HandleFunc("POST /settings", h.HandleSettingsUpdate)
	mux.HandleFunc("GET /sos", h.HandleSOS)

	// Method checking is done by the handler so clients get a JSON body.
	mux.HandleFunc("/api/chat", h.HandleAPIChat)

	mux.Handle("GET /metrics", deps.Metrics.Handler())

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	handler := securityHeaders(instrument(mux, deps.Metrics))

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// instrument counts requests by method, matched route pattern and status.
func instrument(mux *http.ServeMux, m *metrics.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		// ServeMux records the matched pattern on the request.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(r.Method, route, rec.status)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, log *zap.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("nami UI running", zap.String("url", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
