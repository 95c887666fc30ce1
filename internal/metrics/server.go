package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roas-notifier/internal/logger"
)

type ctxKey string

const requestIDKey ctxKey = "rid"

// NewRouter serves /healthz, /readyz, /metrics and /status.
func NewRouter(rec *Recorder) http.Handler {
	mux := chi.NewRouter()
	mux.Use(requestID)
	mux.Use(requestLogger)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(rec.Registry(), promhttp.HandlerOpts{}))
	mux.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		last, ok := rec.LastRun()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"status": "idle"})
			return
		}
		status := "ok"
		if last.Error != "" {
			status = "error"
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": status, "last_run": last})
	})

	return mux
}

// Server is the optional status endpoint of long-running modes.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, rec *Recorder) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(rec),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background until Shutdown.
func (s *Server) Start(ctx context.Context) {
	go func() {
		logger.Info(ctx, "Status server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Status server stopped", err, "addr", s.srv.Addr)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		rid, _ := r.Context().Value(requestIDKey).(string)
		logger.Debug(r.Context(), "http", "method", r.Method, "path", r.URL.Path, "rid", rid, "latency", time.Since(start).String())
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
