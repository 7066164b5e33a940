// Package server exposes the pipeline over HTTP.
//
//	GET|POST /?bucket=<bucket>&bucket_key=<key>   process <key>, store <key>/<archive>
//	GET      /healthz                              liveness
//
// Every response carries an X-Request-Id header.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/aweris/layerpack"
)

// SuccessMessage is the message of a 201 response.
const SuccessMessage = "Request processed successfully!"

const (
	headerRequestID   = "X-Request-Id"
	retryAfterSeconds = "1"
)

// Processor runs the pipeline for a source object in bucket.
type Processor interface {
	Process(ctx context.Context, bucket, src, dst string) (*layerpack.Result, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, bucket, src, dst string) (*layerpack.Result, error)

func (f ProcessorFunc) Process(ctx context.Context, bucket, src, dst string) (*layerpack.Result, error) {
	return f(ctx, bucket, src, dst)
}

// Config tunes admission control.
type Config struct {
	// MaxInFlight caps concurrent Process calls. Excess requests get 503.
	MaxInFlight int64
	// RPS limits accepted requests per second. Zero means unlimited; excess
	// requests get 429.
	RPS float64
	// ArchiveName is the object name the archive is stored under, below the
	// source key.
	ArchiveName string
}

// Server handles process requests.
type Server struct {
	proc    Processor
	cfg     Config
	log     *slog.Logger
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// New creates a Server.
func New(proc Processor, cfg Config, logger *slog.Logger) *Server {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if cfg.ArchiveName == "" {
		cfg.ArchiveName = layerpack.DefaultArchiveName
	}

	limit := rate.Inf
	burst := 0
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = max(1, int(cfg.RPS))
	}

	return &Server{
		proc:    proc,
		cfg:     cfg,
		log:     logger,
		sem:     semaphore.NewWeighted(cfg.MaxInFlight),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Handler returns the root http.Handler.
//
// Middleware stack (outer → inner):
//
//	RequestID → RequestLog → ServeMux → Admit → handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.Handle("GET /{$}", s.admit(http.HandlerFunc(s.process)))
	mux.Handle("POST /{$}", s.admit(http.HandlerFunc(s.process)))

	return requestID(requestLog(s.log)(mux))
}

// Run serves on addr until ctx is canceled, then drains connections.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// admit applies the rate limit, then takes an in-flight slot without
// queuing.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", retryAfterSeconds)
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if !s.sem.TryAcquire(1) {
			w.Header().Set("Retry-After", retryAfterSeconds)
			writeError(w, r, http.StatusServiceUnavailable, "server at capacity")
			return
		}
		defer s.sem.Release(1)
		next.ServeHTTP(w, r)
	})
}

type processResponse struct {
	Message string `json:"message"`
	*layerpack.Result
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bucket, key := q.Get("bucket"), q.Get("bucket_key")
	if bucket == "" || key == "" {
		writeError(w, r, http.StatusBadRequest, "query parameters bucket and bucket_key are required")
		return
	}

	dst := layerpack.DestinationKey(key, s.cfg.ArchiveName)
	res, err := s.proc.Process(r.Context(), bucket, key, dst)
	if err != nil {
		status := http.StatusInternalServerError
		if layerpack.IsMissing(err) {
			status = http.StatusNotFound
		}
		s.log.Error("request failed",
			"request_id", r.Header.Get(headerRequestID),
			"bucket", bucket,
			"key", key,
			"status", status,
			"error", err,
		)
		writeError(w, r, status, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, processResponse{Message: SuccessMessage, Result: res})
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: r.Header.Get(headerRequestID)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)+1))
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
