// Package server exposes the pipeline over HTTP: POST /runs executes one
// request synchronously and GET /healthz reports liveness.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kingrea/reelscript/internal/pipeline"
	"github.com/kingrea/reelscript/internal/task"
)

// Status reports runtime lifecycle states for the HTTP server.
type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusDraining Status = "draining"
)

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Logger is the subset of the process logger the server writes to.
type Logger interface {
	Printf(format string, args ...any)
}

// Server wraps the HTTP listener and handlers.
type Server struct {
	settings Settings
	runner   Runner
	logger   Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    Status
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New prepares a server that hands requests to runner.
func New(settings Settings, runner Runner, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings: settings,
		runner:   runner,
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed handler without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/runs", s.handleRuns)
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server: server is nil")
	}
	if s.runner == nil {
		return fmt.Errorf("server: runner is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server: already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server: serve error: %v", err)
		}
	}()
	s.logger.Printf("server: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight runs.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Status reports the server's lifecycle state.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type runRequest struct {
	Prompt string `json:"prompt"`
	Target string `json:"target"`
	Seed   *int64 `json:"seed"`
	Video  string `json:"video"`
}

type runResponse struct {
	RunID  string `json:"run_id"`
	Target string `json:"target"`
	Value  any    `json:"value"`
}

type errorResponse struct {
	Error     string   `json:"error"`
	Phase     string   `json:"phase,omitempty"`
	TaskID    string   `json:"task_id,omitempty"`
	RunID     string   `json:"run_id,omitempty"`
	Retryable bool     `json:"retryable"`
	Journal   []string `json:"journal,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload exceeds limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unable to read body"})
		return
	}
	var in runRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
			return
		}
	}
	res, err := s.runner.Run(r.Context(), pipeline.Request{
		Prompt:  in.Prompt,
		Target:  in.Target,
		Options: pipeline.Options{Seed: in.Seed, Video: in.Video},
	})
	if err != nil {
		s.logger.Printf("server: run %s failed: %v", res.RunID, err)
		writeJSON(w, statusFor(err), failureResponse(res, err))
		return
	}
	writeJSON(w, http.StatusOK, runResponse{RunID: res.RunID, Target: res.Target, Value: res.Value})
}

func failureResponse(res pipeline.Result, err error) errorResponse {
	resp := errorResponse{Error: err.Error(), RunID: res.RunID, Retryable: task.Retryable(err), Journal: res.Journal}
	var failure *task.Failure
	if errors.As(err, &failure) {
		resp.Phase = string(failure.Phase)
		resp.TaskID = failure.TaskID
	}
	return resp
}

// statusFor maps the failure taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrBadRequest), errors.Is(err, task.ErrInputsMissing):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrContentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, task.ErrEmptyResult), errors.Is(err, task.ErrNoCandidates), errors.Is(err, task.ErrEmptyContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, task.ErrSourceUnavailable), errors.Is(err, task.ErrExtractionIncomplete), errors.Is(err, task.ErrGenerationFailure):
		return http.StatusBadGateway
	case errors.Is(err, task.ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
