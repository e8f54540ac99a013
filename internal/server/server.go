package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/services"
)

const shutdownTimeout = 30 * time.Second

// Submitter accepts instructions
type Submitter interface {
	Submit(ctx context.Context, req services.SubmitRequest) (*services.Accepted, error)
}

// StatusReader reports CLI readiness for a project
type StatusReader interface {
	Status(ctx context.Context, projectID string, cli domain.CLIType, model string) domain.CLIStatus
	StatusAll(ctx context.Context, projectID string) map[domain.CLIType]domain.CLIStatus
}

// MetricsReader reports execution statistics
type MetricsReader interface {
	Project(ctx context.Context, projectID string, limit int) (*services.MetricsReport, error)
}

// ProjectReader loads projects
type ProjectReader interface {
	Get(ctx context.Context, id string) (*domain.Project, error)
}

// Deps are the services behind the HTTP surface
type Deps struct {
	Metrics   MetricsReader
	Projects  ProjectReader
	Realtime  http.Handler
	Status    StatusReader
	Submitter Submitter
}

// Server is the HTTP and websocket front of the execution core
type Server struct {
	addr string
	deps Deps
	http *http.Server
}

// New creates a Server listening on addr
func New(addr string, deps Deps) *Server {
	s := &Server{addr: addr, deps: deps}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /projects/{id}/act", s.handleSubmit(domain.RequestAct))
	mux.HandleFunc("POST /projects/{id}/chat", s.handleSubmit(domain.RequestChat))
	mux.HandleFunc("GET /projects/{id}/cli-status", s.handleCLIStatus)
	mux.HandleFunc("GET /projects/{id}/metrics", s.handleMetrics)
	if s.deps.Realtime != nil {
		mux.Handle("GET /ws", s.deps.Realtime)
	}
	return logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	logging.Logger.Info("Starting HTTP server", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	logging.Logger.Info("HTTP server stopped")
	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
