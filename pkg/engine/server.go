package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ignitionstack/ember/pkg/engine/logging"
)

// Server handles the HTTP and Unix socket servers for the engine
type Server struct {
	socketPath   string
	httpAddr     string
	handlers     *Handlers
	logger       logging.Logger
	httpServer   *http.Server
	socketServer *http.Server
	httpListener net.Listener
	errChan      chan error
	shutdownOnce sync.Once
}

// NewServer creates a new Server instance
func NewServer(socketPath, httpAddr string, handlers *Handlers, logger logging.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		httpAddr:   httpAddr,
		handlers:   handlers,
		logger:     logger,
		errChan:    make(chan error, 2),
	}
}

// Start opens both listeners and serves in the background.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove the socket file if it already exists
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket file: %w", err)
	}

	socketListener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to start Unix socket listener: %w", err)
	}

	httpListener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		socketListener.Close()
		return fmt.Errorf("failed to start HTTP listener: %w", err)
	}
	s.httpListener = httpListener

	s.httpServer = &http.Server{
		Handler:      s.handlers.HTTPHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.socketServer = &http.Server{
		Handler:      s.handlers.UnixSocketHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Printf("Unix socket server listening on %s", s.socketPath)
		if err := s.socketServer.Serve(socketListener); err != nil && err != http.ErrServerClosed {
			s.errChan <- fmt.Errorf("unix socket server error: %w", err)
		}
	}()

	go func() {
		s.logger.Printf("HTTP server listening on %s", httpListener.Addr())
		if err := s.httpServer.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			s.errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	return nil
}

// HTTPAddr returns the bound HTTP address, which differs from the
// configured one when it used port 0.
func (s *Server) HTTPAddr() string {
	if s.httpListener == nil {
		return s.httpAddr
	}
	return s.httpListener.Addr().String()
}

// Errors reports failures of the background servers.
func (s *Server) Errors() <-chan error {
	return s.errChan
}

// Run starts the servers and blocks until ctx ends, SIGINT/SIGTERM arrives
// or a server fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Start(); err != nil {
		return err
	}
	s.logger.Printf("Engine servers started successfully and ready to accept connections")

	select {
	case <-ctx.Done():
		s.logger.Printf("Received shutdown signal, gracefully shutting down...")
	case err := <-s.errChan:
		_ = s.shutdownWithTimeout()
		return err
	}
	return s.shutdownWithTimeout()
}

func (s *Server) shutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown gracefully stops both servers and removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Errorf("Error shutting down HTTP server: %v", err)
			}
		}

		if s.socketServer != nil {
			if err := s.socketServer.Shutdown(ctx); err != nil {
				s.logger.Errorf("Error shutting down socket server: %v", err)
			}
		}

		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Errorf("Error removing socket file: %v", err)
		}

		s.logger.Printf("Servers shutdown complete")
	})
	return nil
}
