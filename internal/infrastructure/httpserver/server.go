package httpserver

import (
	"context"
	stderrors "errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
)

type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *log.Logger

	mu       sync.Mutex
	listener net.Listener
}

func New(address string, handler http.Handler, shutdownTimeout time.Duration, logger *log.Logger) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Addr is the bound address once the server is listening, the configured
// one before that.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logf("server starting address=%s", listener.Addr().String())
	err = s.httpServer.Serve(listener)
	if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Run serves until ctx is done, then shuts down within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logf("server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
