package facilitator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vitwit/x402-facilitator/logger"
)

// Server exposes the facilitator over HTTP.
type Server struct {
	engine      *gin.Engine
	facilitator *Facilitator
	log         logger.Logger
	srv         *http.Server
}

// NewServer wires the HTTP routes around a Facilitator.
func NewServer(f *Facilitator, log logger.Logger) *Server {
	if log == nil {
		log = logger.NoopLogger{}
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:      gin.New(),
		facilitator: f,
		log:         log,
	}
	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("facilitator listening", map[string]any{"addr": s.srv.Addr})
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
