package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storefront-backend/internal/config"
)

type Server struct {
	Engine *gin.Engine
	srv    *http.Server
}

func NewServer(cfg config.HTTPConfig, rc RouterConfig) *Server {
	rc.AllowedOrigins = cfg.CORSAllowedOrigins
	rc.MaxRequestBytes = cfg.MaxRequestBytes
	engine := NewRouter(rc)
	return &Server{
		Engine: engine,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout.Duration,
			IdleTimeout:       cfg.IdleTimeout.Duration,
		},
	}
}

func (s *Server) Addr() string { return s.srv.Addr }

// Run serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Run() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits up to timeout for open
// requests. Streams still open at the deadline are closed.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		_ = s.srv.Close()
		return err
	}
	return nil
}
