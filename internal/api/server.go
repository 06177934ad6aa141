// Package api hosts the gin HTTP server that exposes the listing workflow to the browser client.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ebooklister/ebooklister/internal/api/handlers"
	"github.com/ebooklister/ebooklister/internal/api/middleware"
	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/logging"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Server wraps the gin engine and its http.Server.
type Server struct {
	engine  *gin.Engine
	handler *handlers.Handler
	server  *http.Server

	mu          sync.RWMutex
	corsOrigins []string
}

// NewServer builds the engine with logging, recovery and CORS middleware and registers all routes.
func NewServer(cfg *config.Config, h *handlers.Handler) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		engine:      gin.New(),
		handler:     h,
		corsOrigins: append([]string(nil), cfg.CORSOrigins...),
	}
	s.engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery(), middleware.CORS(s.origins))
	h.Register(s.engine)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Addr is the listen address.
func (s *Server) Addr() string { return s.server.Addr }

// Start serves until Stop is called. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	log.Infof("API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// UpdateConfig applies the settings that can change without a restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	s.corsOrigins = append([]string(nil), cfg.CORSOrigins...)
	s.mu.Unlock()
	s.handler.SetShopID(cfg.Etsy.ShopID)
}

func (s *Server) origins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corsOrigins
}

// Mount serves h for GET requests on path, outside the JSON API routes. Mounted paths
// write no access log line.
func (s *Server) Mount(path string, h http.Handler) {
	s.engine.GET(path, func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		h.ServeHTTP(c.Writer, c.Request)
	})
}

// CheckOrigin accepts requests without an Origin header, same-host origins and the
// configured CORS origins.
func (s *Server) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return middleware.OriginAllowed(origin, s.origins())
}
