package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/shizuku-reports/services/api/cache"
	"github.com/02loveslollipop/shizuku-reports/services/api/config"
	"github.com/02loveslollipop/shizuku-reports/services/api/db"
	"github.com/02loveslollipop/shizuku-reports/services/api/export"
	"github.com/02loveslollipop/shizuku-reports/services/api/poller"
	"github.com/02loveslollipop/shizuku-reports/services/api/report"
	"github.com/02loveslollipop/shizuku-reports/services/api/settings"
)

// ArchiveLister pages through archived report documents.
type ArchiveLister interface {
	ListArchived(ctx context.Context, periodKey string, limit, offset int) (*db.ArchivePage, error)
}

// CacheClearer drops cached snapshots.
type CacheClearer interface {
	Clear() error
	GetStats() (*cache.Stats, error)
}

// Deps are the collaborators the API serves from. Archive, Cache and
// Metrics are optional.
type Deps struct {
	Poller       *poller.Poller
	Generator    *report.Generator
	Settings     *settings.Store
	Exporters    *export.Set
	Archive      ArchiveLister
	Cache        CacheClearer
	Metrics      http.Handler
	HealthURLs   map[string]string
	HealthClient *http.Client
	Now          func() time.Time
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg    config.Config
	deps   Deps
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	if cfg.BearerToken != "" {
		engine.Use(bearerAuthMiddleware(cfg.BearerToken))
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Exporters == nil {
		deps.Exporters = export.NewSet()
	}

	server := &Server{cfg: cfg, deps: deps, engine: engine}
	server.registerRoutes()
	server.registerV1Routes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// probes stay reachable without credentials
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
