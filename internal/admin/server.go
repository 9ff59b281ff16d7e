package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/diagipc/internal/diag"
	"github.com/danmuck/diagipc/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// SessionLister is the view of the diagnostics server the admin surface
// needs.
type SessionLister interface {
	Sessions() []diag.SessionInfo
}

// Admin serves health, metrics and session listings over HTTP.
type Admin struct {
	ID       string    `json:"id"`
	Endpoint string    `json:"endpoint"`
	Appeared time.Time `json:"appeared"`

	sessions SessionLister
	router   *gin.Engine
}

// New builds the admin router. CORS is enabled only when corsOrigins is
// non-empty.
func New(id, endpoint string, corsOrigins []string, sessions SessionLister) *Admin {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		ID:       id,
		Endpoint: endpoint,
		Appeared: time.Now(),
		sessions: sessions,
		router:   r,
	}
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(a.Appeared).String(),
			"service":  a.ID,
			"endpoint": a.Endpoint,
			"version":  version,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   a.sessions != nil,
			"uptime":  time.Since(a.Appeared).String(),
			"service": a.ID,
			"version": version,
		})
	})

	a.router.GET("/sessions", func(c *gin.Context) {
		list := []diag.SessionInfo{}
		if a.sessions != nil {
			list = a.sessions.Sessions()
		}
		c.JSON(http.StatusOK, gin.H{
			"sessions": list,
		})
	})
}

// Run serves on addr until ctx is done.
func (a *Admin) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
