// Package admin serves the daemon's HTTP status surface: health, readiness,
// Prometheus metrics, the open handles of the current caller and the method
// catalogue.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/articgate/internal/auth"
	"github.com/danmuck/articgate/internal/gateway"
	"github.com/danmuck/articgate/internal/observability"
	"github.com/danmuck/articgate/internal/server"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const serviceName = "articgate-admin"

// Version is reported by /health and /ready.
var Version = "0.1.0"

type Config struct {
	Addr        string
	CORSOrigins []string
	// Token, when set, is required as a bearer token on /handles.
	Token string
}

func DefaultConfig() Config {
	return Config{Addr: "127.0.0.1:5544"}
}

// Source is the daemon state the admin surface reports.
type Source interface {
	Listening() bool
	Snapshot() server.Status
}

type Admin struct {
	cfg      Config
	src      Source
	router   *gin.Engine
	appeared time.Time
}

func New(cfg Config, src Source) *Admin {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(serviceName))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{cfg: cfg, src: src, router: r, appeared: time.Now()}
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.appeared).String(),
			"service": serviceName,
			"version": Version,
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		ready := a.src.Listening()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"uptime":  time.Since(a.appeared).String(),
			"service": serviceName,
			"version": Version,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/handles", a.requireToken(), func(c *gin.Context) {
		st := a.src.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"session": st.SessionID,
			"remote":  st.Remote,
			"handles": st.Handles,
		})
	})

	a.router.GET("/methods", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"methods": gateway.Catalogue(),
		})
	})
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (a *Admin) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

func (a *Admin) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("admin.Serve listening")
		errCh <- srv.Serve(ln)
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
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (a *Admin) requireToken() gin.HandlerFunc {
	if a.cfg.Token == "" {
		return func(c *gin.Context) { c.Next() }
	}
	v := auth.StaticToken{Token: a.cfg.Token}
	return func(c *gin.Context) {
		if err := auth.CheckHeader(v, c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
