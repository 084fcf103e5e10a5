// Package httpadmin exposes a read-only ops API next to the relay: health,
// channel directory, and session counts. It never mutates relay state; the
// chat contract itself stays TCP-only.
package httpadmin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/driftchat/drift-server/internal/core"
	"github.com/driftchat/drift-server/internal/server"
)

// Stats is the /api/stats response body.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	MaxConnections int `json:"max_connections"`
	Channels       int `json:"channels"`
}

// NewHandler builds the admin router.
func NewHandler(registry *core.Registry, admission *server.Admission, logger *zerolog.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(LoggerMiddleware(logger), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	api.GET("/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, registry.Channels())
	})
	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, Stats{
			ActiveSessions: admission.Active(),
			MaxConnections: admission.Capacity(),
			Channels:       len(registry.Channels()),
		})
	})

	return r
}

// NewServer wraps the handler in an http.Server bound to addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("admin request")
	}
}
