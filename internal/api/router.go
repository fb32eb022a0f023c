// Package api serves the read-only status endpoints: health, metrics and
// a preview of the current weekly standings.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"staffduty/internal/weekly"
)

// Pinger reports whether the store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Standings builds a guild's weekly report without emitting it
type Standings interface {
	Build(ctx context.Context, guildID string, now time.Time) (weekly.Report, error)
}

// Options wires the router
type Options struct {
	Store     Pinger
	Standings Standings
	// Metrics is mounted at /metrics when set
	Metrics        http.Handler
	AllowedOrigins []string
	Logger         *slog.Logger
	Now            func() time.Time
}

type handlers struct {
	store     Pinger
	standings Standings
	now       func() time.Time
}

// NewRouter registers every route
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))
	if len(opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  opts.AllowedOrigins,
			AllowMethods:  []string{"GET", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	h := &handlers{store: opts.Store, standings: opts.Standings, now: opts.Now}

	router.GET("/healthz", h.health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := router.Group("/api")
	{
		guilds := api.Group("/guilds")
		{
			guilds.GET("/:guildID/standings", h.getStandings)
		}
	}

	return router
}

func (h *handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getStandings returns the standings the weekly report would show now.
// ?top=N limits the rows (default: all).
func (h *handlers) getStandings(c *gin.Context) {
	guildID := c.Param("guildID")
	if !isSnowflake(guildID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guild ID must be a Discord snowflake"})
		return
	}

	limit := 0
	if raw := c.Query("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top must be a positive integer"})
			return
		}
		limit = n
	}

	report, err := h.standings.Build(c.Request.Context(), guildID, h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build standings"})
		return
	}
	if limit > 0 && len(report.Rows) > limit {
		report.Rows = report.Rows[:limit]
	}
	c.JSON(http.StatusOK, report)
}

func isSnowflake(id string) bool {
	if id == "" || len(id) > 20 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// requestLogger logs one line per request
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}
