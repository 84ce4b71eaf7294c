package wsserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dobble/internal/app"
	"dobble/internal/config"
	"dobble/internal/domain"
	"dobble/internal/ports"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// NewRouter mounts the websocket endpoint and the operator API.
func NewRouter(hub *Hub, gatherer prometheus.Gatherer, board ports.LeaderboardPort, cfg config.ServerConfig, logger *zap.Logger) *gin.Engine {
	if board == nil {
		board = ports.NopScore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(logger))
	if len(cfg.AllowOrigins) > 0 {
		r.Use(cors.New(corsConfig(cfg.AllowOrigins)))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", hub.ServeWS)

	session := r.Group("/session")
	{
		session.GET("", func(c *gin.Context) {
			snap, err := hub.Snapshot(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, snap)
		})
		session.POST("/start", func(c *gin.Context) {
			if err := hub.Start(c.Request.Context()); err != nil {
				c.JSON(startStatus(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": string(domain.StatusInProgress)})
		})
	}

	r.GET("/leaderboard", func(c *gin.Context) {
		limit := defaultLeaderboardLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxLeaderboardLimit)
		}
		standings, err := board.Leaderboard(c.Request.Context(), limit)
		if err != nil {
			logger.Error("leaderboard", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard unavailable"})
			return
		}
		if standings == nil {
			standings = []ports.Standing{}
		}
		c.JSON(http.StatusOK, gin.H{"standings": standings})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, app.ErrNotWaiting), errors.Is(err, app.ErrTooFewPlayers):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnsatisfiableDeckSize):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrHubStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
