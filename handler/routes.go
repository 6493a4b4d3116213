package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"chat-relay/internal/middleware"
)

type RouteOptions struct {
	AllowOrigins []string

	// TrustedProxies may set the client IP through X-Forwarded-For. Nil
	// trusts none, so clients cannot pick their own rate limit key.
	TrustedProxies []string

	// Limiter guards POST /api/chat. A nil or disabled limiter lets every
	// request through.
	Limiter *middleware.RateLimiter

	// Metrics is served on GET /metrics when set.
	Metrics http.Handler
}

// Routes builds the gin engine serving the chat API.
func Routes(h *Handler, opts RouteOptions) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("handler: trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.CorrelationID())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(opts.AllowOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := r.Group("/api")
	if opts.Limiter.Enabled() {
		api.Use(opts.Limiter.Middleware())
	}
	api.POST("/chat", h.Chat)
	return r, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.CorrelationHeader},
		ExposeHeaders: []string{middleware.CorrelationHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Chat serves POST /api/chat.
func (h *Handler) Chat(c *gin.Context) {
	ctx := c.Request.Context()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := c.GetRawData()
	correlationID := middleware.CorrelationIDFrom(ctx)
	if err != nil {
		status, payload := h.rejectBody(ctx, correlationID, err)
		c.JSON(status, payload)
		return
	}
	status, payload := h.serve(ctx, correlationID, body)
	c.JSON(status, payload)
}
