package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/server/handlers"
)

// Options toggles the optional surfaces of the router.
type Options struct {
	// Webhook is nil when WhatsApp is not configured.
	Webhook        *handlers.WebhookHandler
	MetricsEnabled bool
}

// New wires the Gin engine with required routes and middlewares.
func New(ledger *handlers.LedgerHandler, opts Options, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	farm := r.Group("/farms/:farm/categories/:category")
	{
		farm.POST("/ledger", ledger.Provision)
		farm.GET("/ledger", ledger.Ledger)
		farm.DELETE("/ledger", ledger.Reset)
		farm.GET("/ledger/verify", ledger.Verify)
		farm.GET("/dashboard", ledger.Dashboard)

		farm.POST("/events", ledger.AppendEvent)
		farm.GET("/events", ledger.Events)
		farm.GET("/export.xlsx", ledger.Export)

		farm.POST("/sales", ledger.CommitSale)
		farm.GET("/sales", ledger.Sales)

		farm.POST("/metrics", ledger.GenerateMetric)
		farm.GET("/metrics", ledger.Metrics)
	}

	if opts.Webhook != nil {
		r.GET("/webhook", opts.Webhook.Verify)
		r.POST("/webhook", opts.Webhook.Receive)
		r.POST("/send-message", opts.Webhook.SendMessage)
	}

	if opts.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if logger != nil {
		logger.Info("router initialized",
			zap.Bool("webhook", opts.Webhook != nil),
			zap.Bool("metrics", opts.MetricsEnabled))
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
