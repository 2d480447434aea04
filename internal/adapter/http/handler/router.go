package handler

import (
	"wallet-settlement/internal/adapter/http/middleware"
	"wallet-settlement/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	QRSvc          ports.QRService
	PaymentClient  ports.PaymentClient
	Directory      ports.ParticipantDirectory
	CallbackSecret middleware.CallbackSecretResolver
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	CallbackAuth   middleware.CallbackAuthConfig
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	AuditSvc       ports.AuditService   // nil = security audit disabled
	HealthCheckers []ports.HealthChecker
	MaxBodyBytes   int64
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.MaxBodySize(deps.MaxBodyBytes))

	if deps.AuditSvc != nil {
		r.Use(middleware.SecurityAudit(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/docs", APIDocs)
	r.GET("/docs/openapi.yaml", APISpec)

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	qrHandler := NewQRHandler(deps.QRSvc)
	qr := v1.Group("/qr")
	{
		qr.POST("", rl("qr_generate"), qrHandler.Generate)
		qr.POST("/validate", rl("qr_validate"), qrHandler.Validate)
		qr.POST("/:id/redeem", rl("qr_redeem"), qrHandler.Redeem)
		qr.GET("/channels/:channel", qrHandler.ChannelPolicy)
	}

	paymentHandler := NewPaymentHandler(deps.PaymentClient)
	callbackAuth := middleware.CallbackAuth(deps.CallbackSecret, deps.SigSvc, deps.NonceStore, deps.CallbackAuth, deps.Logger)
	payments := v1.Group("/payments")
	{
		payments.POST("", rl("payments"), paymentHandler.Initiate)
		payments.GET("/:id", paymentHandler.GetStatus)
		payments.POST("/callbacks", rl("callbacks"), callbackAuth, paymentHandler.Callback)
	}

	participantHandler := NewParticipantHandler(deps.Directory)
	v1.GET("/participants", rl("participants"), participantHandler.List)

	return r
}
