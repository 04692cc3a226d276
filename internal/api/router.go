package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/internal/api/handlers"
	"github.com/troikatech/voice-ivr/pkg/auth"
	"github.com/troikatech/voice-ivr/pkg/env"
	"github.com/troikatech/voice-ivr/pkg/middleware"
	"github.com/troikatech/voice-ivr/pkg/otel"
	"github.com/troikatech/voice-ivr/pkg/twilio"
)

const maxBodyBytes = 1 << 20

// Options wires the router. RedisClient may be nil, which disables rate
// limiting and idempotency.
type Options struct {
	Config      *env.Config
	Handler     *handlers.Handler
	Tokens      *auth.TokenIssuer
	RedisClient *redis.Client
	Logger      *zap.Logger
}

func NewRouter(opts Options) *gin.Engine {
	cfg := opts.Config
	h := opts.Handler
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(maxBodyBytes))
	if cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}
	router.Use(middleware.RequestLogger(opts.Logger))

	corsConfig := cors.DefaultConfig()
	if origins := cfg.AllowedOrigins(); len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", h.Metrics())

	authGroup := router.Group("/auth")
	if opts.RedisClient != nil {
		authGroup.Use(middleware.NewAuthRateLimiter(opts.RedisClient, 5, 15*time.Minute, 30*time.Minute).Middleware())
	}
	authGroup.POST("/login", h.Login)

	// Provider webhooks
	hooks := router.Group("")
	if cfg.TwilioValidateSignature {
		hooks.Use(middleware.TwilioSignature(twilio.NewValidator(cfg.TwilioAuthToken), cfg.PublicBaseURL, opts.Logger))
	}
	{
		hooks.GET("/voice", h.Voice)
		hooks.POST("/voice", h.Voice)
		hooks.POST("/set-language", h.SetLanguage)
		hooks.GET("/listen", h.Listen)
		hooks.POST("/listen", h.Listen)
		hooks.GET("/handle-input", h.HandleInput)
		hooks.POST("/handle-input", h.HandleInput)
		hooks.POST("/call-status", h.CallStatus)
	}

	// Admin surface
	admin := router.Group("")
	if cfg.AdminAuthEnabled {
		admin.Use(middleware.AuthMiddleware(opts.Tokens))
	}
	if opts.RedisClient != nil {
		admin.Use(middleware.NewRateLimiter(opts.RedisClient, cfg.APIRateLimitRPM, opts.Logger).Middleware())
	}
	{
		admin.GET("/download-logs", h.DownloadLogs)

		makeCall := []gin.HandlerFunc{h.MakeCall}
		if opts.RedisClient != nil {
			makeCall = append([]gin.HandlerFunc{middleware.IdempotencyMiddleware(opts.RedisClient)}, makeCall...)
		}
		admin.POST("/make-call", makeCall...)

		api := admin.Group("/api")
		api.GET("/logs", h.GetLogs)
		api.POST("/submit-query", h.SubmitQuery)
		api.GET("/queries", h.ListQueries)
		api.GET("/suspicious-activity", h.ListSuspiciousActivity)
		api.GET("/stats", h.GetStats)
		api.GET("/live", h.LiveFeed)

		calls := api.Group("/calls/:call_sid", middleware.ValidateCallIDParam("call_sid"))
		calls.GET("", h.GetCall)
		calls.POST("/summary", h.SummarizeCall)
	}

	return router
}
