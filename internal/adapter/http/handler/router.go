package handler

import (
	"shipcrowd-wallet/internal/adapter/http/middleware"
	redisStore "shipcrowd-wallet/internal/adapter/storage/redis"
	"shipcrowd-wallet/internal/core/ports"
	"shipcrowd-wallet/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletService
	DisputeSvc     ports.DisputeService
	RechargeSvc    ports.RechargeService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(metrics.Middleware())
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Prometheus scrape endpoint
	r.GET("/metrics", metrics.Handler())

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
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

	// All API routes are JWT-scoped to a company.
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1", jwtAuth)

	walletHandler := NewWalletHandler(deps.WalletSvc)
	rechargeHandler := NewRechargeHandler(deps.RechargeSvc)

	wallet := v1.Group("/wallet")
	{
		wallet.GET("/balance", rl("wallet_read"), walletHandler.GetBalance)
		wallet.POST("/credit", rl("wallet_mutate"), walletHandler.Credit)
		wallet.POST("/debit", rl("wallet_mutate"), walletHandler.Debit)
		wallet.GET("/transactions", rl("wallet_read"), walletHandler.GetHistory)
		wallet.POST("/transactions/:id/refund", rl("wallet_mutate"), walletHandler.Refund)
		wallet.GET("/stats", rl("wallet_read"), walletHandler.GetStats)
		wallet.PUT("/threshold", rl("wallet_mutate"), walletHandler.UpdateThreshold)
		wallet.GET("/auto-recharge", rl("wallet_read"), walletHandler.GetAutoRecharge)
		wallet.PUT("/auto-recharge", rl("wallet_mutate"), walletHandler.UpdateAutoRecharge)
		wallet.GET("/forecast", rl("wallet_read"), walletHandler.GetForecast)
		wallet.GET("/outflows", rl("wallet_read"), walletHandler.GetProjectedOutflows)

		wallet.POST("/recharges", rl("recharges"), rechargeHandler.Record)
		wallet.POST("/recharges/auto", rl("recharges"), rechargeHandler.TriggerAuto)
	}

	disputeHandler := NewDisputeHandler(deps.DisputeSvc)
	disputes := v1.Group("/disputes")
	{
		disputes.POST("", rl("disputes"), disputeHandler.Create)
		disputes.GET("/:id", rl("disputes"), disputeHandler.Get)
		disputes.POST("/:id/resolve", rl("disputes"), disputeHandler.Resolve)
	}

	return r
}
