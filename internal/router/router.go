package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnchalDevBytes/challan-maker/internal/handler"
	"github.com/AnchalDevBytes/challan-maker/internal/middleware"
	"github.com/AnchalDevBytes/challan-maker/internal/service"
	"github.com/AnchalDevBytes/challan-maker/pkg/config"
	"github.com/AnchalDevBytes/challan-maker/pkg/logger"
	"github.com/AnchalDevBytes/challan-maker/pkg/middleware/cors"
	"github.com/AnchalDevBytes/challan-maker/pkg/middleware/requestid"
)

// Dependencies bundles everything the router needs.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Metrics  *service.MetricsService
	Tokens   *service.TokenService
	Auth     *handler.AuthHandler
	Invoices *handler.InvoiceHandler
}

// New assembles the gin engine with middleware, health endpoints and the
// versioned API routes.
func New(deps Dependencies) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestid.Middleware())
	engine.Use(logger.GinMiddleware(deps.Logger))
	engine.Use(cors.New(deps.Config.CORS.AllowedOrigins))
	engine.Use(middleware.Metrics(deps.Metrics))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/ready", func(c *gin.Context) {
		if err := deps.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		if err := deps.Redis.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "cache unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	api := engine.Group(deps.Config.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", deps.Auth.Signup)
		auth.POST("/verify-otp", deps.Auth.VerifyOTP)
		auth.POST("/login", deps.Auth.Login)
		auth.POST("/refresh", deps.Auth.Refresh)
		auth.POST("/logout", deps.Auth.Logout)
		auth.POST("/forgot-password", deps.Auth.ForgotPassword)
		auth.POST("/reset-password", deps.Auth.ResetPassword)
	}

	protected := api.Group("")
	protected.Use(middleware.RequireAuth(deps.Tokens))
	{
		protected.GET("/auth/me", deps.Auth.Me)
		protected.POST("/invoices", deps.Invoices.Create)
		protected.GET("/invoices", deps.Invoices.List)
	}

	return engine
}
