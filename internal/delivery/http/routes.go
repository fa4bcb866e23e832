package http

import (
	"github.com/gin-gonic/gin"
	"github.com/lostfound/backend/config"
	"github.com/lostfound/backend/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, log logger.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	router := gin.New()

	router.Use(RecoveryMiddleware(log))
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		items := v1.Group("/items")
		{
			items.POST("", handler.CreateItem)
			items.GET("", handler.ListItems)
			items.GET("/:id", handler.GetItem)
			items.POST("/:id/process", handler.ProcessItem)
			items.GET("/:id/matches", handler.GetMatches)
		}

		matches := v1.Group("/matches")
		{
			matches.POST("/:id/resolve", handler.ResolveMatch)
		}
	}

	return router
}
