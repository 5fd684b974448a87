package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"exportestimator/app/handler"
	"exportestimator/app/middleware"
)

// Router wires the HTTP handlers
type Router struct {
	statisticsHandler *handler.StatisticsHandler
	estimateHandler   *handler.EstimateHandler
}

// NewRouter creates a new Router
func NewRouter(statisticsHandler *handler.StatisticsHandler, estimateHandler *handler.EstimateHandler) *Router {
	return &Router{
		statisticsHandler: statisticsHandler,
		estimateHandler:   estimateHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Logger())
	engine.Use(middleware.Recovery())

	api := engine.Group("/api/v1")
	{
		statistics := api.Group("/statistics")
		{
			statistics.GET("", r.statisticsHandler.ListRefreshStatuses)
			statistics.GET("/:grouping", r.statisticsHandler.GetStatistics)
			statistics.POST("/:grouping/refresh", r.statisticsHandler.Refresh)
			statistics.GET("/:grouping/refresh", r.statisticsHandler.RefreshStatus)
		}

		api.POST("/estimates", r.estimateHandler.Estimate)
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
