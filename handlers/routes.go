package handlers

import (
	"github.com/gin-gonic/gin"

	"storepulse/api/middleware"
)

// RegisterRoutes wires the tracking and stats endpoints onto r.
func RegisterRoutes(r *gin.Engine, h *AnalyticsHandlers, dashboardOrigin, defaultStore string) {
	r.GET("/health", h.Health)

	beacon := r.Group("/")
	beacon.Use(middleware.BeaconCORS(), middleware.TenantResolver(defaultStore))
	{
		beacon.GET("/tracker.js", h.TrackerScript)
		beacon.POST("/api/track", h.TrackEvent)
		beacon.OPTIONS("/api/track", func(c *gin.Context) {})
	}

	stats := r.Group("/api/stats")
	stats.Use(middleware.CORSMiddleware(dashboardOrigin))
	{
		stats.GET("", h.ListStores)
		stats.OPTIONS("/*path", func(c *gin.Context) {})
		tenant := stats.Group("/:storeId")
		tenant.Use(middleware.TenantResolver(defaultStore))
		{
			tenant.GET("", h.GetMetrics)
			tenant.GET("/recent", h.GetRecentEvents)
			tenant.GET("/timeseries", h.GetTimeSeries)
			tenant.GET("/products", h.GetProducts)
			tenant.DELETE("", h.ResetStore)
		}
	}
}
