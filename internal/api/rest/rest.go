package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/Awuah-B/report-bot/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Read surface (public)
		v1.GET("/stages", handler.ListStages)
		v1.GET("/stages/:stage/records", handler.ListStageRecords)
		v1.GET("/records/search", handler.SearchRecords)
		v1.GET("/events/recent", handler.ListRecentEvents)
		v1.GET("/stats", handler.GetStats)

		// Manual stage check (requires authentication)
		v1.POST("/stages/:stage/check", middleware.Auth(authCfg), handler.TriggerCheck)

		// Subscription management (requires authentication)
		v1.GET("/subscriptions", middleware.Auth(authCfg), handler.ListSubscriptions)
		v1.POST("/subscriptions", middleware.Auth(authCfg), handler.Subscribe)
		v1.DELETE("/subscriptions/:chat_id", middleware.Auth(authCfg), handler.Unsubscribe)
	}
}
