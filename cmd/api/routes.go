package main

import (
	"freeswitch-bridge/internal/httpapi"
	"freeswitch-bridge/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.POST("/dial", append(httpapi.RequireWorkspaceAndAnyRole(rbac.DialRoles...), h.Dial)...)

		campaigns := v1.Group("/campaigns")
		campaigns.Use(httpapi.RequireWorkspaceAndAnyRole(rbac.HistoryRoles...)...)
		{
			campaigns.GET("/:campaign_id/attempts", h.Attempts)
			campaigns.GET("/:campaign_id/summary", h.Summary)
		}
	}
}
