package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nimbus_backend/internal/handlers"
)

// RegisterRoutes registers all HTTP routes under /api/v1.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	auth gin.HandlerFunc,
) {
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := ginRouter.Group("/api/v1")
	{
		appHandlers.UserHandler.RegisterRoutes(api, auth)
		appHandlers.PlanHandler.RegisterRoutes(api, auth)
		appHandlers.MembershipHandler.RegisterRoutes(api, auth)
		appHandlers.BillingHandler.RegisterRoutes(api, auth)
		appHandlers.AdminHandler.RegisterRoutes(api, auth)
	}
}
