package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/middleware"
	"nimbus_backend/internal/services"
)

type AdminHandler struct {
	*BaseHandler
	userService      services.UserService
	adminSyncService services.AdminSyncService
}

func NewAdminHandler(base *BaseHandler, userService services.UserService, adminSyncService services.AdminSyncService) *AdminHandler {
	return &AdminHandler{
		BaseHandler:      base,
		userService:      userService,
		adminSyncService: adminSyncService,
	}
}

func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	admin := r.Group("/admin")
	admin.Use(auth, middleware.RequireAdmin())
	{
		admin.GET("/users", h.ListUsers)
		admin.PATCH("/users/:userId", h.UpdateUser)
		admin.DELETE("/users/:userId", h.DeleteUser)
		admin.POST("/identity/sync", h.SyncAdminPermissions)
	}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, pageSize := ParsePagination(c)

	resp, err := h.userService.ListUsers(h.GetDB(c), page, pageSize)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req dto.UpdateUserRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateUser(h.GetDB(c), c.Param("userId"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.userService.DeleteUser(h.GetDB(c), c.Param("userId")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// SyncAdminPermissions pushes local admin flags to the identity provider.
// The optional user_id query narrows the batch to a single account. The
// report always covers every target, failed pushes included.
func (h *AdminHandler) SyncAdminPermissions(c *gin.Context) {
	report, err := h.adminSyncService.SyncAdminPermissions(
		c.Request.Context(),
		h.GetDB(c),
		c.Query("user_id"),
	)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
