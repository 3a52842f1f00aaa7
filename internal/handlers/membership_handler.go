package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nimbus_backend/internal/middleware"
	"nimbus_backend/internal/models"
	"nimbus_backend/internal/services"
	"nimbus_backend/pkg/apperrors"
)

type MembershipHandler struct {
	*BaseHandler
	membershipService services.MembershipService
}

func NewMembershipHandler(base *BaseHandler, membershipService services.MembershipService) *MembershipHandler {
	return &MembershipHandler{
		BaseHandler:       base,
		membershipService: membershipService,
	}
}

func (h *MembershipHandler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	memberships := r.Group("/memberships")
	memberships.Use(auth)
	{
		memberships.GET("/my", h.GetMyMembership)
	}

	usage := r.Group("/usage")
	usage.Use(auth)
	{
		usage.POST("/:feature", h.ConsumeFeature)
	}

	adminMemberships := r.Group("/admin/memberships")
	adminMemberships.Use(auth, middleware.RequireAdmin())
	{
		adminMemberships.GET("", h.ListMemberships)
		adminMemberships.POST("/process-expired", h.ProcessExpired)
	}
}

// GetMyMembership reports the caller's entitlement with lazy expiry
// evaluation and current usage counters.
func (h *MembershipHandler) GetMyMembership(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	status, err := h.membershipService.GetStatus(h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *MembershipHandler) ConsumeFeature(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	feature := c.Param("feature")
	if feature == "" {
		apperrors.HandleError(c, apperrors.NewBadRequestError("Missing feature name"))
		return
	}

	usage, err := h.membershipService.ConsumeFeature(h.GetDB(c), userID, feature)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (h *MembershipHandler) ListMemberships(c *gin.Context) {
	page, pageSize := ParsePagination(c)

	var status *models.MembershipStatus
	if raw := c.Query("status"); raw != "" {
		s := models.MembershipStatus(raw)
		status = &s
	}

	memberships, total, err := h.membershipService.ListMemberships(h.GetDB(c), status, page, pageSize)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"memberships": memberships,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
	})
}

func (h *MembershipHandler) ProcessExpired(c *gin.Context) {
	count, err := h.membershipService.ProcessExpired(h.GetDB(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": count})
}
