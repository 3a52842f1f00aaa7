package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/middleware"
	"nimbus_backend/internal/services"
)

type PlanHandler struct {
	*BaseHandler
	membershipService services.MembershipService
}

func NewPlanHandler(base *BaseHandler, membershipService services.MembershipService) *PlanHandler {
	return &PlanHandler{
		BaseHandler:       base,
		membershipService: membershipService,
	}
}

func (h *PlanHandler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	plans := r.Group("/plans")
	{
		plans.GET("", h.GetPlans)
		plans.GET("/:planId", h.GetPlan)
	}

	adminPlans := r.Group("/admin/plans")
	adminPlans.Use(auth, middleware.RequireAdmin())
	{
		adminPlans.POST("", h.CreatePlan)
		adminPlans.PUT("/:planId", h.UpdatePlan)
		adminPlans.DELETE("/:planId", h.DeletePlan)
	}
}

func (h *PlanHandler) GetPlans(c *gin.Context) {
	plans, err := h.membershipService.GetPlans(h.GetDB(c))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (h *PlanHandler) GetPlan(c *gin.Context) {
	plan, err := h.membershipService.GetPlan(h.GetDB(c), c.Param("planId"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var req dto.CreatePlanRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	plan, err := h.membershipService.CreatePlan(h.GetDB(c), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	var req dto.UpdatePlanRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	plan, err := h.membershipService.UpdatePlan(h.GetDB(c), c.Param("planId"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *PlanHandler) DeletePlan(c *gin.Context) {
	if err := h.membershipService.DeletePlan(h.GetDB(c), c.Param("planId")); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Plan deleted"})
}
