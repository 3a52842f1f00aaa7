package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"nimbus_backend/internal/billing"
	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/logger"
	"nimbus_backend/internal/services"
	"nimbus_backend/pkg/apperrors"
)

// Webhook payloads above this size are rejected before signature checking.
const maxWebhookBody = 64 * 1024

type BillingHandler struct {
	*BaseHandler
	billingClient  *billing.Client
	billingService services.BillingService
}

func NewBillingHandler(base *BaseHandler, billingClient *billing.Client, billingService services.BillingService) *BillingHandler {
	return &BillingHandler{
		BaseHandler:    base,
		billingClient:  billingClient,
		billingService: billingService,
	}
}

func (h *BillingHandler) RegisterRoutes(r *gin.RouterGroup, auth gin.HandlerFunc) {
	bill := r.Group("/billing")
	{
		// External callback, authenticated by signature instead of a token.
		bill.POST("/webhook", h.HandleWebhook)

		bill.POST("/checkout", auth, h.CreateCheckout)
		bill.GET("/payments", auth, h.GetPayments)
	}
}

func (h *BillingHandler) CreateCheckout(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	resp, err := h.billingService.CreateCheckout(h.GetDB(c), userID, req.PlanID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *BillingHandler) GetPayments(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	payments, err := h.billingService.GetPayments(h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// HandleWebhook verifies the provider signature and hands the event to the
// billing service. A 4xx tells the provider the delivery is unusable; a 5xx
// asks it to retry later.
func (h *BillingHandler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		apperrors.HandleError(c, apperrors.NewBadRequestError("Failed to read webhook body"))
		return
	}

	event, err := h.billingClient.ConstructEvent(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		logger.CtxWarn(c.Request.Context(), "rejected webhook with invalid signature", "error", err)
		apperrors.HandleError(c, apperrors.New(apperrors.CodeInvalidSignature, "billing",
			"Webhook signature verification failed", http.StatusBadRequest))
		return
	}

	if err := h.billingService.HandleWebhookEvent(h.GetDB(c), event); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
