package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nimbus_backend/internal/billing"
	"nimbus_backend/internal/email"
	"nimbus_backend/internal/middleware"
	"nimbus_backend/internal/models"
	"nimbus_backend/internal/services"
	"nimbus_backend/internal/validator"
)

const testWebhookSecret = "whsec_test_secret"

type webhookTestServer struct {
	router *gin.Engine
	db     *gorm.DB
}

func newWebhookTestServer(t *testing.T) *webhookTestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.Migrator().DropTable(
		&models.WebhookEvent{},
		&models.UserUsageLimit{},
		&models.PaymentRecord{},
		&models.UserMembership{},
		&models.MembershipPlan{},
		&models.User{},
	))
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.MembershipPlan{},
		&models.UserMembership{},
		&models.PaymentRecord{},
		&models.UserUsageLimit{},
		&models.WebhookEvent{},
	))

	billingClient, err := billing.NewClient(billing.Config{
		SecretKey:     "sk_test_key",
		WebhookSecret: testWebhookSecret,
	})
	require.NoError(t, err)

	container := services.NewServiceContainer(billingClient, nil, &email.NoopProvider{})
	base := NewBaseHandler(validator.New())
	handler := NewBillingHandler(base, billingClient, container.BillingService)

	router := gin.New()
	router.Use(middleware.DBMiddleware(db))
	noAuth := func(c *gin.Context) { c.Next() }
	handler.RegisterRoutes(router.Group("/api/v1"), noAuth)

	return &webhookTestServer{router: router, db: db}
}

// signPayload produces a Stripe-Signature header the verifier accepts.
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func checkoutCompletedPayload(t *testing.T, eventID, sessionID string, metadata map[string]string) []byte {
	t.Helper()

	object := map[string]interface{}{
		"id":           sessionID,
		"object":       "checkout.session",
		"amount_total": 999,
		"currency":     "usd",
		"metadata":     metadata,
	}
	raw, err := json.Marshal(object)
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": "checkout.session.completed",
		"data": map[string]interface{}{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return payload
}

func (ts *webhookTestServer) postWebhook(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func seedUserAndPlan(t *testing.T, db *gorm.DB) (*models.User, *models.MembershipPlan) {
	t.Helper()
	user := &models.User{
		ExternalID: "auth0|webhook-user",
		Email:      "webhook@example.com",
		Status:     models.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)

	plan := &models.MembershipPlan{
		Name:         "Pro",
		Price:        9.99,
		Currency:     "USD",
		DurationDays: 30,
		Limits:       datatypes.JSON([]byte(`{"api_calls":100}`)),
		IsActive:     true,
	}
	require.NoError(t, db.Create(plan).Error)
	return user, plan
}

func TestWebhook_RejectsInvalidSignature(t *testing.T) {
	ts := newWebhookTestServer(t)

	payload := checkoutCompletedPayload(t, "evt_bad", "cs_bad", map[string]string{})
	rec := ts.postWebhook(t, payload, signPayload(payload, "whsec_wrong_secret"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing is journaled for an unverified delivery.
	var count int64
	require.NoError(t, ts.db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestWebhook_ActivatesMembership(t *testing.T) {
	ts := newWebhookTestServer(t)
	user, plan := seedUserAndPlan(t, ts.db)

	payload := checkoutCompletedPayload(t, "evt_ok", "cs_ok", map[string]string{
		"external_user_id": user.ExternalID,
		"plan_id":          plan.ID,
		"duration_days":    "30",
	})
	rec := ts.postWebhook(t, payload, signPayload(payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)

	var membership models.UserMembership
	require.NoError(t, ts.db.Where("user_id = ?", user.ID).First(&membership).Error)
	assert.Equal(t, models.MembershipStatusActive, membership.Status)
	assert.Equal(t, plan.ID, membership.PlanID)

	var event models.WebhookEvent
	require.NoError(t, ts.db.Where("provider_event_id = ?", "evt_ok").First(&event).Error)
	assert.NotNil(t, event.ProcessedAt)
}

func TestWebhook_DuplicateDeliveryIsIdempotent(t *testing.T) {
	ts := newWebhookTestServer(t)
	user, plan := seedUserAndPlan(t, ts.db)

	payload := checkoutCompletedPayload(t, "evt_dup", "cs_dup", map[string]string{
		"external_user_id": user.ExternalID,
		"plan_id":          plan.ID,
		"duration_days":    "30",
	})

	first := ts.postWebhook(t, payload, signPayload(payload, testWebhookSecret))
	require.Equal(t, http.StatusOK, first.Code)

	var firstMembership models.UserMembership
	require.NoError(t, ts.db.Where("user_id = ?", user.ID).First(&firstMembership).Error)

	second := ts.postWebhook(t, payload, signPayload(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, second.Code)

	var count int64
	require.NoError(t, ts.db.Model(&models.UserMembership{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var reloaded models.UserMembership
	require.NoError(t, ts.db.First(&reloaded, "id = ?", firstMembership.ID).Error)
	assert.WithinDuration(t, firstMembership.EndDate, reloaded.EndDate, time.Second)
}

func TestWebhook_IgnoredEventTypeAcknowledged(t *testing.T) {
	ts := newWebhookTestServer(t)

	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_ignored",
		"type": "invoice.created",
		"data": map[string]interface{}{"object": map[string]interface{}{"id": "in_1"}},
	})
	require.NoError(t, err)

	rec := ts.postWebhook(t, payload, signPayload(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Acknowledged and journaled so the provider stops redelivering.
	var event models.WebhookEvent
	require.NoError(t, ts.db.Where("provider_event_id = ?", "evt_ignored").First(&event).Error)
	assert.NotNil(t, event.ProcessedAt)
}

func TestWebhook_UnknownUserReturnsClientError(t *testing.T) {
	ts := newWebhookTestServer(t)
	_, plan := seedUserAndPlan(t, ts.db)

	payload := checkoutCompletedPayload(t, "evt_missing", "cs_missing", map[string]string{
		"external_user_id": "auth0|ghost",
		"plan_id":          plan.ID,
		"duration_days":    "30",
	})
	rec := ts.postWebhook(t, payload, signPayload(payload, testWebhookSecret))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The failure is recorded on the journal row for later inspection.
	var event models.WebhookEvent
	require.NoError(t, ts.db.Where("provider_event_id = ?", "evt_missing").First(&event).Error)
	assert.Nil(t, event.ProcessedAt)
	assert.NotEmpty(t, event.ProcessingError)
}

func expiredSessionPayload(t *testing.T, eventID, sessionID string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": "checkout.session.expired",
		"data": map[string]interface{}{"object": map[string]interface{}{
			"id":     sessionID,
			"object": "checkout.session",
		}},
	})
	require.NoError(t, err)
	return payload
}

func TestWebhook_ExpiredSessionMarksPaymentFailed(t *testing.T) {
	ts := newWebhookTestServer(t)
	user, plan := seedUserAndPlan(t, ts.db)

	payment := &models.PaymentRecord{
		UserID:            user.ID,
		PlanID:            plan.ID,
		ProviderSessionID: "cs_abandoned",
		Amount:            plan.Price,
		Currency:          plan.Currency,
		Status:            models.PaymentStatusPending,
	}
	require.NoError(t, ts.db.Create(payment).Error)

	payload := expiredSessionPayload(t, "evt_expired", "cs_abandoned")
	rec := ts.postWebhook(t, payload, signPayload(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, rec.Code)

	var reloaded models.PaymentRecord
	require.NoError(t, ts.db.First(&reloaded, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, reloaded.Status)
	assert.Equal(t, "evt_expired", reloaded.ProviderEventID)
	assert.Nil(t, reloaded.PaidAt)

	var event models.WebhookEvent
	require.NoError(t, ts.db.Where("provider_event_id = ?", "evt_expired").First(&event).Error)
	assert.NotNil(t, event.ProcessedAt)
}

func TestWebhook_ExpiredSessionLeavesPaidPaymentAlone(t *testing.T) {
	ts := newWebhookTestServer(t)
	user, plan := seedUserAndPlan(t, ts.db)

	paidAt := time.Now().UTC()
	payment := &models.PaymentRecord{
		UserID:            user.ID,
		PlanID:            plan.ID,
		ProviderSessionID: "cs_settled",
		Amount:            plan.Price,
		Currency:          plan.Currency,
		Status:            models.PaymentStatusPaid,
		PaidAt:            &paidAt,
	}
	require.NoError(t, ts.db.Create(payment).Error)

	// Stripe can emit an expiry for a session that already completed; the
	// settled record must not be rewritten.
	payload := expiredSessionPayload(t, "evt_late_expire", "cs_settled")
	rec := ts.postWebhook(t, payload, signPayload(payload, testWebhookSecret))
	assert.Equal(t, http.StatusOK, rec.Code)

	var reloaded models.PaymentRecord
	require.NoError(t, ts.db.First(&reloaded, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusPaid, reloaded.Status)
}
