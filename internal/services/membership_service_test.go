package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/models"
	"nimbus_backend/internal/repositories"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err, "opening the in-memory test database must not fail")

	// Shared-cache in-memory databases survive as long as one connection is
	// open; a fresh schema per test keeps them independent.
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
	return db
}

func newTestMembershipService() MembershipService {
	return NewMembershipService(
		repositories.NewMembershipRepository(),
		repositories.NewUserRepository(),
		nil,
	)
}

func createTestUser(t *testing.T, db *gorm.DB, externalID, email string) *models.User {
	t.Helper()
	user := &models.User{
		ExternalID: externalID,
		Email:      email,
		Status:     models.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestPlan(t *testing.T, db *gorm.DB, name string, durationDays int, limits map[string]int) *models.MembershipPlan {
	t.Helper()
	limitsJSON, err := json.Marshal(limits)
	require.NoError(t, err)

	plan := &models.MembershipPlan{
		Name:         name,
		Price:        9.99,
		Currency:     "USD",
		DurationDays: durationDays,
		Limits:       datatypes.JSON(limitsJSON),
		IsActive:     true,
	}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

func paymentEvent(eventID, sessionID string, user *models.User, plan *models.MembershipPlan) *dto.PaymentEvent {
	return &dto.PaymentEvent{
		EventID:        eventID,
		SessionID:      sessionID,
		ExternalUserID: user.ExternalID,
		PlanID:         plan.ID,
		Amount:         plan.Price,
		Currency:       plan.Currency,
		DurationDays:   plan.DurationDays,
	}
}

func TestActivateFromPayment_FirstActivation(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|alice", "alice@example.com")
	plan := createTestPlan(t, db, "Pro", 30, map[string]int{"api_calls": 1000})

	before := time.Now().UTC()
	membership, err := svc.ActivateFromPayment(db, paymentEvent("evt_1", "cs_1", user, plan))
	require.NoError(t, err)
	require.NotNil(t, membership)

	assert.Equal(t, models.MembershipStatusActive, membership.Status)
	assert.Equal(t, plan.ID, membership.PlanID)
	assert.WithinDuration(t, before.AddDate(0, 0, 30), membership.EndDate, 5*time.Second)

	// The payment is recorded as settled.
	var payment models.PaymentRecord
	require.NoError(t, db.Where("provider_session_id = ?", "cs_1").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)
	assert.NotNil(t, payment.PaidAt)

	// Usage counters come from the plan limits and start at zero.
	var usage []models.UserUsageLimit
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&usage).Error)
	require.Len(t, usage, 1)
	assert.Equal(t, "api_calls", usage[0].Feature)
	assert.Equal(t, 0, usage[0].Used)
	assert.Equal(t, 1000, usage[0].Limit)
}

func TestActivateFromPayment_RenewalExtendsFromCurrentEnd(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|bob", "bob@example.com")
	plan := createTestPlan(t, db, "Pro", 30, nil)

	first, err := svc.ActivateFromPayment(db, paymentEvent("evt_1", "cs_1", user, plan))
	require.NoError(t, err)

	renewed, err := svc.ActivateFromPayment(db, paymentEvent("evt_2", "cs_2", user, plan))
	require.NoError(t, err)

	// Renewing mid-period stacks on top of the remaining time, so the new
	// end is the old end plus one duration.
	assert.Equal(t, first.ID, renewed.ID, "renewal must extend the existing membership row")
	assert.WithinDuration(t, first.EndDate.AddDate(0, 0, 30), renewed.EndDate, time.Second)
	assert.True(t, renewed.EndDate.After(first.EndDate), "entitlement must never shrink")
}

func TestActivateFromPayment_DuplicateEventIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|carol", "carol@example.com")
	plan := createTestPlan(t, db, "Pro", 30, nil)

	first, err := svc.ActivateFromPayment(db, paymentEvent("evt_1", "cs_1", user, plan))
	require.NoError(t, err)

	// Same session redelivered: no second extension, no new rows.
	again, err := svc.ActivateFromPayment(db, paymentEvent("evt_1", "cs_1", user, plan))
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.WithinDuration(t, first.EndDate, again.EndDate, time.Second)

	var count int64
	require.NoError(t, db.Model(&models.UserMembership{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	require.NoError(t, db.Model(&models.PaymentRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestActivateFromPayment_PlanSwitchStartsFreshPeriod(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|dave", "dave@example.com")
	basic := createTestPlan(t, db, "Basic", 30, map[string]int{"api_calls": 100})
	pro := createTestPlan(t, db, "Pro", 90, map[string]int{"api_calls": 1000})

	_, err := svc.ActivateFromPayment(db, paymentEvent("evt_1", "cs_1", user, basic))
	require.NoError(t, err)

	before := time.Now().UTC()
	switched, err := svc.ActivateFromPayment(db, paymentEvent("evt_2", "cs_2", user, pro))
	require.NoError(t, err)

	// The new plan starts a fresh period from now, no proration of the old
	// plan's remainder.
	assert.Equal(t, pro.ID, switched.PlanID)
	assert.WithinDuration(t, before.AddDate(0, 0, 90), switched.EndDate, 5*time.Second)

	// The old membership row is superseded.
	var old models.UserMembership
	require.NoError(t, db.Where("plan_id = ?", basic.ID).First(&old).Error)
	assert.Equal(t, models.MembershipStatusCancelled, old.Status)

	// Usage counters now reflect the new plan.
	var usage models.UserUsageLimit
	require.NoError(t, db.Where("user_id = ? AND feature = ?", user.ID, "api_calls").First(&usage).Error)
	assert.Equal(t, 1000, usage.Limit)
	assert.Equal(t, 0, usage.Used)
}

func TestActivateFromPayment_UnknownUserRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	plan := createTestPlan(t, db, "Pro", 30, nil)
	evt := &dto.PaymentEvent{
		EventID:        "evt_1",
		SessionID:      "cs_1",
		ExternalUserID: "auth0|nobody",
		PlanID:         plan.ID,
		DurationDays:   30,
	}

	_, err := svc.ActivateFromPayment(db, evt)
	assert.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.UserMembership{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "a rejected event must not create memberships")
}

func TestActivateFromPayment_UnknownPlanRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|erin", "erin@example.com")
	evt := &dto.PaymentEvent{
		EventID:        "evt_1",
		SessionID:      "cs_1",
		ExternalUserID: user.ExternalID,
		PlanID:         "00000000-0000-0000-0000-000000000000",
		DurationDays:   30,
	}

	_, err := svc.ActivateFromPayment(db, evt)
	assert.Error(t, err)
}

func TestGetStatus_NoMembership(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|frank", "frank@example.com")

	status, err := svc.GetStatus(db, user.ID)
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Equal(t, 0, status.RemainingDays)
}

func TestGetStatus_LazyExpiry(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|grace", "grace@example.com")
	plan := createTestPlan(t, db, "Pro", 30, nil)

	// A membership whose end date has passed but whose stored status is
	// still active, as if the sweep worker has not run yet.
	stale := &models.UserMembership{
		UserID:    user.ID,
		PlanID:    plan.ID,
		Status:    models.MembershipStatusActive,
		StartDate: time.Now().UTC().AddDate(0, 0, -40),
		EndDate:   time.Now().UTC().AddDate(0, 0, -10),
	}
	require.NoError(t, db.Create(stale).Error)

	status, err := svc.GetStatus(db, user.ID)
	require.NoError(t, err)
	assert.False(t, status.Active, "a lapsed membership must report inactive before the sweep runs")
	assert.Equal(t, 0, status.RemainingDays)
}

func TestGetStatus_ActiveMembership(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|heidi", "heidi@example.com")
	plan := createTestPlan(t, db, "Pro", 30, map[string]int{"api_calls": 500})

	_, err := svc.ActivateFromPayment(db, paymentEvent("evt_1", "cs_1", user, plan))
	require.NoError(t, err)

	status, err := svc.GetStatus(db, user.ID)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, "Pro", status.PlanName)
	assert.Equal(t, 30, status.RemainingDays, "a fresh 30-day membership reports its full duration")
	require.Len(t, status.Usage, 1)
	assert.Equal(t, 500, status.Usage[0].Remaining)
}

func TestGetStatus_RemainingDaysMidPeriod(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|mid", "mid@example.com")
	plan := createTestPlan(t, db, "Pro", 30, nil)

	membership := &models.UserMembership{
		UserID:    user.ID,
		PlanID:    plan.ID,
		Status:    models.MembershipStatusActive,
		StartDate: time.Now().UTC().AddDate(0, 0, -10),
		EndDate:   time.Now().UTC().AddDate(0, 0, 20).Add(-time.Minute),
	}
	require.NoError(t, db.Create(membership).Error)

	status, err := svc.GetStatus(db, user.ID)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, 20, status.RemainingDays, "a started final day still counts as a day")
}

func TestConsumeFeature_EnforcesLimit(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|ivan", "ivan@example.com")
	plan := createTestPlan(t, db, "Starter", 30, map[string]int{"exports": 2})

	_, err := svc.ActivateFromPayment(db, paymentEvent("evt_1", "cs_1", user, plan))
	require.NoError(t, err)

	first, err := svc.ConsumeFeature(db, user.ID, "exports")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Used)

	second, err := svc.ConsumeFeature(db, user.ID, "exports")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Remaining)

	_, err = svc.ConsumeFeature(db, user.ID, "exports")
	assert.Error(t, err, "the third consume must hit the cap")
}

func TestConsumeFeature_RequiresActiveMembership(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|judy", "judy@example.com")

	_, err := svc.ConsumeFeature(db, user.ID, "exports")
	assert.Error(t, err)
}

func TestProcessExpired_FlipsLapsedMemberships(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestMembershipService()

	user := createTestUser(t, db, "auth0|ken", "ken@example.com")
	other := createTestUser(t, db, "auth0|lisa", "lisa@example.com")
	plan := createTestPlan(t, db, "Pro", 30, nil)

	lapsed := &models.UserMembership{
		UserID:    user.ID,
		PlanID:    plan.ID,
		Status:    models.MembershipStatusActive,
		StartDate: time.Now().UTC().AddDate(0, 0, -40),
		EndDate:   time.Now().UTC().AddDate(0, 0, -10),
	}
	require.NoError(t, db.Create(lapsed).Error)

	_, err := svc.ActivateFromPayment(db, paymentEvent("evt_1", "cs_1", other, plan))
	require.NoError(t, err)

	count, err := svc.ProcessExpired(db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	var reloaded models.UserMembership
	require.NoError(t, db.First(&reloaded, "id = ?", lapsed.ID).Error)
	assert.Equal(t, models.MembershipStatusExpired, reloaded.Status)

	// The other user's live membership is untouched.
	status, err := svc.GetStatus(db, other.ID)
	require.NoError(t, err)
	assert.True(t, status.Active)
}
