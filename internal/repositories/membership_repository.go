package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nimbus_backend/internal/models"
)

var (
	ErrPlanNotFound       = errors.New("membership plan not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrPaymentNotFound    = errors.New("payment record not found")
	ErrUsageLimitReached  = errors.New("usage limit reached")
)

type MembershipRepository interface {
	// Plan operations
	CreatePlan(db *gorm.DB, plan *models.MembershipPlan) error
	FindPlanByID(db *gorm.DB, id string) (*models.MembershipPlan, error)
	FindActivePlans(db *gorm.DB) ([]models.MembershipPlan, error)
	UpdatePlan(db *gorm.DB, plan *models.MembershipPlan) error
	DeletePlan(db *gorm.DB, id string) error

	// Membership operations
	FindCurrentByUserID(db *gorm.DB, userID string) (*models.UserMembership, error)
	FindCurrentByUserIDForUpdate(db *gorm.DB, userID string) (*models.UserMembership, error)
	CreateMembership(db *gorm.DB, membership *models.UserMembership) error
	SaveMembership(db *gorm.DB, membership *models.UserMembership) error
	CancelActiveByUserID(db *gorm.DB, userID string) error
	FindAll(db *gorm.DB, status *models.MembershipStatus, limit, offset int) ([]models.UserMembership, int64, error)
	MarkExpired(db *gorm.DB, now time.Time) (int64, error)

	// Payment operations
	CreatePayment(db *gorm.DB, payment *models.PaymentRecord) error
	FindPaymentBySessionID(db *gorm.DB, sessionID string) (*models.PaymentRecord, error)
	FindPaymentsByUser(db *gorm.DB, userID string) ([]models.PaymentRecord, error)
	MarkPaymentPaid(db *gorm.DB, paymentID, eventID string, paidAt time.Time) error
	MarkPaymentFailedBySessionID(db *gorm.DB, sessionID, eventID string) (int64, error)

	// Usage limit operations
	FindUsageByUser(db *gorm.DB, userID string) ([]models.UserUsageLimit, error)
	ResetUsageToPlan(db *gorm.DB, userID string, limits map[string]int) error
	ConsumeUsage(db *gorm.DB, userID, feature string) (*models.UserUsageLimit, error)

	// Webhook event operations
	FindWebhookEvent(db *gorm.DB, provider, eventID string) (*models.WebhookEvent, error)
	CreateWebhookEvent(db *gorm.DB, event *models.WebhookEvent) error
	SaveWebhookEvent(db *gorm.DB, event *models.WebhookEvent) error
}

type MembershipRepositoryImpl struct{}

func NewMembershipRepository() MembershipRepository {
	return &MembershipRepositoryImpl{}
}

// --- Plan operations ---

func (r *MembershipRepositoryImpl) CreatePlan(db *gorm.DB, plan *models.MembershipPlan) error {
	return db.Create(plan).Error
}

func (r *MembershipRepositoryImpl) FindPlanByID(db *gorm.DB, id string) (*models.MembershipPlan, error) {
	var plan models.MembershipPlan
	if err := db.First(&plan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *MembershipRepositoryImpl) FindActivePlans(db *gorm.DB) ([]models.MembershipPlan, error) {
	var plans []models.MembershipPlan
	err := db.Where("is_active = ?", true).Order("price ASC").Find(&plans).Error
	return plans, err
}

func (r *MembershipRepositoryImpl) UpdatePlan(db *gorm.DB, plan *models.MembershipPlan) error {
	return db.Save(plan).Error
}

func (r *MembershipRepositoryImpl) DeletePlan(db *gorm.DB, id string) error {
	result := db.Where("id = ?", id).Delete(&models.MembershipPlan{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// --- Membership operations ---

// FindCurrentByUserID returns the newest non-cancelled membership row, which
// may already be past its end date; callers decide what "active" means.
func (r *MembershipRepositoryImpl) FindCurrentByUserID(db *gorm.DB, userID string) (*models.UserMembership, error) {
	var membership models.UserMembership
	err := db.Preload("Plan").
		Where("user_id = ? AND status <> ?", userID, models.MembershipStatusCancelled).
		Order("created_at DESC").
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &membership, nil
}

// FindCurrentByUserIDForUpdate takes a row lock on Postgres so concurrent
// renewal webhooks for the same user serialize instead of racing the
// read-modify-write of the end date. sqlite (tests) serializes writers on
// its own and rejects FOR UPDATE, hence the dialect check.
func (r *MembershipRepositoryImpl) FindCurrentByUserIDForUpdate(db *gorm.DB, userID string) (*models.UserMembership, error) {
	query := db.Preload("Plan").
		Where("user_id = ? AND status <> ?", userID, models.MembershipStatusCancelled).
		Order("created_at DESC")
	if db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var membership models.UserMembership
	if err := query.First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &membership, nil
}

// Association writes are omitted: Plan rows are reference data managed
// through the plan operations, never via membership saves.
func (r *MembershipRepositoryImpl) CreateMembership(db *gorm.DB, membership *models.UserMembership) error {
	return db.Omit(clause.Associations).Create(membership).Error
}

func (r *MembershipRepositoryImpl) SaveMembership(db *gorm.DB, membership *models.UserMembership) error {
	return db.Omit(clause.Associations).Save(membership).Error
}

// CancelActiveByUserID supersedes the user's active rows, keeping them as
// history when a plan switch starts a fresh period.
func (r *MembershipRepositoryImpl) CancelActiveByUserID(db *gorm.DB, userID string) error {
	return db.Model(&models.UserMembership{}).
		Where("user_id = ? AND status = ?", userID, models.MembershipStatusActive).
		Update("status", models.MembershipStatusCancelled).Error
}

func (r *MembershipRepositoryImpl) FindAll(db *gorm.DB, status *models.MembershipStatus, limit, offset int) ([]models.UserMembership, int64, error) {
	query := db.Model(&models.UserMembership{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var memberships []models.UserMembership
	err := query.Preload("Plan").Order("created_at DESC").Limit(limit).Offset(offset).Find(&memberships).Error
	return memberships, total, err
}

// MarkExpired flips active-but-past rows to expired in a single UPDATE.
func (r *MembershipRepositoryImpl) MarkExpired(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Model(&models.UserMembership{}).
		Where("status = ? AND end_date < ?", models.MembershipStatusActive, now).
		Update("status", models.MembershipStatusExpired)
	return result.RowsAffected, result.Error
}

// --- Payment operations ---

func (r *MembershipRepositoryImpl) CreatePayment(db *gorm.DB, payment *models.PaymentRecord) error {
	return db.Create(payment).Error
}

func (r *MembershipRepositoryImpl) FindPaymentBySessionID(db *gorm.DB, sessionID string) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	err := db.Where("provider_session_id = ?", sessionID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *MembershipRepositoryImpl) FindPaymentsByUser(db *gorm.DB, userID string) ([]models.PaymentRecord, error) {
	var payments []models.PaymentRecord
	err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&payments).Error
	return payments, err
}

// MarkPaymentPaid settles a pending record. The status filter keeps the
// transition monotonic: a settled payment is never rewritten.
func (r *MembershipRepositoryImpl) MarkPaymentPaid(db *gorm.DB, paymentID, eventID string, paidAt time.Time) error {
	result := db.Model(&models.PaymentRecord{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":            models.PaymentStatusPaid,
			"provider_event_id": eventID,
			"paid_at":           paidAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkPaymentFailedBySessionID closes a still-pending payment as failed.
// Settled payments are never rewritten, and an unknown session is not an
// error: expiry events can arrive for checkouts this system never recorded.
func (r *MembershipRepositoryImpl) MarkPaymentFailedBySessionID(db *gorm.DB, sessionID, eventID string) (int64, error) {
	result := db.Model(&models.PaymentRecord{}).
		Where("provider_session_id = ? AND status = ?", sessionID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":            models.PaymentStatusFailed,
			"provider_event_id": eventID,
		})
	return result.RowsAffected, result.Error
}

// --- Usage limit operations ---

func (r *MembershipRepositoryImpl) FindUsageByUser(db *gorm.DB, userID string) ([]models.UserUsageLimit, error) {
	var usage []models.UserUsageLimit
	err := db.Where("user_id = ?", userID).Order("feature ASC").Find(&usage).Error
	return usage, err
}

// ResetUsageToPlan rewrites the user's counters from the plan's allowances:
// existing rows are zeroed and re-capped, features the new plan does not
// meter are removed.
func (r *MembershipRepositoryImpl) ResetUsageToPlan(db *gorm.DB, userID string, limits map[string]int) error {
	if err := db.Where("user_id = ?", userID).Delete(&models.UserUsageLimit{}).Error; err != nil {
		return err
	}
	for feature, quota := range limits {
		row := models.UserUsageLimit{
			UserID:  userID,
			Feature: feature,
			Used:    0,
			Limit:   quota,
		}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// ConsumeUsage increments one counter inside a transaction, refusing to go
// past the cap. Counters never go negative and never exceed the quota.
// The row lock serializes concurrent consumes for the same counter on
// Postgres, same gating as FindCurrentByUserIDForUpdate.
func (r *MembershipRepositoryImpl) ConsumeUsage(db *gorm.DB, userID, feature string) (*models.UserUsageLimit, error) {
	var row models.UserUsageLimit
	err := db.Transaction(func(tx *gorm.DB) error {
		query := tx.Where("user_id = ? AND feature = ?", userID, feature)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUsageLimitReached
			}
			return err
		}
		if row.Used >= row.Limit {
			return ErrUsageLimitReached
		}
		row.Used++
		return tx.Save(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// --- Webhook event operations ---

func (r *MembershipRepositoryImpl) FindWebhookEvent(db *gorm.DB, provider, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := db.Where("provider = ? AND provider_event_id = ?", provider, eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *MembershipRepositoryImpl) CreateWebhookEvent(db *gorm.DB, event *models.WebhookEvent) error {
	return db.Create(event).Error
}

func (r *MembershipRepositoryImpl) SaveWebhookEvent(db *gorm.DB, event *models.WebhookEvent) error {
	return db.Save(event).Error
}
