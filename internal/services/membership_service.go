package services

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/email"
	"nimbus_backend/internal/logger"
	"nimbus_backend/internal/models"
	"nimbus_backend/internal/repositories"
	"nimbus_backend/pkg/apperrors"
)

type MembershipService interface {
	// Plan operations
	GetPlans(db *gorm.DB) ([]models.MembershipPlan, error)
	GetPlan(db *gorm.DB, planID string) (*models.MembershipPlan, error)
	CreatePlan(db *gorm.DB, req *dto.CreatePlanRequest) (*models.MembershipPlan, error)
	UpdatePlan(db *gorm.DB, planID string, req *dto.UpdatePlanRequest) (*models.MembershipPlan, error)
	DeletePlan(db *gorm.DB, planID string) error

	// Entitlement state machine
	ActivateFromPayment(db *gorm.DB, evt *dto.PaymentEvent) (*models.UserMembership, error)
	GetStatus(db *gorm.DB, userID string) (*dto.MembershipStatus, error)
	ConsumeFeature(db *gorm.DB, userID, feature string) (*dto.FeatureUsage, error)

	// Admin operations
	ListMemberships(db *gorm.DB, status *models.MembershipStatus, page, pageSize int) ([]models.UserMembership, int64, error)
	ProcessExpired(db *gorm.DB) (int64, error)
}

type membershipService struct {
	membershipRepo repositories.MembershipRepository
	userRepo       repositories.UserRepository
	emailProvider  email.Provider
}

func NewMembershipService(
	membershipRepo repositories.MembershipRepository,
	userRepo repositories.UserRepository,
	emailProvider email.Provider,
) MembershipService {
	return &membershipService{
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		emailProvider:  emailProvider,
	}
}

// --- Plan operations ---

func (s *membershipService) GetPlans(db *gorm.DB) ([]models.MembershipPlan, error) {
	return s.membershipRepo.FindActivePlans(db)
}

func (s *membershipService) GetPlan(db *gorm.DB, planID string) (*models.MembershipPlan, error) {
	plan, err := s.membershipRepo.FindPlanByID(db, planID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrPlanNotFound) {
			return nil, apperrors.NewNotFoundError("membership", "Plan not found")
		}
		return nil, err
	}
	return plan, nil
}

func (s *membershipService) CreatePlan(db *gorm.DB, req *dto.CreatePlanRequest) (*models.MembershipPlan, error) {
	featuresJSON, err := json.Marshal(req.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal features: %w", err)
	}
	limitsJSON, err := json.Marshal(req.Limits)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal limits: %w", err)
	}

	plan := &models.MembershipPlan{
		Name:         req.Name,
		Price:        req.Price,
		Currency:     req.Currency,
		DurationDays: req.DurationDays,
		Features:     datatypes.JSON(featuresJSON),
		Limits:       datatypes.JSON(limitsJSON),
		IsActive:     req.IsActive,
	}
	if err := s.membershipRepo.CreatePlan(db, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *membershipService) UpdatePlan(db *gorm.DB, planID string, req *dto.UpdatePlanRequest) (*models.MembershipPlan, error) {
	plan, err := s.GetPlan(db, planID)
	if err != nil {
		return nil, err
	}

	if req.Price != nil {
		plan.Price = *req.Price
	}
	if req.Currency != nil {
		plan.Currency = *req.Currency
	}
	if req.DurationDays != nil {
		plan.DurationDays = *req.DurationDays
	}
	if req.Features != nil {
		featuresJSON, err := json.Marshal(req.Features)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal features: %w", err)
		}
		plan.Features = datatypes.JSON(featuresJSON)
	}
	if req.Limits != nil {
		limitsJSON, err := json.Marshal(req.Limits)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal limits: %w", err)
		}
		plan.Limits = datatypes.JSON(limitsJSON)
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}

	if err := s.membershipRepo.UpdatePlan(db, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *membershipService) DeletePlan(db *gorm.DB, planID string) error {
	err := s.membershipRepo.DeletePlan(db, planID)
	if apperrors.Is(err, repositories.ErrPlanNotFound) {
		return apperrors.NewNotFoundError("membership", "Plan not found")
	}
	return err
}

// --- Entitlement state machine ---

// ActivateFromPayment converts a verified payment-completed notification
// into a membership state change. Everything mutates inside one transaction:
// payment settlement, membership upsert and usage counter reset land
// together or not at all.
//
// Renewal of the same plan extends end = max(currentEnd, now) + duration so
// entitlement never shrinks. Switching plans starts a fresh period with no
// proration. A payment that is already settled is a no-op, which is what
// makes redelivered webhooks harmless.
func (s *membershipService) ActivateFromPayment(db *gorm.DB, evt *dto.PaymentEvent) (*models.UserMembership, error) {
	user, err := s.userRepo.FindByExternalID(db, evt.ExternalUserID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "membership",
				"Payment event references unknown user", http.StatusBadRequest)
		}
		return nil, err
	}

	plan, err := s.membershipRepo.FindPlanByID(db, evt.PlanID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrPlanNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "membership",
				"Payment event references unknown plan", http.StatusBadRequest)
		}
		return nil, err
	}

	limits, err := decodeLimits(plan.Limits)
	if err != nil {
		return nil, fmt.Errorf("plan %s has malformed limits: %w", plan.ID, err)
	}

	now := time.Now().UTC()
	duration := time.Duration(evt.DurationDays) * 24 * time.Hour

	var membership *models.UserMembership
	err = db.Transaction(func(tx *gorm.DB) error {
		payment, err := s.membershipRepo.FindPaymentBySessionID(tx, evt.SessionID)
		switch {
		case err == nil:
			if payment.Status == models.PaymentStatusPaid {
				// Duplicate delivery of a settled payment: report the
				// current membership, change nothing.
				membership, _ = s.membershipRepo.FindCurrentByUserID(tx, user.ID)
				return nil
			}
			if err := s.membershipRepo.MarkPaymentPaid(tx, payment.ID, evt.EventID, now); err != nil {
				return err
			}
		case apperrors.Is(err, repositories.ErrPaymentNotFound):
			// Checkout happened outside this system; record it now.
			paidAt := now
			payment = &models.PaymentRecord{
				UserID:            user.ID,
				PlanID:            plan.ID,
				ProviderSessionID: evt.SessionID,
				ProviderEventID:   evt.EventID,
				Amount:            evt.Amount,
				Currency:          evt.Currency,
				Status:            models.PaymentStatusPaid,
				PaidAt:            &paidAt,
			}
			if err := s.membershipRepo.CreatePayment(tx, payment); err != nil {
				return err
			}
		default:
			return err
		}

		membership, err = s.upsertMembership(tx, user.ID, plan, now, duration)
		if err != nil {
			return err
		}

		return s.membershipRepo.ResetUsageToPlan(tx, user.ID, limits)
	})
	if err != nil {
		return nil, err
	}

	s.notifyActivation(user, plan, membership)
	return membership, nil
}

func (s *membershipService) upsertMembership(tx *gorm.DB, userID string, plan *models.MembershipPlan, now time.Time, duration time.Duration) (*models.UserMembership, error) {
	current, err := s.membershipRepo.FindCurrentByUserIDForUpdate(tx, userID)
	if err != nil && !apperrors.Is(err, repositories.ErrMembershipNotFound) {
		return nil, err
	}

	if current != nil && current.Status == models.MembershipStatusActive && current.EndDate.After(now) {
		if current.PlanID == plan.ID {
			// Renewal: never shortens the entitlement.
			end := current.EndDate
			if end.Before(now) {
				end = now
			}
			current.EndDate = end.Add(duration)
			if err := s.membershipRepo.SaveMembership(tx, current); err != nil {
				return nil, err
			}
			return current, nil
		}

		// Plan switch: supersede the old entitlement, fresh period for the
		// new plan, deliberately no proration.
		if err := s.membershipRepo.CancelActiveByUserID(tx, userID); err != nil {
			return nil, err
		}
	}

	fresh := &models.UserMembership{
		UserID:    userID,
		PlanID:    plan.ID,
		Status:    models.MembershipStatusActive,
		StartDate: now,
		EndDate:   now.Add(duration),
	}
	if err := s.membershipRepo.CreateMembership(tx, fresh); err != nil {
		return nil, err
	}
	// Filled in after the insert so gorm does not try to write the
	// association row.
	fresh.Plan = *plan
	return fresh, nil
}

func (s *membershipService) notifyActivation(user *models.User, plan *models.MembershipPlan, membership *models.UserMembership) {
	if s.emailProvider == nil || membership == nil {
		return
	}
	if err := s.emailProvider.SendMembershipActivated(user.Email, plan.Name, membership.EndDate); err != nil {
		logger.Warn("failed to send activation email", "user_id", user.ID, "error", err)
	}
}

// GetStatus reports the user's current entitlement. Expiry is evaluated
// lazily: a stored active row whose end date has passed reports inactive
// even before the sweep worker flips its status.
func (s *membershipService) GetStatus(db *gorm.DB, userID string) (*dto.MembershipStatus, error) {
	if userID == "" {
		return &dto.MembershipStatus{Active: false}, nil
	}

	membership, err := s.membershipRepo.FindCurrentByUserID(db, userID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrMembershipNotFound) {
			return &dto.MembershipStatus{Active: false}, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	active := membership.Status == models.MembershipStatusActive && membership.EndDate.After(now)

	// Ceiling, floored at zero: a membership activated moments ago for 30
	// days reports 30, and a partial final day still counts as a day.
	remaining := int(math.Ceil(membership.EndDate.Sub(now).Hours() / 24))
	if remaining < 0 {
		remaining = 0
	}

	status := &dto.MembershipStatus{
		Active:        active,
		PlanID:        membership.PlanID,
		PlanName:      membership.Plan.Name,
		Status:        string(membership.Status),
		StartDate:     &membership.StartDate,
		EndDate:       &membership.EndDate,
		RemainingDays: remaining,
	}
	if !active {
		status.RemainingDays = 0
	}

	usage, err := s.membershipRepo.FindUsageByUser(db, userID)
	if err != nil {
		return nil, err
	}
	for _, row := range usage {
		status.Usage = append(status.Usage, dto.FeatureUsage{
			Feature:   row.Feature,
			Used:      row.Used,
			Limit:     row.Limit,
			Remaining: row.Remaining(),
		})
	}

	return status, nil
}

// ConsumeFeature spends one unit of a metered feature under the active plan.
func (s *membershipService) ConsumeFeature(db *gorm.DB, userID, feature string) (*dto.FeatureUsage, error) {
	status, err := s.GetStatus(db, userID)
	if err != nil {
		return nil, err
	}
	if !status.Active {
		return nil, apperrors.New(apperrors.CodeForbidden, "membership",
			"No active membership", http.StatusForbidden)
	}

	row, err := s.membershipRepo.ConsumeUsage(db, userID, feature)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUsageLimitReached) {
			return nil, apperrors.New(apperrors.CodeLimitExceeded, "membership",
				"Usage limit reached for feature: "+feature, http.StatusForbidden)
		}
		return nil, err
	}

	return &dto.FeatureUsage{
		Feature:   row.Feature,
		Used:      row.Used,
		Limit:     row.Limit,
		Remaining: row.Remaining(),
	}, nil
}

// --- Admin operations ---

func (s *membershipService) ListMemberships(db *gorm.DB, status *models.MembershipStatus, page, pageSize int) ([]models.UserMembership, int64, error) {
	offset := (page - 1) * pageSize
	return s.membershipRepo.FindAll(db, status, pageSize, offset)
}

func (s *membershipService) ProcessExpired(db *gorm.DB) (int64, error) {
	return s.membershipRepo.MarkExpired(db, time.Now().UTC())
}

func decodeLimits(raw datatypes.JSON) (map[string]int, error) {
	limits := make(map[string]int)
	if len(raw) == 0 {
		return limits, nil
	}
	if err := json.Unmarshal(raw, &limits); err != nil {
		return nil, err
	}
	return limits, nil
}
