package services

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"nimbus_backend/internal/billing"
	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/logger"
	"nimbus_backend/internal/models"
	"nimbus_backend/internal/repositories"
	"nimbus_backend/pkg/apperrors"
)

type BillingService interface {
	CreateCheckout(db *gorm.DB, userID, planID string) (*dto.CheckoutResponse, error)
	HandleWebhookEvent(db *gorm.DB, event stripe.Event) error
	GetPayments(db *gorm.DB, userID string) ([]models.PaymentRecord, error)
}

type billingService struct {
	client            *billing.Client
	membershipRepo    repositories.MembershipRepository
	userRepo          repositories.UserRepository
	membershipService MembershipService
}

func NewBillingService(
	client *billing.Client,
	membershipRepo repositories.MembershipRepository,
	userRepo repositories.UserRepository,
	membershipService MembershipService,
) BillingService {
	return &billingService{
		client:            client,
		membershipRepo:    membershipRepo,
		userRepo:          userRepo,
		membershipService: membershipService,
	}
}

// CreateCheckout opens a provider checkout session for the given plan and
// records a pending payment keyed by the session ID, so the webhook can
// settle it later.
func (s *billingService) CreateCheckout(db *gorm.DB, userID, planID string) (*dto.CheckoutResponse, error) {
	user, err := s.userRepo.FindByID(db, userID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.NewNotFoundError("billing", "User not found")
		}
		return nil, err
	}

	plan, err := s.membershipRepo.FindPlanByID(db, planID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrPlanNotFound) {
			return nil, apperrors.NewNotFoundError("billing", "Plan not found")
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, apperrors.New(apperrors.CodeInvalidStatus, "billing",
			"Plan is not available for purchase", http.StatusConflict)
	}

	// The payment ID goes into the session metadata, so it is minted before
	// the provider call and carried through to the webhook.
	payment := &models.PaymentRecord{
		BaseModel: models.BaseModel{ID: uuid.NewString()},
		UserID:    user.ID,
		PlanID:    plan.ID,
		Amount:    plan.Price,
		Currency:  plan.Currency,
		Status:    models.PaymentStatusPending,
	}

	sessionID, checkoutURL, err := s.client.CreateCheckoutSession(user, plan, payment.ID)
	if err != nil {
		return nil, apperrors.NewUpstreamError("billing", err)
	}

	payment.ProviderSessionID = sessionID
	if err := s.membershipRepo.CreatePayment(db, payment); err != nil {
		return nil, err
	}

	return &dto.CheckoutResponse{
		SessionID:   sessionID,
		CheckoutURL: checkoutURL,
		PaymentID:   payment.ID,
	}, nil
}

// HandleWebhookEvent processes a signature-verified provider event.
// Every event is journaled with a unique (provider, event ID) key, which
// short-circuits redeliveries before any business logic runs. Processing
// failures are recorded on the journal row and returned so the provider
// retries the delivery.
func (s *billingService) HandleWebhookEvent(db *gorm.DB, event stripe.Event) error {
	existing, err := s.membershipRepo.FindWebhookEvent(db, billing.Provider, event.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ProcessedAt != nil {
		logger.Info("skipping already processed webhook event", "event_id", event.ID)
		return nil
	}

	if existing == nil {
		existing = &models.WebhookEvent{
			Provider:        billing.Provider,
			ProviderEventID: event.ID,
			EventType:       string(event.Type),
			Payload:         datatypes.JSON(event.Data.Raw),
		}
		if err := s.membershipRepo.CreateWebhookEvent(db, existing); err != nil {
			return err
		}
	}

	paymentEvent, handled, err := billing.ParsePaymentEvent(event)
	if err != nil {
		s.recordOutcome(db, existing, err)
		return apperrors.NewBadRequestError("Malformed webhook payload").WithError(err)
	}
	if !handled {
		return s.handleNonPaymentEvent(db, existing, event)
	}

	if _, err := s.membershipService.ActivateFromPayment(db, paymentEvent); err != nil {
		s.recordOutcome(db, existing, err)
		return err
	}

	s.recordOutcome(db, existing, nil)
	logger.Info("webhook event processed",
		"event_id", event.ID,
		"event_type", string(event.Type),
	)
	return nil
}

// handleNonPaymentEvent covers the event types that do not activate a
// membership. An expired checkout closes its pending payment as failed;
// anything else is acknowledged so the provider stops redelivering it.
func (s *billingService) handleNonPaymentEvent(db *gorm.DB, journal *models.WebhookEvent, event stripe.Event) error {
	sessionID, expired, err := billing.ParseSessionExpired(event)
	if err != nil {
		s.recordOutcome(db, journal, err)
		return apperrors.NewBadRequestError("Malformed webhook payload").WithError(err)
	}
	if expired {
		affected, err := s.membershipRepo.MarkPaymentFailedBySessionID(db, sessionID, event.ID)
		if err != nil {
			s.recordOutcome(db, journal, err)
			return err
		}
		if affected > 0 {
			logger.Info("checkout expired, payment marked failed",
				"session_id", sessionID,
				"event_id", event.ID,
			)
		}
	}

	s.recordOutcome(db, journal, nil)
	return nil
}

func (s *billingService) recordOutcome(db *gorm.DB, event *models.WebhookEvent, procErr error) {
	if procErr != nil {
		event.ProcessingError = procErr.Error()
	} else {
		now := time.Now().UTC()
		event.ProcessedAt = &now
		event.ProcessingError = ""
	}
	if err := s.membershipRepo.SaveWebhookEvent(db, event); err != nil {
		logger.Error("failed to record webhook outcome", "event_id", event.ProviderEventID, "error", err)
	}
}

func (s *billingService) GetPayments(db *gorm.DB, userID string) ([]models.PaymentRecord, error) {
	return s.membershipRepo.FindPaymentsByUser(db, userID)
}
