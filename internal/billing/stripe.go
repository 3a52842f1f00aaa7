// Package billing wraps the payment processor SDK: checkout session
// creation and webhook signature verification. Nothing outside this package
// touches the Stripe API directly.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/models"
)

const Provider = "stripe"

// priceToMinorUnits converts a decimal price to cents. Rounding, not
// truncation: float64 cannot represent 19.99 exactly and 19.99*100
// evaluates to 1998.999..., which a plain int64 cast would understate.
func priceToMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

// Client is a process-lifetime handle constructed once at startup and
// injected into the billing service; handlers never reach for globals.
type Client struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key must be set")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret must be set")
	}
	stripe.Key = cfg.SecretKey
	return &Client{
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

// CreateCheckoutSession opens a one-time-payment checkout for the given plan.
// The metadata carries everything the webhook needs to activate the
// membership without trusting client input.
func (c *Client) CreateCheckoutSession(user *models.User, plan *models.MembershipPlan, paymentID string) (sessionID, checkoutURL string, err error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(user.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(plan.Currency)),
					UnitAmount: stripe.Int64(priceToMinorUnits(plan.Price)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(plan.Name + " membership"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
	}
	params.AddMetadata("external_user_id", user.ExternalID)
	params.AddMetadata("plan_id", plan.ID)
	params.AddMetadata("payment_id", paymentID)
	params.AddMetadata("duration_days", strconv.Itoa(plan.DurationDays))

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("stripe checkout session failed: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// ConstructEvent verifies the Stripe-Signature header and parses the payload.
// Everything after this call may trust the event contents.
func (c *Client) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(
		payload,
		sigHeader,
		c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
}

// ParsePaymentEvent normalizes a checkout.session.completed event into the
// payment notification the membership handler consumes. The second return is
// false for event types this system deliberately ignores.
func ParsePaymentEvent(event stripe.Event) (*dto.PaymentEvent, bool, error) {
	if event.Type != "checkout.session.completed" {
		return nil, false, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, true, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	durationDays, err := strconv.Atoi(sess.Metadata["duration_days"])
	if err != nil || durationDays <= 0 {
		return nil, true, errors.New("checkout session missing duration metadata")
	}

	evt := &dto.PaymentEvent{
		EventID:        event.ID,
		SessionID:      sess.ID,
		ExternalUserID: sess.Metadata["external_user_id"],
		PlanID:         sess.Metadata["plan_id"],
		Amount:         float64(sess.AmountTotal) / 100,
		Currency:       strings.ToUpper(string(sess.Currency)),
		DurationDays:   durationDays,
	}
	if evt.ExternalUserID == "" || evt.PlanID == "" {
		return nil, true, errors.New("checkout session missing user or plan metadata")
	}
	return evt, true, nil
}

// ParseSessionExpired extracts the session ID from a
// checkout.session.expired event so the pending payment can be closed out
// as failed. The second return is false for other event types.
func ParseSessionExpired(event stripe.Event) (string, bool, error) {
	if event.Type != "checkout.session.expired" {
		return "", false, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return "", true, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if sess.ID == "" {
		return "", true, errors.New("checkout session missing id")
	}
	return sess.ID, true, nil
}
