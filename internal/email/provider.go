package email

import "time"

// Provider sends transactional email. Services treat delivery as best
// effort: a failed send is logged, never fatal to the request.
type Provider interface {
	SendMembershipActivated(to, planName string, endDate time.Time) error
}

// NoopProvider is used when email is disabled in config and in tests.
type NoopProvider struct{}

func (NoopProvider) SendMembershipActivated(to, planName string, endDate time.Time) error {
	return nil
}
