package services

import (
	"nimbus_backend/internal/billing"
	"nimbus_backend/internal/email"
	"nimbus_backend/internal/identity"
	"nimbus_backend/internal/repositories"
)

// ServiceContainer wires every service with its repositories and outbound
// clients. Handlers receive it fully constructed.
type ServiceContainer struct {
	UserService       UserService
	MembershipService MembershipService
	BillingService    BillingService
	AdminSyncService  AdminSyncService

	// BillingClient is exposed for the webhook handler, which verifies
	// signatures before any service code runs.
	BillingClient *billing.Client
}

func NewServiceContainer(
	billingClient *billing.Client,
	management identity.ManagementClient,
	emailProvider email.Provider,
) *ServiceContainer {
	userRepo := repositories.NewUserRepository()
	membershipRepo := repositories.NewMembershipRepository()

	userService := NewUserService(userRepo)
	membershipService := NewMembershipService(membershipRepo, userRepo, emailProvider)
	billingService := NewBillingService(billingClient, membershipRepo, userRepo, membershipService)
	adminSyncService := NewAdminSyncService(userRepo, management)

	return &ServiceContainer{
		UserService:       userService,
		MembershipService: membershipService,
		BillingService:    billingService,
		AdminSyncService:  adminSyncService,
		BillingClient:     billingClient,
	}
}
