package handlers

// AppHandlers holds every HTTP handler in the application.
type AppHandlers struct {
	UserHandler       *UserHandler
	PlanHandler       *PlanHandler
	MembershipHandler *MembershipHandler
	BillingHandler    *BillingHandler
	AdminHandler      *AdminHandler
}
