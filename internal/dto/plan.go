package dto

type CreatePlanRequest struct {
	Name         string          `json:"name" binding:"required" validate:"required,min=2,max=100"`
	Price        float64         `json:"price" validate:"gte=0"`
	Currency     string          `json:"currency" validate:"required,iso-currency"`
	DurationDays int             `json:"duration_days" validate:"required,gt=0"`
	Features     map[string]bool `json:"features"`
	Limits       map[string]int  `json:"limits" validate:"feature-limits"`
	IsActive     bool            `json:"is_active"`
}

type UpdatePlanRequest struct {
	Price        *float64        `json:"price,omitempty" validate:"omitempty,gte=0"`
	Currency     *string         `json:"currency,omitempty" validate:"omitempty,iso-currency"`
	DurationDays *int            `json:"duration_days,omitempty" validate:"omitempty,gt=0"`
	Features     map[string]bool `json:"features,omitempty"`
	Limits       map[string]int  `json:"limits,omitempty" validate:"omitempty,feature-limits"`
	IsActive     *bool           `json:"is_active,omitempty"`
}
