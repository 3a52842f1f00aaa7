package dto

// SyncResult is the per-user outcome of one identity-provider metadata push.
type SyncResult struct {
	UserID     string `json:"user_id"`
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// SyncReport aggregates a whole admin-sync batch. One failing user never
// aborts the batch, so Total == SuccessCount + FailedCount always holds.
type SyncReport struct {
	Total        int          `json:"total"`
	SuccessCount int          `json:"successCount"`
	FailedCount  int          `json:"failedCount"`
	Results      []SyncResult `json:"results"`
}

type UpdateUserRequest struct {
	IsAdmin    *bool   `json:"is_admin,omitempty"`
	AdminLevel *int    `json:"admin_level,omitempty" validate:"omitempty,gte=0,lte=10"`
	Status     *string `json:"status,omitempty" validate:"omitempty,oneof=active suspended"`
}

type UserListResponse struct {
	Users    interface{} `json:"users"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
