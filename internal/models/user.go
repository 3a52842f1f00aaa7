package models

// User mirrors an identity-provider account inside the local database.
// Rows are created on the first authenticated request and are soft-deleted
// only; the identity provider remains the source of the credential, the
// local row is the source of truth for authorization (IsAdmin, AdminLevel).
type User struct {
	BaseModelWithDeleted
	ExternalID string     `gorm:"uniqueIndex;not null" json:"external_id"`
	Email      string     `gorm:"index;not null" json:"email"`
	IsAdmin    bool       `gorm:"default:false" json:"is_admin"`
	AdminLevel int        `gorm:"default:0" json:"admin_level"`
	Status     UserStatus `gorm:"type:varchar(20);default:'active'" json:"status"`

	// Relations
	Membership *UserMembership `gorm:"foreignKey:UserID" json:"membership,omitempty"`
}
