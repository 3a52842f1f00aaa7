package repositories

import (
	"errors"

	"gorm.io/gorm"

	"nimbus_backend/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

type UserRepository interface {
	FindByID(db *gorm.DB, id string) (*models.User, error)
	FindByExternalID(db *gorm.DB, externalID string) (*models.User, error)
	UpsertFromIdentity(db *gorm.DB, externalID, email string) (*models.User, error)
	UpdateAdminFlags(db *gorm.DB, userID string, isAdmin bool, adminLevel int) error
	UpdateStatus(db *gorm.DB, userID string, status models.UserStatus) error
	SoftDelete(db *gorm.DB, userID string) error
	FindAll(db *gorm.DB, limit, offset int) ([]models.User, error)
	CountAll(db *gorm.DB) (int64, error)
	FindAdmins(db *gorm.DB) ([]models.User, error)
}

type UserRepositoryImpl struct{}

func NewUserRepository() UserRepository {
	return &UserRepositoryImpl{}
}

func (r *UserRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) FindByExternalID(db *gorm.DB, externalID string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpsertFromIdentity is the identity adapter: it maps a provider subject to
// a local row, creating it on first sign-in and refreshing the email when
// the provider reports a new one.
func (r *UserRepositoryImpl) UpsertFromIdentity(db *gorm.DB, externalID, email string) (*models.User, error) {
	var user models.User
	err := db.Where("external_id = ?", externalID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			ExternalID: externalID,
			Email:      email,
			Status:     models.UserStatusActive,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}

	if email != "" && user.Email != email {
		user.Email = email
		if err := db.Model(&user).Update("email", email).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

func (r *UserRepositoryImpl) UpdateAdminFlags(db *gorm.DB, userID string, isAdmin bool, adminLevel int) error {
	result := db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"is_admin":    isAdmin,
		"admin_level": adminLevel,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepositoryImpl) UpdateStatus(db *gorm.DB, userID string, status models.UserStatus) error {
	result := db.Model(&models.User{}).Where("id = ?", userID).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SoftDelete marks the row deleted; users are never hard-deleted.
func (r *UserRepositoryImpl) SoftDelete(db *gorm.DB, userID string) error {
	result := db.Where("id = ?", userID).Delete(&models.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepositoryImpl) FindAll(db *gorm.DB, limit, offset int) ([]models.User, error) {
	var users []models.User
	err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error
	return users, err
}

func (r *UserRepositoryImpl) CountAll(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&models.User{}).Count(&count).Error
	return count, err
}

func (r *UserRepositoryImpl) FindAdmins(db *gorm.DB) ([]models.User, error) {
	var admins []models.User
	err := db.Where("is_admin = ?", true).Order("created_at ASC").Find(&admins).Error
	return admins, err
}
