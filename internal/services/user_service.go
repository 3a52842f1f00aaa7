package services

import (
	"gorm.io/gorm"

	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/models"
	"nimbus_backend/internal/repositories"
	"nimbus_backend/pkg/apperrors"
)

type UserService interface {
	EnsureUser(db *gorm.DB, externalID, email string) (*models.User, error)
	GetUser(db *gorm.DB, userID string) (*models.User, error)
	ListUsers(db *gorm.DB, page, pageSize int) (*dto.UserListResponse, error)
	UpdateUser(db *gorm.DB, userID string, req *dto.UpdateUserRequest) (*models.User, error)
	DeleteUser(db *gorm.DB, userID string) error
}

type userService struct {
	userRepo repositories.UserRepository
}

func NewUserService(userRepo repositories.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// EnsureUser maps an identity-provider subject onto a local account,
// creating it on first sign-in.
func (s *userService) EnsureUser(db *gorm.DB, externalID, email string) (*models.User, error) {
	return s.userRepo.UpsertFromIdentity(db, externalID, email)
}

func (s *userService) GetUser(db *gorm.DB, userID string) (*models.User, error) {
	user, err := s.userRepo.FindByID(db, userID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.NewNotFoundError("user", "User not found")
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) ListUsers(db *gorm.DB, page, pageSize int) (*dto.UserListResponse, error) {
	offset := (page - 1) * pageSize
	users, err := s.userRepo.FindAll(db, pageSize, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.userRepo.CountAll(db)
	if err != nil {
		return nil, err
	}
	return &dto.UserListResponse{
		Users:    users,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *userService) UpdateUser(db *gorm.DB, userID string, req *dto.UpdateUserRequest) (*models.User, error) {
	user, err := s.GetUser(db, userID)
	if err != nil {
		return nil, err
	}

	if req.IsAdmin != nil || req.AdminLevel != nil {
		isAdmin := user.IsAdmin
		adminLevel := user.AdminLevel
		if req.IsAdmin != nil {
			isAdmin = *req.IsAdmin
		}
		if req.AdminLevel != nil {
			adminLevel = *req.AdminLevel
		}
		// Demotion clears the level so stale grants cannot linger.
		if !isAdmin {
			adminLevel = 0
		}
		if err := s.userRepo.UpdateAdminFlags(db, user.ID, isAdmin, adminLevel); err != nil {
			return nil, err
		}
		user.IsAdmin = isAdmin
		user.AdminLevel = adminLevel
	}

	if req.Status != nil {
		status := models.UserStatus(*req.Status)
		if err := s.userRepo.UpdateStatus(db, user.ID, status); err != nil {
			return nil, err
		}
		user.Status = status
	}

	return user, nil
}

func (s *userService) DeleteUser(db *gorm.DB, userID string) error {
	err := s.userRepo.SoftDelete(db, userID)
	if apperrors.Is(err, repositories.ErrUserNotFound) {
		return apperrors.NewNotFoundError("user", "User not found")
	}
	return err
}
