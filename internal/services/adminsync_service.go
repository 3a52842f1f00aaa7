package services

import (
	"context"

	"gorm.io/gorm"

	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/identity"
	"nimbus_backend/internal/logger"
	"nimbus_backend/internal/models"
	"nimbus_backend/internal/repositories"
	"nimbus_backend/pkg/apperrors"
)

type AdminSyncService interface {
	// SyncAdminPermissions pushes local admin flags to the identity
	// provider. An empty userID syncs every admin account.
	SyncAdminPermissions(ctx context.Context, db *gorm.DB, userID string) (*dto.SyncReport, error)
}

type adminSyncService struct {
	userRepo   repositories.UserRepository
	management identity.ManagementClient
}

func NewAdminSyncService(userRepo repositories.UserRepository, management identity.ManagementClient) AdminSyncService {
	return &adminSyncService{
		userRepo:   userRepo,
		management: management,
	}
}

func (s *adminSyncService) SyncAdminPermissions(ctx context.Context, db *gorm.DB, userID string) (*dto.SyncReport, error) {
	users, err := s.collectTargets(db, userID)
	if err != nil {
		return nil, err
	}

	report := &dto.SyncReport{
		Total:   len(users),
		Results: make([]dto.SyncResult, 0, len(users)),
	}

	// Each user is pushed independently. A provider failure for one account
	// is captured in its result row and the batch keeps going.
	for i := range users {
		user := &users[i]
		result := dto.SyncResult{
			UserID:     user.ID,
			ExternalID: user.ExternalID,
			Email:      user.Email,
		}

		if err := s.pushUser(ctx, user); err != nil {
			result.Error = err.Error()
			report.FailedCount++
			logger.Warn("admin permission sync failed",
				"user_id", user.ID,
				"external_id", user.ExternalID,
				"error", err,
			)
		} else {
			result.Success = true
			report.SuccessCount++
		}

		report.Results = append(report.Results, result)
	}

	logger.Info("admin permission sync finished",
		"total", report.Total,
		"success", report.SuccessCount,
		"failed", report.FailedCount,
	)
	return report, nil
}

func (s *adminSyncService) collectTargets(db *gorm.DB, userID string) ([]models.User, error) {
	if userID == "" {
		return s.userRepo.FindAdmins(db)
	}

	user, err := s.userRepo.FindByID(db, userID)
	if err != nil {
		if apperrors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.NewNotFoundError("admin", "User not found")
		}
		return nil, err
	}
	return []models.User{*user}, nil
}

func (s *adminSyncService) pushUser(ctx context.Context, user *models.User) error {
	meta := identity.AdminMetadata{
		IsAdmin:    user.IsAdmin,
		AdminLevel: user.AdminLevel,
		Role:       models.RoleMember,
	}
	if user.IsAdmin {
		meta.Role = models.RoleAdmin
	}
	return s.management.UpdateUserMetadata(ctx, user.ExternalID, meta)
}
