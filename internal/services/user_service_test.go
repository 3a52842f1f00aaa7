package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimbus_backend/internal/dto"
	"nimbus_backend/internal/models"
	"nimbus_backend/internal/repositories"
)

func newTestUserService() UserService {
	return NewUserService(repositories.NewUserRepository())
}

func TestEnsureUser_CreatesOnFirstSignIn(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestUserService()

	user, err := svc.EnsureUser(db, "auth0|new", "new@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, models.UserStatusActive, user.Status)
	assert.False(t, user.IsAdmin)

	// The same subject resolves to the same row, not a duplicate.
	again, err := svc.EnsureUser(db, "auth0|new", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnsureUser_RefreshesEmail(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestUserService()

	user, err := svc.EnsureUser(db, "auth0|mover", "old@example.com")
	require.NoError(t, err)

	updated, err := svc.EnsureUser(db, "auth0|mover", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, updated.ID)
	assert.Equal(t, "new@example.com", updated.Email)
}

func TestUpdateUser_PromoteAndDemote(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestUserService()

	user := createTestUser(t, db, "auth0|promo", "promo@example.com")

	isAdmin := true
	level := 7
	promoted, err := svc.UpdateUser(db, user.ID, &dto.UpdateUserRequest{IsAdmin: &isAdmin, AdminLevel: &level})
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin)
	assert.Equal(t, 7, promoted.AdminLevel)

	// Demotion clears the level even when the request does not mention it.
	notAdmin := false
	demoted, err := svc.UpdateUser(db, user.ID, &dto.UpdateUserRequest{IsAdmin: &notAdmin})
	require.NoError(t, err)
	assert.False(t, demoted.IsAdmin)
	assert.Equal(t, 0, demoted.AdminLevel)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
	assert.Equal(t, 0, reloaded.AdminLevel)
}

func TestUpdateUser_Suspend(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestUserService()

	user := createTestUser(t, db, "auth0|susp", "susp@example.com")

	status := "suspended"
	updated, err := svc.UpdateUser(db, user.ID, &dto.UpdateUserRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusSuspended, updated.Status)
}

func TestDeleteUser_SoftDeletes(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestUserService()

	user := createTestUser(t, db, "auth0|gone", "gone@example.com")

	require.NoError(t, svc.DeleteUser(db, user.ID))

	// Gone from normal queries but still present with the deleted marker.
	_, err := svc.GetUser(db, user.ID)
	assert.Error(t, err)

	var raw models.User
	require.NoError(t, db.Unscoped().First(&raw, "id = ?", user.ID).Error)
	assert.True(t, raw.DeletedAt.Valid)

	// Deleting twice reports not found.
	assert.Error(t, svc.DeleteUser(db, user.ID))
}

func TestListUsers_Paginates(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestUserService()

	for _, id := range []string{"auth0|p1", "auth0|p2", "auth0|p3"} {
		createTestUser(t, db, id, id+"@example.com")
	}

	page1, err := svc.ListUsers(db, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page1.Total)
	assert.Len(t, page1.Users.([]models.User), 2)

	page2, err := svc.ListUsers(db, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page2.Users.([]models.User), 1)
}
