package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"nimbus_backend/internal/identity"
	"nimbus_backend/internal/logger"
	"nimbus_backend/internal/models"
	"nimbus_backend/internal/services"
	"nimbus_backend/pkg/contextkeys"
)

// Context keys populated by AuthMiddleware.
const (
	UserIDKey  = "userID"
	IsAdminKey = "isAdmin"
)

// AuthMiddleware verifies the bearer token against the identity provider's
// signing keys and resolves the subject to a local account, creating it on
// first sign-in.
func AuthMiddleware(verifier *identity.Verifier, userService services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header missing or invalid"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := verifier.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		db, ok := c.Get(string(contextkeys.DBContextKey))
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Database not available"})
			return
		}

		user, err := userService.EnsureUser(db.(*gorm.DB), claims.Subject, claims.Email)
		if err != nil {
			logger.CtxWithError(c.Request.Context(), "failed to resolve authenticated user", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve user"})
			return
		}
		if user.Status != models.UserStatusActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is suspended"})
			return
		}

		ctx := logger.WithUserID(c.Request.Context(), user.ID)
		c.Request = c.Request.WithContext(identity.WithClaims(ctx, claims))

		c.Set(UserIDKey, user.ID)
		c.Set(IsAdminKey, user.IsAdmin)
		c.Next()
	}
}

// RequireAdmin gates a route group behind the local admin flag. It runs
// after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin, exists := c.Get(IsAdminKey)
		if !exists || isAdmin != true {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied: admin required"})
			return
		}
		c.Next()
	}
}

// GetUserID extracts the authenticated user's ID from the gin context.
func GetUserID(c *gin.Context) string {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return ""
	}
	id, ok := userID.(string)
	if !ok {
		return ""
	}
	return id
}
