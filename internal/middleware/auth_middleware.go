package middleware

import (
	"net/http"
	"strings"

	"github.com/tamannathakur/Invora/internal/models"
	"github.com/tamannathakur/Invora/pkg/utils"

	"github.com/gin-gonic/gin"
)

// PrincipalKey is the gin context key the authenticated principal is stored
// under.
const PrincipalKey = "principal"

// AuthMiddleware creates a Gin middleware for JWT authentication. The role
// claim is parsed into the enum here, once, so downstream code never handles
// a raw role string.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Authorization header required", ""))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Invalid authorization header format. Use Bearer <token>", ""))
			return
		}

		claims, err := utils.ValidateToken(parts[1])
		if err != nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Invalid or expired token", err.Error()))
			return
		}

		role, err := models.ParseRole(claims.Role)
		if err != nil {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusUnauthorized, utils.ErrCodeUnauthorized, "Token carries an unknown role", err.Error()))
			return
		}

		c.Set(PrincipalKey, models.Principal{
			ID:       claims.UserID,
			Username: claims.Username,
			Role:     role,
		})
		c.Next()
	}
}

// RoleAuthMiddleware creates a Gin middleware for role-based authorization.
// It rejects callers whose role is not in the allowed set. Services still do
// their own gating; this only keeps obviously wrong traffic off them.
func RoleAuthMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "No authenticated principal. Ensure AuthMiddleware runs first.", ""))
			return
		}

		for _, role := range allowedRoles {
			if principal.Role == role {
				c.Next()
				return
			}
		}
		utils.RespondWithError(c, utils.NewAPIError(http.StatusForbidden, utils.ErrCodeForbidden, "You do not have permission to access this resource.", ""))
	}
}

// CurrentPrincipal extracts the authenticated principal set by AuthMiddleware.
func CurrentPrincipal(c *gin.Context) (models.Principal, bool) {
	value, exists := c.Get(PrincipalKey)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := value.(models.Principal)
	return principal, ok
}
