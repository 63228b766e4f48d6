package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/response"
)

// SelfRule is the RBAC pseudo-role granting a student access to routes whose
// :id path parameter matches their own user ID.
const SelfRule = "SELF"

// RBAC allows the request through when the caller's role is in the allowed
// set, or when the SELF rule applies.
func RBAC(allowed ...string) gin.HandlerFunc {
	roles := make(map[models.UserRole]bool, len(allowed))
	allowSelf := false
	for _, entry := range allowed {
		if entry == SelfRule {
			allowSelf = true
			continue
		}
		roles[models.UserRole(entry)] = true
	}

	return func(c *gin.Context) {
		value, ok := c.Get(ContextUserKey)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if roles[claims.Role] {
			c.Next()
			return
		}
		if allowSelf && claims.UserID != "" && c.Param("id") == claims.UserID {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles wraps RBAC for the common roles-only case.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, role := range roles {
		allowed[i] = string(role)
	}
	return RBAC(allowed...)
}
