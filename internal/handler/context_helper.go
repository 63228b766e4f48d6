package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/middleware"
	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// claimsFromContext returns the authenticated caller's claims, or nil on
// routes where authentication is optional.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
