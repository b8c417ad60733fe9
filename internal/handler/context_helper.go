package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/examslot-api/internal/middleware"
	"github.com/noah-isme/examslot-api/internal/models"
)

const systemActor = "system"

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext names the user recorded as changed_by on history rows.
func actorFromContext(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil && claims.UserID != "" {
		return claims.UserID
	}
	return systemActor
}
