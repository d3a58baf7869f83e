package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/opencampus/registrar-api/internal/middleware"
	"github.com/opencampus/registrar-api/internal/models"
)

// actorFromContext returns the authenticated actor's claims, if any.
func actorFromContext(c *gin.Context) (*models.ActorClaims, bool) {
	value, exists := c.Get(middleware.ContextActorKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.ActorClaims)
	return claims, ok
}

// actorID returns the authenticated actor id or the empty string.
func actorID(c *gin.Context) string {
	claims, ok := actorFromContext(c)
	if !ok {
		return ""
	}
	return claims.ActorID
}
