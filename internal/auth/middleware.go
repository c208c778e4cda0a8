package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/po-approvals/internal/logger"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

const actorKey = "auth.actor"

// Middleware authenticates the Authorization header and stores the actor on
// the gin context. Failures end the request with 401.
func Middleware(gate Gate, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := gate.Authenticate(c.Request.Context(), bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				log.Error().Err(err).Msg("authentication backend failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
				return
			}
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "unauthenticated",
				"detail": ErrUnauthenticated.Error(),
			})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by Middleware.
func ActorFrom(c *gin.Context) (roles.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return roles.Actor{}, false
	}
	actor, ok := v.(roles.Actor)
	return actor, ok
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
