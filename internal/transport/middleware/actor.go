package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

// Identity headers set by the upstream auth proxy.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const actorKey = "actor"

// Actor reads the caller identity and rejects requests without one.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing or invalid " + HeaderUserID + " header",
			})
			return
		}

		role := entity.RoleUser
		if strings.EqualFold(c.GetHeader(HeaderUserRole), string(entity.RoleAdmin)) {
			role = entity.RoleAdmin
		}

		c.Set(actorKey, entity.Actor{UserID: userID, Role: role})
		c.Next()
	}
}

// AdminOnly must run after Actor.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok || !actor.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "admin role required",
			})
			return
		}
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (entity.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return entity.Actor{}, false
	}
	actor, ok := v.(entity.Actor)
	return actor, ok
}
