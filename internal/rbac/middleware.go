package rbac

import (
	"net/http"

	"softphone-dialer/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAgent enforces line ownership: the caller must be the agent this
// dialer serves, or a supervisor/admin acting for them.
func RequireAgent(agentID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := auth.AgentID(c.Request.Context())
		if err != nil || caller == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "agent_id required"})
			return
		}
		if caller == agentID {
			c.Next()
			return
		}
		role, _ := auth.Role(c.Request.Context())
		if !CanActFor(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// admin bypasses the check.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
