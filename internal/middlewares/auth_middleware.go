package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	PrincipalHeader = "X-Principal"
	principalKey    = "principal"
)

// Authenticate trusts the principal set by the upstream auth proxy. It does
// not check permissions.
func Authenticate(c *gin.Context) {
	principal := strings.TrimSpace(c.GetHeader(PrincipalHeader))
	if principal == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing " + PrincipalHeader + " header"})
		return
	}

	c.Set(principalKey, principal)

	c.Next()
}

// Principal returns the principal stored by Authenticate, or "".
func Principal(c *gin.Context) string {
	return c.GetString(principalKey)
}
