package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AnchalDevBytes/challan-maker/internal/service"
	appErrors "github.com/AnchalDevBytes/challan-maker/pkg/errors"
	"github.com/AnchalDevBytes/challan-maker/pkg/response"
)

// ContextUserKey is the gin context key holding the authenticated user id.
const ContextUserKey = "auth_user_id"

// RequireAuth guards a route group with access-token authentication. The
// token is taken from the Authorization header as a Bearer credential.
func RequireAuth(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		userID, err := tokens.Verify(parts[1], service.SecretAccess)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, userID)
		c.Next()
	}
}

// UserID extracts the authenticated user id set by RequireAuth.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
