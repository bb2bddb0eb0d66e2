package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"imaro-auth/backend/internal/platform/httpapi"
	"imaro-auth/backend/internal/security"
)

const bearerPrefix = "bearer "

// RequireAuth validates the Bearer access token and stores the caller's identity in the request context.
func RequireAuth(tokens *security.TokenProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			httpapi.Abort(c, http.StatusUnauthorized, "missing_token", "Not authenticated")
			return
		}
		claims, err := tokens.Verify(token, security.KindAccess)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			for _, cs := range httpapi.TokenCases {
				if errors.Is(err, cs.Err) {
					httpapi.Abort(c, cs.Status, cs.Code, cs.Message)
					return
				}
			}
			httpapi.Abort(c, http.StatusUnauthorized, "token_invalid", "Could not validate credentials")
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.Subject, claims.ExternalID))
		c.Next()
	}
}

// extractBearer returns the token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
