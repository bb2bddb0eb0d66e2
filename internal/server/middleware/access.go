package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imaro-auth/backend/internal/logger"
	"imaro-auth/backend/internal/platform/httpapi"
	"imaro-auth/backend/internal/policy/engine"
	userdomain "imaro-auth/backend/internal/user/domain"
)

const currentUserKey = "current_user"

// UserLoader loads the authenticated user.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// RequireAccess loads the authenticated user and asks the access policy whether req may proceed.
// It must run after RequireAuth. The loaded user is available to handlers through CurrentUser.
func RequireAccess(users UserLoader, policy engine.Evaluator, req engine.Request, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID, ok := UserID(ctx)
		if !ok {
			httpapi.Abort(c, http.StatusUnauthorized, "missing_token", "Not authenticated")
			return
		}
		u, err := users.GetByID(ctx, userID)
		if err != nil {
			logger.WithContext(ctx, log).Error("load user for access check", zap.String("user_id", userID), zap.Error(err))
			httpapi.Abort(c, http.StatusInternalServerError, "internal_error", "Internal server error")
			return
		}
		if u == nil {
			httpapi.Abort(c, http.StatusNotFound, "user_not_found", "User not found")
			return
		}
		decision, err := policy.Evaluate(ctx, u, req)
		if err != nil {
			logger.WithContext(ctx, log).Error("access policy evaluation failed", zap.String("user_id", userID), zap.Error(err))
			httpapi.Abort(c, http.StatusInternalServerError, "internal_error", "Internal server error")
			return
		}
		if err := decision.Err(); err != nil {
			switch {
			case errors.Is(err, engine.ErrAccountDeactivated):
				httpapi.Abort(c, http.StatusForbidden, "account_deactivated", "User account is deactivated")
			case errors.Is(err, engine.ErrProfileIncomplete):
				httpapi.Abort(c, http.StatusForbidden, "profile_incomplete", "Profile completion required")
			default:
				httpapi.Abort(c, http.StatusForbidden, "access_denied", "Access denied")
			}
			return
		}
		c.Set(currentUserKey, u)
		c.Next()
	}
}

// CurrentUser returns the user loaded by RequireAccess.
func CurrentUser(c *gin.Context) (*userdomain.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*userdomain.User)
	return u, ok && u != nil
}
