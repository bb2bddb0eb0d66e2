package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imaro-auth/backend/internal/platform/httpapi"
	"imaro-auth/backend/internal/server/middleware"
	"imaro-auth/backend/internal/user/domain"
	"imaro-auth/backend/internal/user/service"
)

// CompleteProfileRequest is the body of POST /auth/complete-profile.
// Omitted acceptance flags default to true.
type CompleteProfileRequest struct {
	FirstName             string `json:"first_name" binding:"required,name"`
	LastName              string `json:"last_name" binding:"required,name"`
	Age                   int    `json:"age" binding:"required,gte=13,lte=120"`
	Gender                string `json:"gender" binding:"required,oneof=male female other prefer_not_to_say"`
	Country               string `json:"country" binding:"required,len=3,uppercase,alpha"`
	PrivacyPolicyAccepted *bool  `json:"privacy_policy_accepted"`
	TermsAccepted         *bool  `json:"terms_accepted"`
}

// UpdateProfileRequest is the body of PUT /users/profile. Absent fields are left unchanged.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" binding:"omitnil,name"`
	LastName  *string `json:"last_name" binding:"omitnil,name"`
	Age       *int    `json:"age" binding:"omitnil,gte=13,lte=120"`
	Gender    *string `json:"gender" binding:"omitnil,oneof=male female other prefer_not_to_say"`
	Country   *string `json:"country" binding:"omitnil,len=3,uppercase,alpha"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID                    string     `json:"id"`
	ExternalID            string     `json:"external_id"`
	AuthMethod            string     `json:"auth_method"`
	PhoneNumber           *string    `json:"phone_number"`
	Email                 *string    `json:"email"`
	FirstName             *string    `json:"first_name"`
	LastName              *string    `json:"last_name"`
	Age                   *int       `json:"age"`
	Gender                *string    `json:"gender"`
	Country               *string    `json:"country"`
	IsActive              bool       `json:"is_active"`
	IsPhoneVerified       bool       `json:"is_phone_verified"`
	IsEmailVerified       bool       `json:"is_email_verified"`
	ProfileCompleted      bool       `json:"profile_completed"`
	PrivacyPolicyAccepted bool       `json:"privacy_policy_accepted"`
	TermsAccepted         bool       `json:"terms_accepted"`
	LastLoginAt           *time.Time `json:"last_login_at"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:                    u.ID,
		ExternalID:            u.ExternalID,
		AuthMethod:            string(u.AuthMethod),
		PhoneNumber:           optional(u.Phone),
		Email:                 optional(u.Email),
		FirstName:             optional(u.FirstName),
		LastName:              optional(u.LastName),
		Age:                   u.Age,
		Gender:                optional(string(u.Gender)),
		Country:               optional(u.Country),
		IsActive:              u.Active,
		IsPhoneVerified:       u.PhoneVerified,
		IsEmailVerified:       u.EmailVerified,
		ProfileCompleted:      u.ProfileCompleted,
		PrivacyPolicyAccepted: u.PrivacyAccepted,
		TermsAccepted:         u.TermsAccepted,
		LastLoginAt:           u.LastLoginAt,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

var profileCases = []httpapi.ErrorCase{
	{Err: domain.ErrValidation, Status: http.StatusUnprocessableEntity, Code: "validation_error"},
	{Err: service.ErrAlreadyCompleted, Status: http.StatusBadRequest, Code: "profile_already_completed", Message: "Profile already completed"},
	{Err: service.ErrUserNotFound, Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"},
}

// UserHandler serves the profile endpoints. Every route runs behind RequireAuth and RequireAccess.
type UserHandler struct {
	profiles *service.ProfileService
	log      *zap.Logger
}

// NewUserHandler returns a UserHandler.
func NewUserHandler(profiles *service.ProfileService, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	httpapi.RegisterBindingRules()
	return &UserHandler{profiles: profiles, log: log}
}

func (h *UserHandler) userID(c *gin.Context) (string, bool) {
	id, ok := middleware.UserID(c.Request.Context())
	if !ok {
		httpapi.Abort(c, http.StatusUnauthorized, "missing_token", "Not authenticated")
	}
	return id, ok
}

func (h *UserHandler) fail(c *gin.Context, err error) {
	httpapi.RespondError(c, h.log, err, profileCases, httpapi.ValidationCases)
}

// Me handles GET /auth/me and GET /users/profile.
func (h *UserHandler) Me(c *gin.Context) {
	if u, ok := middleware.CurrentUser(c); ok {
		c.JSON(http.StatusOK, toUserResponse(u))
		return
	}
	id, ok := h.userID(c)
	if !ok {
		return
	}
	u, err := h.profiles.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(u))
}

// CompleteProfile handles POST /auth/complete-profile.
func (h *UserHandler) CompleteProfile(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	var req CompleteProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BindError(c, err)
		return
	}
	fields := domain.ProfileFields{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Age:             req.Age,
		Gender:          domain.Gender(req.Gender),
		Country:         req.Country,
		PrivacyAccepted: req.PrivacyPolicyAccepted == nil || *req.PrivacyPolicyAccepted,
		TermsAccepted:   req.TermsAccepted == nil || *req.TermsAccepted,
	}
	u, err := h.profiles.CompleteProfile(c.Request.Context(), id, fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(u))
}

// UpdateProfile handles PUT /users/profile.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BindError(c, err)
		return
	}
	patch := domain.ProfilePatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Age:       req.Age,
		Country:   req.Country,
	}
	if req.Gender != nil {
		g := domain.Gender(*req.Gender)
		patch.Gender = &g
	}
	u, err := h.profiles.UpdateProfile(c.Request.Context(), id, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(u))
}

// DeleteAccount handles DELETE /users/account.
func (h *UserHandler) DeleteAccount(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.profiles.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpapi.MessageResponse{Message: "Account deleted successfully"})
}

// Deactivate handles POST /users/deactivate.
func (h *UserHandler) Deactivate(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.profiles.Deactivate(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpapi.MessageResponse{Message: "Account deactivated successfully"})
}
