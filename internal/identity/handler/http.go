package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imaro-auth/backend/internal/identity/service"
	otpdomain "imaro-auth/backend/internal/otp/domain"
	otpservice "imaro-auth/backend/internal/otp/service"
	"imaro-auth/backend/internal/platform/httpapi"
)

// SendOTPRequest is the body of POST /auth/phone/send-otp.
type SendOTPRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
}

// SendOTPResponse acknowledges an issued code.
type SendOTPResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}

// VerifyOTPRequest is the body of POST /auth/phone/verify-otp.
type VerifyOTPRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	OTPCode     string `json:"otp_code" binding:"required"`
}

// GoogleLoginRequest is the body of POST /auth/google/login.
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResponse is returned by every login endpoint.
type AuthResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	UserID           string `json:"user_id"`
	ProfileCompleted bool   `json:"profile_completed"`
	ExpiresIn        int    `json:"expires_in"`
}

// RefreshResponse carries a new access token.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

var authCases = []httpapi.ErrorCase{
	{Err: otpdomain.ErrNotFound, Status: http.StatusBadRequest, Code: "otp_not_found", Message: "No OTP found for this phone number"},
	{Err: otpdomain.ErrExpired, Status: http.StatusBadRequest, Code: "otp_expired", Message: "OTP has expired. Please request a new one."},
	{Err: otpdomain.ErrAttemptsExceeded, Status: http.StatusBadRequest, Code: "otp_attempts_exceeded", Message: "Too many failed attempts. Please request a new OTP."},
	{Err: otpservice.ErrDispatchFailed, Status: http.StatusBadGateway, Code: "otp_dispatch_failed", Message: "Failed to send OTP. Please try again."},
	{Err: service.ErrIdentityRejected, Status: http.StatusUnauthorized, Code: "identity_rejected", Message: "Invalid Google token"},
}

// AuthHandler serves the login and token endpoints.
type AuthHandler struct {
	auth *service.AuthService
	log  *zap.Logger
}

// NewAuthHandler returns an AuthHandler.
func NewAuthHandler(auth *service.AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	httpapi.RegisterBindingRules()
	return &AuthHandler{auth: auth, log: log}
}

func (h *AuthHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, otpdomain.ErrMismatch) {
		remaining, _ := otpdomain.RemainingAttempts(err)
		resp := httpapi.NewErrorResponse(c, "otp_mismatch", fmt.Sprintf("Invalid OTP. %d attempts remaining.", remaining))
		resp.RemainingAttempts = &remaining
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	httpapi.RespondError(c, h.log, err, httpapi.ValidationCases, authCases, httpapi.TokenCases)
}

// SendOTP handles POST /auth/phone/send-otp.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BindError(c, err)
		return
	}
	res, err := h.auth.SendOTP(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SendOTPResponse{
		Success:   true,
		Message:   res.Message,
		ExpiresIn: int(res.ExpiresIn.Seconds()),
	})
}

// VerifyOTP handles POST /auth/phone/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BindError(c, err)
		return
	}
	res, err := h.auth.VerifyPhoneOTP(c.Request.Context(), req.PhoneNumber, req.OTPCode)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// GoogleLogin handles POST /auth/google/login.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	var req GoogleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BindError(c, err)
		return
	}
	res, err := h.auth.GoogleLogin(c.Request.Context(), req.IDToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BindError(c, err)
		return
	}
	res, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RefreshResponse{
		AccessToken: res.AccessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(res.ExpiresIn.Seconds()),
	})
}

// Logout handles POST /auth/logout. Tokens are stateless and stay valid until they expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, httpapi.MessageResponse{Message: "Successfully logged out"})
}

func toAuthResponse(res *service.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		TokenType:        "bearer",
		UserID:           res.UserID,
		ProfileCompleted: res.ProfileCompleted,
		ExpiresIn:        int(res.ExpiresIn.Seconds()),
	}
}
