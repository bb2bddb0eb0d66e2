// Package httpapi holds the JSON error envelope shared by the HTTP handlers and middleware.
package httpapi

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"imaro-auth/backend/internal/logger"
	"imaro-auth/backend/internal/platform/validate"
	"imaro-auth/backend/internal/security"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	TraceID           string `json:"trace_id,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorCase maps a sentinel error to a status, machine code and message.
// An empty Message reports the error text itself.
type ErrorCase struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// ValidationCases cover boundary validation failures.
var ValidationCases = []ErrorCase{
	{Err: validate.ErrInvalid, Status: http.StatusUnprocessableEntity, Code: "validation_error"},
}

// TokenCases cover bearer and refresh token failures.
var TokenCases = []ErrorCase{
	{Err: security.ErrTokenExpired, Status: http.StatusUnauthorized, Code: "token_expired", Message: "Token has expired"},
	{Err: security.ErrWrongKind, Status: http.StatusUnauthorized, Code: "token_wrong_kind", Message: "Invalid token type"},
	{Err: security.ErrInvalidToken, Status: http.StatusUnauthorized, Code: "token_invalid", Message: "Could not validate credentials"},
}

// NewErrorResponse builds an ErrorResponse carrying the request id as trace id.
func NewErrorResponse(c *gin.Context, code, message string) ErrorResponse {
	return ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: logger.RequestID(c.Request.Context()),
	}
}

// Abort stops the handler chain with an error reply.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, NewErrorResponse(c, code, message))
}

var bindingOnce sync.Once

// RegisterBindingRules installs the validate rules and json field naming on gin's binding engine,
// so `binding` tags on request structs accept the same rules as domain `validate` tags.
func RegisterBindingRules() {
	bindingOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			validate.Register(v)
		}
	})
}

// BindError replies 422 for a request body that failed to bind.
// Tag failures name the offending field; malformed JSON reports the decoder error.
func BindError(c *gin.Context, err error) {
	if fe := validate.Translate(err); errors.Is(fe, validate.ErrInvalid) {
		Abort(c, http.StatusUnprocessableEntity, "validation_error", fe.Error())
		return
	}
	Abort(c, http.StatusUnprocessableEntity, "validation_error", "Invalid request body: "+err.Error())
}

// RespondError writes the first case matching err, or a logged 500.
func RespondError(c *gin.Context, log *zap.Logger, err error, cases ...[]ErrorCase) {
	err = validate.Translate(err)
	for _, set := range cases {
		for _, cs := range set {
			if cs.Err == nil || !errors.Is(err, cs.Err) {
				continue
			}
			msg := cs.Message
			if msg == "" {
				msg = detail(err)
			}
			c.JSON(cs.Status, NewErrorResponse(c, cs.Code, msg))
			return
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	logger.WithContext(c.Request.Context(), log).Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "internal_error", "Internal server error"))
}

func detail(err error) string {
	var fe *validate.FieldError
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return err.Error()
}
