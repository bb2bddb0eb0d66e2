package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"imaro-auth/backend/internal/logger"
	"imaro-auth/backend/internal/platform/validate"
	"imaro-auth/backend/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(t *testing.T, err error) (int, ErrorResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request = req.WithContext(logger.WithRequestID(req.Context(), "req-1"))
	RespondError(c, nil, err, ValidationCases, TokenCases)
	var body ErrorResponse
	if e := json.Unmarshal(w.Body.Bytes(), &body); e != nil {
		t.Fatalf("decode: %v (%s)", e, w.Body.String())
	}
	return w.Code, body
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"field error", fmt.Errorf("wrap: %w", &validate.FieldError{Field: "age", Message: "must be between 13 and 120"}), 422, "validation_error", "age: must be between 13 and 120"},
		{"expired token", security.ErrTokenExpired, 401, "token_expired", "Token has expired"},
		{"wrong kind", security.ErrWrongKind, 401, "token_wrong_kind", "Invalid token type"},
		{"unknown", errors.New("db down"), 500, "internal_error", "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := respond(t, tt.err)
			if status != tt.status || body.Code != tt.code || body.Error != tt.msg {
				t.Errorf("got %d %+v", status, body)
			}
			if body.TraceID != "req-1" {
				t.Errorf("trace_id = %q", body.TraceID)
			}
		})
	}
}

func TestRespondError_RawValidatorErrors(t *testing.T) {
	raw := validate.Engine().Var("abc", "number")
	status, body := respond(t, raw)
	if status != 422 || body.Code != "validation_error" {
		t.Errorf("got %d %+v", status, body)
	}
}

type profileBody struct {
	FirstName string `json:"first_name" binding:"required,name"`
	Age       int    `json:"age" binding:"required,gte=13,lte=120"`
	Country   string `json:"country" binding:"required,len=3,uppercase,alpha"`
}

func TestBindError(t *testing.T) {
	RegisterBindingRules()
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing name", `{"age":30,"country":"GBR"}`, "first_name: is required"},
		{"blank name", `{"first_name":"   ","age":30,"country":"GBR"}`, "first_name: must be 1 to 50 characters"},
		{"age", `{"first_name":"Ada","age":9,"country":"GBR"}`, "age: must be between 13 and 120"},
		{"country", `{"first_name":"Ada","age":30,"country":"gbr"}`, "country: must be a 3-letter uppercase country code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req profileBody
			err := c.ShouldBindJSON(&req)
			if err == nil {
				t.Fatal("bind succeeded")
			}
			BindError(c, err)

			var body ErrorResponse
			if e := json.Unmarshal(w.Body.Bytes(), &body); e != nil {
				t.Fatalf("decode: %v", e)
			}
			if w.Code != 422 || body.Code != "validation_error" || body.Error != tt.msg {
				t.Errorf("got %d %+v, want message %q", w.Code, body, tt.msg)
			}
		})
	}
}

func TestBindError_MalformedJSON(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	c.Request.Header.Set("Content-Type", "application/json")
	var req profileBody
	BindError(c, c.ShouldBindJSON(&req))

	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != 422 || !strings.HasPrefix(body.Error, "Invalid request body: ") {
		t.Errorf("got %d %+v", w.Code, body)
	}
}
