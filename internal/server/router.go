package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	healthhandler "imaro-auth/backend/internal/health/handler"
	identityhandler "imaro-auth/backend/internal/identity/handler"
	"imaro-auth/backend/internal/platform/httpapi"
	"imaro-auth/backend/internal/policy/engine"
	"imaro-auth/backend/internal/security"
	"imaro-auth/backend/internal/server/middleware"
	userhandler "imaro-auth/backend/internal/user/handler"
)

// RouterDeps holds everything NewRouter wires into routes.
type RouterDeps struct {
	Production     bool
	AllowedOrigins []string
	Log            *zap.Logger

	Tokens     *security.TokenProvider
	Users      middleware.UserLoader
	Policy     engine.Evaluator
	OTPLimiter *middleware.RateLimiter
	Metrics    *middleware.HTTPMetrics
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	Auth    *identityhandler.AuthHandler
	Profile *userhandler.UserHandler
	Health  *healthhandler.HTTPHandler
}

// NewRouter builds the HTTP API.
func NewRouter(d RouterDeps) *gin.Engine {
	if d.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	httpapi.RegisterBindingRules()
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(d.Log),
		d.Metrics.Handler(),
		middleware.CORS(d.AllowedOrigins),
	)
	r.NoRoute(func(c *gin.Context) {
		httpapi.Abort(c, http.StatusNotFound, "not_found", "Not found")
	})

	r.GET("/", d.Health.Root)
	r.GET("/health", d.Health.Live)
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	v1 := r.Group("/api/v1")
	health := v1.Group("/health")
	health.GET("/", d.Health.Live)
	health.GET("/db", d.Health.Ready)

	authn := middleware.RequireAuth(d.Tokens)
	active := middleware.RequireAccess(d.Users, d.Policy, engine.Request{}, d.Log)
	completed := middleware.RequireAccess(d.Users, d.Policy, engine.Request{RequiresProfile: true}, d.Log)

	sendOTP := []gin.HandlerFunc{d.Auth.SendOTP}
	if d.OTPLimiter != nil {
		sendOTP = append([]gin.HandlerFunc{d.OTPLimiter.Handler()}, sendOTP...)
	}

	auth := v1.Group("/auth")
	auth.POST("/phone/send-otp", sendOTP...)
	auth.POST("/phone/verify-otp", d.Auth.VerifyOTP)
	auth.POST("/google/login", d.Auth.GoogleLogin)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/complete-profile", authn, active, d.Profile.CompleteProfile)
	auth.POST("/logout", authn, d.Auth.Logout)
	auth.GET("/me", authn, active, d.Profile.Me)

	users := v1.Group("/users", authn)
	users.GET("/profile", active, d.Profile.Me)
	users.PUT("/profile", completed, d.Profile.UpdateProfile)
	users.DELETE("/account", active, d.Profile.DeleteAccount)
	users.POST("/deactivate", active, d.Profile.Deactivate)

	return r
}
