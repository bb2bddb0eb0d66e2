package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"imaro-auth/backend/internal/logger"
	otpservice "imaro-auth/backend/internal/otp/service"
	"imaro-auth/backend/internal/platform/validate"
	"imaro-auth/backend/internal/security"
	"imaro-auth/backend/internal/telemetry"
	telemetrydomain "imaro-auth/backend/internal/telemetry/domain"
	userdomain "imaro-auth/backend/internal/user/domain"
)

// AuthResult is the token bundle returned by a successful login.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	UserID           string
	ProfileCompleted bool
	ExpiresIn        time.Duration
}

// RefreshResult is a new access token minted from a refresh token.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// OTPRequester issues codes by SMS.
type OTPRequester interface {
	RequestOTP(ctx context.Context, phone string) (*otpservice.RequestResult, error)
	CodeLength() int
}

// AuthService implements phone OTP login, Google login and access token refresh.
type AuthService struct {
	otp      OTPRequester
	resolver *Resolver
	tokens   *security.TokenProvider
	events   telemetry.EventEmitter
	log      *zap.Logger
	nowF     func() time.Time
}

// NewAuthService returns an AuthService. events may be nil.
func NewAuthService(otp OTPRequester, resolver *Resolver, tokens *security.TokenProvider, events telemetry.EventEmitter, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{otp: otp, resolver: resolver, tokens: tokens, events: events, log: log, nowF: time.Now}
}

// SendOTP normalizes phone and sends it a fresh code.
func (s *AuthService) SendOTP(ctx context.Context, phone string) (*otpservice.RequestResult, error) {
	return s.otp.RequestOTP(ctx, validate.SanitizePhone(phone))
}

// VerifyPhoneOTP checks code for phone and logs the user in.
func (s *AuthService) VerifyPhoneOTP(ctx context.Context, phone, code string) (*AuthResult, error) {
	phone = validate.SanitizePhone(phone)
	if err := validate.Phone(phone); err != nil {
		return nil, err
	}
	if err := validate.OTPCode(code, s.otp.CodeLength()); err != nil {
		return nil, err
	}
	res, err := s.resolver.ResolvePhoneAuth(ctx, phone, code)
	if err != nil {
		return nil, err
	}
	return s.login(ctx, res)
}

// GoogleLogin verifies a Google / Firebase ID token and logs the user in.
func (s *AuthService) GoogleLogin(ctx context.Context, idToken string) (*AuthResult, error) {
	if err := validate.Var("id_token", idToken, "required"); err != nil {
		return nil, err
	}
	res, err := s.resolver.ResolveExternalAuth(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return s.login(ctx, res)
}

// Refresh mints a new access token from a refresh token. The refresh token is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	access, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: access.Token, ExpiresIn: s.tokens.AccessTTL()}, nil
}

func (s *AuthService) login(ctx context.Context, res *Resolution) (*AuthResult, error) {
	u := res.User
	access, err := s.tokens.IssueAccess(u.ID, u.ExternalID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(u.ID, u.ExternalID)
	if err != nil {
		return nil, err
	}
	if res.Created {
		s.emit(ctx, telemetrydomain.EventUserCreated, u)
	}
	s.emit(ctx, telemetrydomain.EventUserLogin, u)
	logger.WithContext(ctx, s.log).Info("user logged in",
		zap.String("user_id", u.ID),
		zap.String("auth_method", string(u.AuthMethod)),
		zap.Bool("new_user", res.Created),
	)
	return &AuthResult{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		UserID:           u.ID,
		ProfileCompleted: u.ProfileCompleted,
		ExpiresIn:        s.tokens.AccessTTL(),
	}, nil
}

func (s *AuthService) emit(ctx context.Context, t telemetrydomain.EventType, u *userdomain.User) {
	if s.events == nil {
		return
	}
	ev := telemetrydomain.NewAuthEvent(t, u.ID, s.nowF())
	ev.ExternalID = u.ExternalID
	ev.AuthMethod = string(u.AuthMethod)
	ev.RequestID = logger.RequestID(ctx)
	telemetry.EmitAsync(s.events, s.log, ev)
}
