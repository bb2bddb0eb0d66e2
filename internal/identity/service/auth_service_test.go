package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	identitydomain "imaro-auth/backend/internal/identity/domain"
	"imaro-auth/backend/internal/otp"
	otpdomain "imaro-auth/backend/internal/otp/domain"
	otpservice "imaro-auth/backend/internal/otp/service"
	"imaro-auth/backend/internal/otp/sms"
	"imaro-auth/backend/internal/otp/store"
	"imaro-auth/backend/internal/platform/validate"
	"imaro-auth/backend/internal/security"
	telemetrydomain "imaro-auth/backend/internal/telemetry/domain"
	userdomain "imaro-auth/backend/internal/user/domain"
	"imaro-auth/backend/internal/user/repository"
)

const (
	testPhone = "+14155550123"
	testCode  = "123456"
)

type fakeIdentities struct {
	ids map[string]*identitydomain.VerifiedIdentity
}

func (f *fakeIdentities) Verify(ctx context.Context, assertion string) (*identitydomain.VerifiedIdentity, error) {
	id, ok := f.ids[assertion]
	if !ok {
		return nil, errors.New("bad signature")
	}
	return id, nil
}

type eventSink struct {
	ch chan *telemetrydomain.AuthEvent
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan *telemetrydomain.AuthEvent, 16)}
}

func (s *eventSink) Emit(ctx context.Context, ev *telemetrydomain.AuthEvent) error {
	s.ch <- ev
	return nil
}

func (s *eventSink) next(t *testing.T) *telemetrydomain.AuthEvent {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
		return nil
	}
}

type fixture struct {
	auth   *AuthService
	users  *repository.MemoryRepository
	issuer *otpservice.Issuer
	tokens *security.TokenProvider
	events *eventSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := repository.NewMemoryRepository()
	issuer := otpservice.NewIssuer(
		store.NewMemoryStore(otpdomain.DefaultMaxAttempts),
		sms.NewLogSender(nil),
		otp.FixedGenerator(testCode),
		otpservice.Options{},
		nil, nil,
	)
	ids := &fakeIdentities{ids: map[string]*identitydomain.VerifiedIdentity{
		"google-ok": {Subject: "g-1", Email: "ada@example.com", EmailVerified: true, Name: "Ada King Lovelace"},
		"no-email":  {Subject: "g-2"},
	}}
	tokens := security.NewTestTokenProvider()
	events := newEventSink()
	resolver := NewResolver(issuer, ids, users, nil)
	return &fixture{
		auth:   NewAuthService(issuer, resolver, tokens, events, nil),
		users:  users,
		issuer: issuer,
		tokens: tokens,
		events: events,
	}
}

func (f *fixture) login(t *testing.T, phone string) *AuthResult {
	t.Helper()
	ctx := context.Background()
	if _, err := f.auth.SendOTP(ctx, phone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	res, err := f.auth.VerifyPhoneOTP(ctx, phone, testCode)
	if err != nil {
		t.Fatalf("VerifyPhoneOTP: %v", err)
	}
	return res
}

func TestVerifyPhoneOTP_CreatesUserAndTokens(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, testPhone)

	if res.AccessToken == "" || res.RefreshToken == "" || res.UserID == "" {
		t.Fatalf("result = %+v", res)
	}
	if res.ProfileCompleted {
		t.Error("new user should not have a completed profile")
	}
	if res.ExpiresIn != f.tokens.AccessTTL() {
		t.Errorf("ExpiresIn = %v", res.ExpiresIn)
	}
	claims, err := f.tokens.Verify(res.AccessToken, security.KindAccess)
	if err != nil {
		t.Fatalf("Verify access: %v", err)
	}
	if claims.Subject != res.UserID || claims.ExternalID != "phone_14155550123" {
		t.Errorf("claims = %+v", claims)
	}

	u, _ := f.users.GetByID(context.Background(), res.UserID)
	if u.AuthMethod != userdomain.AuthMethodPhone || u.Phone != testPhone || !u.PhoneVerified || !u.Active {
		t.Errorf("user = %+v", u)
	}
	if u.LastLoginAt == nil {
		t.Error("LastLoginAt not set")
	}

	if ev := f.events.next(t); ev.Type != telemetrydomain.EventUserCreated || ev.UserID != res.UserID {
		t.Errorf("first event = %+v", ev)
	}
	if ev := f.events.next(t); ev.Type != telemetrydomain.EventUserLogin || ev.AuthMethod != "phone" {
		t.Errorf("second event = %+v", ev)
	}
}

func TestVerifyPhoneOTP_SecondLoginReusesUser(t *testing.T) {
	f := newFixture(t)
	first := f.login(t, testPhone)
	u1, _ := f.users.GetByID(context.Background(), first.UserID)

	time.Sleep(2 * time.Millisecond)
	second := f.login(t, testPhone)
	if second.UserID != first.UserID {
		t.Fatalf("second login user = %q, want %q", second.UserID, first.UserID)
	}
	if f.users.Len() != 1 {
		t.Errorf("users = %d, want 1", f.users.Len())
	}
	u2, _ := f.users.GetByID(context.Background(), first.UserID)
	if !u2.LastLoginAt.After(*u1.LastLoginAt) {
		t.Errorf("LastLoginAt not advanced: %v -> %v", u1.LastLoginAt, u2.LastLoginAt)
	}
}

func TestVerifyPhoneOTP_CodeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.login(t, testPhone)
	_, err := f.auth.VerifyPhoneOTP(context.Background(), testPhone, testCode)
	if !errors.Is(err, ErrAuthenticationFailed) || !errors.Is(err, otpdomain.ErrNotFound) {
		t.Errorf("err = %v, want authentication failed / not found", err)
	}
}

func TestVerifyPhoneOTP_WrongCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.auth.SendOTP(ctx, testPhone); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	for _, want := range []int{2, 1} {
		_, err := f.auth.VerifyPhoneOTP(ctx, testPhone, "000000")
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("err = %v", err)
		}
		if got, ok := otpdomain.RemainingAttempts(err); !ok || got != want {
			t.Errorf("remaining = %d, %v; want %d", got, ok, want)
		}
	}
	if _, err := f.auth.VerifyPhoneOTP(ctx, testPhone, "000000"); !errors.Is(err, otpdomain.ErrAttemptsExceeded) {
		t.Errorf("third wrong code err = %v", err)
	}
	if _, err := f.auth.VerifyPhoneOTP(ctx, testPhone, testCode); !errors.Is(err, otpdomain.ErrNotFound) {
		t.Errorf("after exhaustion err = %v", err)
	}
	if f.users.Len() != 0 {
		t.Error("failed verification must not create users")
	}
}

func TestVerifyPhoneOTP_Validation(t *testing.T) {
	f := newFixture(t)
	cases := []struct{ phone, code string }{
		{"4155550123", testCode},
		{testPhone, "12ab56"},
		{testPhone, "123"},
	}
	for _, tc := range cases {
		if _, err := f.auth.VerifyPhoneOTP(context.Background(), tc.phone, tc.code); !errors.Is(err, validate.ErrInvalid) {
			t.Errorf("VerifyPhoneOTP(%q, %q) err = %v, want validation error", tc.phone, tc.code, err)
		}
	}
}

func TestSendOTP_InvalidPhone(t *testing.T) {
	f := newFixture(t)
	if _, err := f.auth.SendOTP(context.Background(), "+0123"); !errors.Is(err, validate.ErrInvalid) {
		t.Errorf("err = %v", err)
	}
}

func TestGoogleLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.auth.GoogleLogin(ctx, "google-ok")
	if err != nil {
		t.Fatalf("GoogleLogin: %v", err)
	}
	u, _ := f.users.GetByID(ctx, res.UserID)
	if u.AuthMethod != userdomain.AuthMethodGoogle || u.ExternalID != "g-1" || u.Email != "ada@example.com" {
		t.Errorf("user = %+v", u)
	}
	if u.FirstName != "Ada" || u.LastName != "King Lovelace" || !u.EmailVerified {
		t.Errorf("name/verified = %q %q %v", u.FirstName, u.LastName, u.EmailVerified)
	}

	again, err := f.auth.GoogleLogin(ctx, "google-ok")
	if err != nil || again.UserID != res.UserID {
		t.Errorf("second login = %+v, %v", again, err)
	}
}

func TestGoogleLogin_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, assertion := range []string{"forged", "no-email"} {
		if _, err := f.auth.GoogleLogin(ctx, assertion); !errors.Is(err, ErrIdentityRejected) {
			t.Errorf("GoogleLogin(%q) err = %v", assertion, err)
		}
	}
	if _, err := f.auth.GoogleLogin(ctx, ""); !errors.Is(err, validate.ErrInvalid) {
		t.Errorf("empty token err = %v", err)
	}
	if f.users.Len() != 0 {
		t.Error("rejected logins must not create users")
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	res := f.login(t, testPhone)

	out, err := f.auth.Refresh(context.Background(), res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := f.tokens.Verify(out.AccessToken, security.KindAccess)
	if err != nil || claims.Subject != res.UserID {
		t.Errorf("refreshed claims = %+v, %v", claims, err)
	}
	if _, err := f.auth.Refresh(context.Background(), res.AccessToken); !errors.Is(err, security.ErrWrongKind) {
		t.Errorf("refresh with access token err = %v", err)
	}
	if _, err := f.auth.Refresh(context.Background(), res.RefreshToken); err != nil {
		t.Errorf("refresh token should stay usable: %v", err)
	}
}

// racingRepo hides the user from the first lookup so Create hits the unique constraint.
type racingRepo struct {
	*repository.MemoryRepository
	once sync.Once
}

func (r *racingRepo) GetByExternalID(ctx context.Context, externalID string) (*userdomain.User, error) {
	hide := false
	r.once.Do(func() { hide = true })
	if hide {
		return nil, nil
	}
	return r.MemoryRepository.GetByExternalID(ctx, externalID)
}

type okVerifier struct{}

func (okVerifier) Verify(ctx context.Context, phone, code string) error { return nil }

func TestResolvePhoneAuth_LostCreateRaceRereads(t *testing.T) {
	repo := &racingRepo{MemoryRepository: repository.NewMemoryRepository()}
	existing := &userdomain.User{
		ID:         "existing",
		ExternalID: identitydomain.PhoneSubject(testPhone),
		AuthMethod: userdomain.AuthMethodPhone,
		Phone:      testPhone,
		Active:     true,
	}
	_ = repo.MemoryRepository.Create(context.Background(), existing)

	r := NewResolver(okVerifier{}, nil, repo, nil)
	res, err := r.ResolvePhoneAuth(context.Background(), testPhone, testCode)
	if err != nil {
		t.Fatalf("ResolvePhoneAuth: %v", err)
	}
	if res.User.ID != "existing" || res.Created {
		t.Errorf("resolution = %+v", res)
	}
	if repo.Len() != 1 {
		t.Errorf("users = %d", repo.Len())
	}
}

func TestResolveExternalAuth_NotConfigured(t *testing.T) {
	r := NewResolver(okVerifier{}, nil, repository.NewMemoryRepository(), nil)
	if _, err := r.ResolveExternalAuth(context.Background(), "x"); !errors.Is(err, ErrIdentityRejected) {
		t.Errorf("err = %v", err)
	}
}
