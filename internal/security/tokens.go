package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the shortest HMAC secret NewTokenProvider accepts.
const MinSecretLen = 32

var (
	// ErrInvalidToken is returned when a token is malformed or its signature does not verify.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a well-formed token is past its expiry.
	ErrTokenExpired = errors.New("token has expired")
	// ErrWrongKind is returned when a refresh token is used as an access token or the reverse.
	ErrWrongKind = errors.New("wrong token type")
	// ErrWeakSecret is returned by NewTokenProvider for secrets shorter than MinSecretLen.
	ErrWeakSecret = errors.New("token secret too short")
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the signed token payload.
type Claims struct {
	jwt.RegisteredClaims
	ExternalID string    `json:"ext_id"`
	Kind       TokenKind `json:"type"`
}

// IssuedToken is a signed token and its expiry.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenProvider issues and validates HS256 access and refresh tokens with one process-wide secret.
// Nothing is persisted; expiry is the only way a token stops being valid.
type TokenProvider struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with secret.
func NewTokenProvider(secret []byte, issuer string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	return &TokenProvider{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowF:       time.Now,
	}, nil
}

// WithClock overrides the time source. Intended for tests.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	p.nowF = now
	return p
}

// AccessTTL returns the lifetime of access tokens.
func (p *TokenProvider) AccessTTL() time.Duration {
	return p.accessTTL
}

// IssueAccess issues an access token for the internal user id and its external subject.
func (p *TokenProvider) IssueAccess(userID, externalID string) (IssuedToken, error) {
	return p.issue(userID, externalID, KindAccess, p.accessTTL)
}

// IssueRefresh issues a refresh token for the internal user id and its external subject.
func (p *TokenProvider) IssueRefresh(userID, externalID string) (IssuedToken, error) {
	return p.issue(userID, externalID, KindRefresh, p.refreshTTL)
}

func (p *TokenProvider) issue(userID, externalID string, kind TokenKind, ttl time.Duration) (IssuedToken, error) {
	jti, err := generateJTI()
	if err != nil {
		return IssuedToken{}, err
	}
	now := p.nowF()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		ExternalID: externalID,
		Kind:       kind,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, kind and expiry, in that order, and returns the claims.
// A token of the wrong kind fails with ErrWrongKind whether or not it has expired.
func (p *TokenProvider) Verify(tokenString string, want TokenKind) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ExpiresAt == nil || claims.Issuer != p.issuer {
		return nil, ErrInvalidToken
	}
	if claims.Kind != want {
		return nil, ErrWrongKind
	}
	if p.nowF().After(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// Refresh validates a refresh token and mints a new access token for the same subject.
// The refresh token itself is left untouched.
func (p *TokenProvider) Refresh(refreshToken string) (IssuedToken, error) {
	claims, err := p.Verify(refreshToken, KindRefresh)
	if err != nil {
		return IssuedToken{}, err
	}
	return p.IssueAccess(claims.Subject, claims.ExternalID)
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
