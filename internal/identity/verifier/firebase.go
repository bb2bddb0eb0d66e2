// Package verifier checks third-party identity tokens (Firebase / Google sign-in ID tokens).
package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"

	"imaro-auth/backend/internal/identity/domain"
)

// DefaultMinRefresh bounds how often an unknown kid may trigger a JWKS refetch.
const DefaultMinRefresh = time.Minute

// DefaultJWKSURL serves the public keys that sign Firebase ID tokens.
const DefaultJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

const issuerPrefix = "https://securetoken.google.com/"

// ErrAssertionRejected is returned for any token that does not verify.
var ErrAssertionRejected = errors.New("identity assertion rejected")

type firebaseClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// FirebaseVerifier validates RS256 ID tokens issued for one Firebase project.
type FirebaseVerifier struct {
	projectID string
	keys      *keyCache
	nowF      func() time.Time
}

// NewFirebaseVerifier returns a verifier for projectID using keys from jwksURL, cached for cacheTTL.
// Empty jwksURL uses DefaultJWKSURL.
func NewFirebaseVerifier(projectID, jwksURL string, cacheTTL time.Duration, client *http.Client) *FirebaseVerifier {
	if jwksURL == "" {
		jwksURL = DefaultJWKSURL
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	v := &FirebaseVerifier{projectID: projectID, nowF: time.Now}
	v.keys = &keyCache{
		url:        jwksURL,
		ttl:        cacheTTL,
		minRefresh: DefaultMinRefresh,
		client:     client,
		now:        func() time.Time { return v.nowF() },
	}
	return v
}

// WithMinRefresh sets the minimum interval between refetches caused by unknown key IDs.
func (v *FirebaseVerifier) WithMinRefresh(d time.Duration) *FirebaseVerifier {
	v.keys.minRefresh = d
	return v
}

// WithClock overrides the time source. Intended for tests.
func (v *FirebaseVerifier) WithClock(now func() time.Time) *FirebaseVerifier {
	v.nowF = now
	return v
}

// Verify checks signature, issuer, audience and lifetime of assertion and returns the identity it names.
func (v *FirebaseVerifier) Verify(ctx context.Context, assertion string) (*domain.VerifiedIdentity, error) {
	if v.projectID == "" {
		return nil, fmt.Errorf("%w: identity provider not configured", ErrAssertionRejected)
	}
	claims := &firebaseClaims{}
	_, err := jwt.ParseWithClaims(assertion, claims,
		func(t *jwt.Token) (interface{}, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid header")
			}
			return v.keys.lookup(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.nowF),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssertionRejected, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrAssertionRejected)
	}
	return &domain.VerifiedIdentity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}

// keyCache holds the provider JWKS. It refetches after ttl, and early when an unknown kid shows up,
// but at most once per minRefresh for unknown kids. Concurrent fetches share one request.
type keyCache struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	client     *http.Client
	now        func() time.Time
	group      singleflight.Group

	mu          sync.Mutex
	set         jwk.Set
	fetchedAt   time.Time
	lastAttempt time.Time
}

func (c *keyCache) lookup(ctx context.Context, kid string) (interface{}, error) {
	now := c.now()
	c.mu.Lock()
	set := c.set
	stale := set == nil || now.Sub(c.fetchedAt) > c.ttl
	recent := now.Sub(c.lastAttempt) < c.minRefresh
	c.mu.Unlock()

	if !stale {
		if key, ok := set.LookupKeyID(kid); ok {
			return export(key)
		}
		if recent {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
	}
	v, err, _ := c.group.Do("jwks", func() (interface{}, error) {
		c.mu.Lock()
		set, recent := c.set, c.now().Sub(c.lastAttempt) < c.minRefresh
		c.mu.Unlock()
		if set != nil && recent {
			return set, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	key, ok := v.(jwk.Set).LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return export(key)
}

func export(key jwk.Key) (interface{}, error) {
	var raw interface{}
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("export signing key: %w", err)
	}
	return raw, nil
}

func (c *keyCache) refresh(ctx context.Context) (jwk.Set, error) {
	c.mu.Lock()
	c.lastAttempt = c.now()
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	c.mu.Lock()
	c.set = set
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return set, nil
}
