package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "wufwuf"

// ErrInvalidToken indicates a token failed validation. Bad signature,
// malformed structure and expiry all collapse to this error so callers
// cannot tell why a token was rejected.
var ErrInvalidToken = errors.New("auth: invalid token")

// UsernameClaim carries the session subject inside the claim set.
const UsernameClaim = "username"

// Claims is the decoded claim set of a validated session token.
type Claims map[string]any

// Username returns the subject username carried by the claim set.
func (c Claims) Username() (string, bool) {
	v, ok := c[UsernameClaim].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// TokenService issues and validates HS256-signed session tokens. The
// signing secret and TTL are fixed at construction; callers can neither
// extend a token's lifetime nor pick the key.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if iss := strings.TrimSpace(issuer); iss != "" {
			s.issuer = iss
		}
	}
}

// WithClock overrides the time source (useful for expiry tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService. The secret comes from startup
// configuration: it is never generated here, so restarts and horizontally
// scaled replicas keep a stable signing identity.
func NewTokenService(secret string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be greater than zero")
	}
	svc := &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// TTL reports the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs the claim set, stamping exp = now+TTL along with iat, iss and
// a unique jti. The caller's claims are copied, never mutated.
func (s *TokenService) Issue(claims map[string]any) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	payload := make(jwt.MapClaims, len(claims)+4)
	for k, v := range claims {
		payload[k] = v
	}
	payload["iss"] = s.issuer
	payload["iat"] = now.Unix()
	payload["exp"] = expiresAt.Unix()
	payload["jti"] = uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueSession issues a token carrying the username identity claim.
func (s *TokenService) IssueSession(username string) (string, time.Time, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", time.Time{}, errors.New("auth: username is required")
	}
	return s.Issue(map[string]any{
		UsernameClaim: username,
		"sub":         username,
	})
}

// Validate verifies the signature against the process secret and checks the
// token has not expired. Every failure returns ErrInvalidToken.
func (s *TokenService) Validate(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	payload := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, payload, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := s.validatePayload(payload); err != nil {
		return nil, ErrInvalidToken
	}
	return Claims(payload), nil
}

func (s *TokenService) validatePayload(payload jwt.MapClaims) error {
	iat, err := payload.GetIssuedAt()
	if err != nil || iat == nil {
		return errors.New("issued-at missing")
	}
	exp, err := payload.GetExpirationTime()
	if err != nil || exp == nil {
		return errors.New("expiry missing")
	}
	now := s.now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if iat.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if exp.Time.Before(iat.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
