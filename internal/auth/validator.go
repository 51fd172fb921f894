// Package auth validates bearer tokens and carries the resulting identity
// through the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Reason classifies a credential failure. It is for logs and metrics only;
// every reason maps to the same client-visible 401.
type Reason string

const (
	ReasonMissing          Reason = "missing"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonExpired          Reason = "expired"
)

// DefaultScheme is the Authorization scheme accepted when none is configured.
const DefaultScheme = "Bearer"

var (
	errNoHeader    = errors.New("authorization header absent")
	errBadScheme   = errors.New("authorization header is not a bearer credential")
	errEmptySecret = errors.New("no signing secret configured")
)

// Error is returned for every failed validation.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "unauthorized: " + string(e.Reason)
	}
	return fmt.Sprintf("unauthorized: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Claims is the identity extracted from a verified token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Extra holds every other claim, stringified.
	Extra map[string]string
}

// Validator verifies HMAC-signed JWTs against a shared secret.
type Validator struct {
	secret []byte
	scheme string
	now    func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithScheme sets the Authorization scheme (default "Bearer").
func WithScheme(scheme string) Option {
	return func(v *Validator) {
		if scheme != "" {
			v.scheme = scheme
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a Validator. An empty secret yields a validator that
// rejects every token.
func NewValidator(secret string, opts ...Option) *Validator {
	v := &Validator{
		secret: []byte(secret),
		scheme: DefaultScheme,
		now:    time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate checks the raw Authorization header value and returns the
// token's claims.
func (v *Validator) Validate(header string) (*Claims, error) {
	token, err := v.extract(header)
	if err != nil {
		return nil, &Error{Reason: ReasonMissing, Err: err}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithTimeFunc(v.now),
	)

	mc := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, mc, v.key); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &Error{Reason: ReasonExpired, Err: err}
		}
		return nil, &Error{Reason: ReasonInvalidSignature, Err: err}
	}

	return claimsFromMap(mc), nil
}

func (v *Validator) extract(header string) (string, error) {
	if header == "" {
		return "", errNoHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, v.scheme) {
		return "", errBadScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errBadScheme
	}
	return token, nil
}

func (v *Validator) key(_ *jwt.Token) (any, error) {
	if len(v.secret) == 0 {
		return nil, errEmptySecret
	}
	return v.secret, nil
}

// registered lists claims that map onto Claims fields rather than Extra.
var registered = map[string]bool{"sub": true, "iat": true, "exp": true}

func claimsFromMap(mc jwt.MapClaims) *Claims {
	c := &Claims{Extra: make(map[string]string)}

	c.Subject, _ = mc.GetSubject()
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}

	for k, val := range mc {
		if registered[k] {
			continue
		}
		switch x := val.(type) {
		case string:
			c.Extra[k] = x
		case nil:
			c.Extra[k] = ""
		default:
			c.Extra[k] = fmt.Sprint(x)
		}
	}
	return c
}

// Sign issues an HS256 token for subject. A zero ttl produces a token with no
// expiry.
func Sign(secret, subject string, ttl time.Duration, extra map[string]string) (string, error) {
	if secret == "" {
		return "", errEmptySecret
	}
	now := time.Now()
	mc := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
	}
	if ttl != 0 {
		mc["exp"] = now.Add(ttl).Unix()
	}
	for k, val := range extra {
		if !registered[k] {
			mc[k] = val
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying c.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims attached by WithClaims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}
