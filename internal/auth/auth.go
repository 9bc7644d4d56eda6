package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

// Caller is who presented a token. A non-empty Tenant pins the caller to one
// organization; an empty Tenant may act for any of them.
type Caller struct {
	Name   string
	Tenant string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Caller, error)
}

// TokenAuthenticator maps static bearer tokens to callers.
type TokenAuthenticator struct {
	callers map[[sha256.Size]byte]Caller
}

// NewTokenAuthenticator builds an authenticator from token -> caller pairs.
// Blank tokens are ignored.
func NewTokenAuthenticator(tokens map[string]Caller) *TokenAuthenticator {
	a := &TokenAuthenticator{callers: make(map[[sha256.Size]byte]Caller, len(tokens))}
	for token, c := range tokens {
		if token = strings.TrimSpace(token); token != "" {
			a.callers[sha256.Sum256([]byte(token))] = c
		}
	}
	return a
}

// NewDevTokenAuthenticator accepts one shared operator token for every tenant.
func NewDevTokenAuthenticator(token string) *TokenAuthenticator {
	return NewTokenAuthenticator(map[string]Caller{token: {Name: "dev"}})
}

func (a *TokenAuthenticator) Authenticate(r *http.Request) (Caller, error) {
	token, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return Caller{}, err
	}
	sum := sha256.Sum256([]byte(token))
	for known, c := range a.callers {
		if subtle.ConstantTimeCompare(sum[:], known[:]) == 1 {
			return c, nil
		}
	}
	return Caller{}, ErrInvalidToken
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingBearer
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidToken
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the authenticated caller, if the request had one.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
