package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingCredential is returned when identity binding is enabled and
	// the upgrade request carries no bearer token.
	ErrMissingCredential = errors.New("missing bearer token")

	// ErrInvalidCredential is returned for tokens that fail verification or
	// carry no user id.
	ErrInvalidCredential = errors.New("invalid bearer token")
)

// IdentityResolver extracts the authenticated user of an upgrade request.
// The tokens themselves are issued by the upstream identity service.
type IdentityResolver interface {
	Resolve(r *http.Request) (string, error)
}

// AnonymousResolver binds no identity. The gateway then trusts the userId
// carried in each payload.
type AnonymousResolver struct{}

// Resolve always returns an empty identity.
func (AnonymousResolver) Resolve(*http.Request) (string, error) { return "", nil }

// JWTResolver verifies HMAC-signed access tokens and returns their user id.
type JWTResolver struct {
	secret []byte
	alg    string
}

// NewJWTResolver returns a resolver for tokens signed with secret using alg
// (HS256, HS384 or HS512).
func NewJWTResolver(secret []byte, alg string) (*JWTResolver, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	alg = strings.ToUpper(strings.TrimSpace(alg))
	switch alg {
	case "":
		alg = jwt.SigningMethodHS256.Alg()
	case jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg():
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q (use HS256/HS384/HS512)", alg)
	}
	return &JWTResolver{secret: secret, alg: alg}, nil
}

// NewIdentityResolver picks the resolver for cfg: JWT when a secret is
// configured, anonymous otherwise.
func NewIdentityResolver(cfg *Config) (IdentityResolver, error) {
	if cfg.JWTSecret == "" {
		return AnonymousResolver{}, nil
	}
	return NewJWTResolver([]byte(cfg.JWTSecret), cfg.JWTAlgorithm)
}

// Resolve reads the token from the Authorization header, or from the token
// query parameter for browsers that cannot set headers on a websocket.
func (j *JWTResolver) Resolve(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", ErrMissingCredential
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{j.alg}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: unexpected claims type", ErrInvalidCredential)
	}

	userID := claimString(claims["id"])
	if userID == "" {
		userID, _ = claims.GetSubject()
	}
	if userID == "" {
		return "", fmt.Errorf("%w: no user id claim", ErrInvalidCredential)
	}
	return userID, nil
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// claimString accepts string and numeric ids; the upstream service issues
// numeric primary keys.
func claimString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}
