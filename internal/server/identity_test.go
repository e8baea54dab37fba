package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTResolver(t *testing.T) {
	_, err := NewJWTResolver(nil, "HS256")
	assert.Error(t, err)

	_, err = NewJWTResolver([]byte("k"), "RS256")
	assert.Error(t, err)

	r, err := NewJWTResolver([]byte("k"), "")
	require.NoError(t, err)
	assert.Equal(t, "HS256", r.alg)
}

func TestNewIdentityResolver(t *testing.T) {
	r, err := NewIdentityResolver(&Config{})
	require.NoError(t, err)
	assert.IsType(t, AnonymousResolver{}, r)

	r, err = NewIdentityResolver(&Config{JWTSecret: "k", JWTAlgorithm: "HS384"})
	require.NoError(t, err)
	assert.IsType(t, &JWTResolver{}, r)
}

func TestJWTResolver_Resolve(t *testing.T) {
	resolver, err := NewJWTResolver([]byte("test-secret"), "HS256")
	require.NoError(t, err)

	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		header  bool
		want    string
		wantErr error
	}{
		{
			name:   "id claim from header",
			token:  signToken(t, "test-secret", jwt.MapClaims{"id": "alice", "exp": future}),
			header: true,
			want:   "alice",
		},
		{
			name:  "numeric id claim",
			token: signToken(t, "test-secret", jwt.MapClaims{"id": 42, "signedAt": "2026-10-14T00:00:00Z"}),
			want:  "42",
		},
		{
			name:  "sub claim fallback",
			token: signToken(t, "test-secret", jwt.MapClaims{"sub": "bob"}),
			want:  "bob",
		},
		{
			name:    "missing token",
			wantErr: ErrMissingCredential,
		},
		{
			name:    "expired token",
			token:   signToken(t, "test-secret", jwt.MapClaims{"id": "alice", "exp": past}),
			wantErr: ErrInvalidCredential,
		},
		{
			name:    "wrong secret",
			token:   signToken(t, "other-secret", jwt.MapClaims{"id": "alice"}),
			wantErr: ErrInvalidCredential,
		},
		{
			name:    "no user claim",
			token:   signToken(t, "test-secret", jwt.MapClaims{"exp": future}),
			wantErr: ErrInvalidCredential,
		},
		{
			name:    "garbage",
			token:   "not.a.jwt",
			wantErr: ErrInvalidCredential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/chat"
			if tt.token != "" && !tt.header {
				target += "?token=" + tt.token
			}
			r := httptest.NewRequest("GET", target, nil)
			if tt.header {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}

			got, err := resolver.Resolve(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJWTResolver_RejectsOtherHMACAlgorithm(t *testing.T) {
	resolver, err := NewJWTResolver([]byte("test-secret"), "HS256")
	require.NoError(t, err)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"id": "alice"}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/chat?token="+signed, nil)
	_, err = resolver.Resolve(r)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAnonymousResolver(t *testing.T) {
	got, err := AnonymousResolver{}.Resolve(httptest.NewRequest("GET", "/chat", nil))
	assert.NoError(t, err)
	assert.Empty(t, got)
}
