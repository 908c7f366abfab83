package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-enough-entropy"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newTestVerifier(t *testing.T) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier(&AuthConfig{Secret: testSecret, Audience: "authenticated", CacheTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(v.Stop)
	return v
}

func TestTokenVerifier_Verify(t *testing.T) {
	v := newTestVerifier(t)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		wantErr error
		wantSub string
	}{
		{
			name:    "valid token",
			token:   signToken(t, testSecret, jwt.MapClaims{"sub": "user-1", "aud": "authenticated", "exp": exp, "email": "a@b.c"}),
			wantSub: "user-1",
		},
		{
			name:    "wrong secret",
			token:   signToken(t, "other", jwt.MapClaims{"sub": "user-1", "aud": "authenticated", "exp": exp}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "wrong audience",
			token:   signToken(t, testSecret, jwt.MapClaims{"sub": "user-1", "aud": "anon", "exp": exp}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "expired",
			token:   signToken(t, testSecret, jwt.MapClaims{"sub": "user-1", "aud": "authenticated", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: ErrTokenExpired,
		},
		{
			name:    "missing subject",
			token:   signToken(t, testSecret, jwt.MapClaims{"aud": "authenticated", "exp": exp}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "garbage",
			token:   "not-a-jwt",
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := v.Verify(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, identity.UserID)
		})
	}
}

func TestTokenVerifier_CachesVerifiedTokens(t *testing.T) {
	v := newTestVerifier(t)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-1", "aud": "authenticated", "exp": time.Now().Add(time.Hour).Unix()})

	_, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 1, v.cache.Len())

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
}

func TestNewTokenVerifier_RequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier(&AuthConfig{})
	assert.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := newTestVerifier(t)

	r := gin.New()
	r.GET("/me", RequireAuth(v), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.String(http.StatusOK, userID)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-42", "aud": "authenticated", "exp": time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
