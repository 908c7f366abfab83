package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rcn123/rpg-lobby/pkg/response"
)

const (
	// ContextKeyUserID is the gin context key holding the caller's user id
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the gin context key holding the caller's email claim
	ContextKeyEmail = "user_email"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Identity is what the service knows about an authenticated caller
type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// tokenClaims are the claims the identity provider puts in its tokens
type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthConfig configures token verification
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
	CacheTTL time.Duration
}

// TokenVerifier verifies HS256 tokens issued by the identity provider and
// remembers verified tokens for a short while.
type TokenVerifier struct {
	config *AuthConfig
	cache  *ttlcache.Cache[string, *Identity]
	parser *jwt.Parser
	now    func() time.Time
}

// NewTokenVerifier creates a verifier. Call Stop to release the cache janitor.
func NewTokenVerifier(cfg *AuthConfig) (*TokenVerifier, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, errors.New("auth secret is required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, *Identity](cfg.CacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *Identity](),
	)
	go cache.Start()

	return &TokenVerifier{
		config: cfg,
		cache:  cache,
		parser: jwt.NewParser(opts...),
		now:    time.Now,
	}, nil
}

// Stop stops the cache janitor
func (v *TokenVerifier) Stop() {
	v.cache.Stop()
}

// Verify checks the token signature and claims and returns the caller
func (v *TokenVerifier) Verify(token string) (*Identity, error) {
	key := tokenKey(token)
	if item := v.cache.Get(key); item != nil {
		identity := item.Value()
		if v.now().Before(identity.ExpiresAt) {
			return identity, nil
		}
		v.cache.Delete(key)
	}

	var claims tokenClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	identity := &Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	ttl := v.config.CacheTTL
	if remaining := identity.ExpiresAt.Sub(v.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl > 0 {
		v.cache.Set(key, identity, ttl)
	}
	return identity, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's user id under ContextKeyUserID.
func RequireAuth(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization bearer token is required")
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, ErrTokenExpired) {
				message = "Token expired"
			}
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
			return
		}

		c.Set(ContextKeyUserID, identity.UserID)
		if identity.Email != "" {
			c.Set(ContextKeyEmail, identity.Email)
		}
		c.Next()
	}
}

// GetUserID returns the authenticated caller's id
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextKeyUserID)
	return userID, userID != ""
}
