package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
)

// Context keys set by Middleware
const (
	ContextToken  = "auth_token"
	ContextClaims = "auth_claims"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned for malformed, expired or revoked tokens
var ErrInvalidToken = errors.New("invalid token")

// UserLookup finds staff accounts by email
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Claims are carried in staff bearer tokens
type Claims struct {
	Email      string          `json:"email"`
	Role       models.UserRole `json:"role"`
	Department string          `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and validates staff tokens
type Manager struct {
	secret      []byte
	tokenExpiry time.Duration
	users       UserLookup
	revoked     *cache.Cache
	now         func() time.Time
}

// NewManager creates a new authentication manager. Without AUTH_SECRET a random
// key is used, so tokens do not survive a restart.
func NewManager(cfg *config.Config, users UserLookup) *Manager {
	secret := []byte(cfg.AuthSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}

	expiry := time.Duration(cfg.AuthTokenTTL) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	return &Manager{
		secret:      secret,
		tokenExpiry: expiry,
		users:       users,
		revoked:     cache.New(expiry, time.Hour),
		now:         time.Now,
	}
}

// Authenticate validates email and password and returns a signed token
func (am *Manager) Authenticate(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	user, err := am.users.GetUserByEmail(ctx, email)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := am.Issue(user)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Issue signs a token for user
func (am *Manager) Issue(user *models.User) (string, time.Time, error) {
	now := am.now()
	expiresAt := now.Add(am.tokenExpiry)

	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if user.Department != nil {
		claims.Department = *user.Department
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(am.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses a token and checks it was not revoked
func (am *Manager) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return am.secret, nil
	}, jwt.WithTimeFunc(am.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, revoked := am.revoked.Get(claims.ID); revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoke invalidates a token until it would have expired anyway
func (am *Manager) Revoke(tokenStr string) error {
	claims, err := am.ValidateToken(tokenStr)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Sub(am.now())
	if ttl <= 0 {
		return nil
	}
	am.revoked.Set(claims.ID, struct{}{}, ttl)
	return nil
}

// HashPassword hashes a staff password for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ClaimsFrom returns the claims Middleware stored on the request
func ClaimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(ContextClaims).(*Claims)
	return claims
}

// bearerToken reads the Authorization header, falling back to ?token=
func bearerToken(c echo.Context) string {
	token := c.Request().Header.Get("Authorization")
	if token != "" {
		return strings.TrimPrefix(token, "Bearer ")
	}
	return c.QueryParam("token")
}

// Middleware creates middleware for staff route authentication
func Middleware(authManager *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized. Please login first."})
			}

			claims, err := authManager.ValidateToken(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized. Please login first."})
			}

			c.Set(ContextToken, token)
			c.Set(ContextClaims, claims)

			return next(c)
		}
	}
}

// RequireRole rejects authenticated staff whose role is not listed.
// It must run after Middleware.
func RequireRole(roles ...models.UserRole) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFrom(c)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized. Please login first."})
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "Forbidden"})
		}
	}
}

// APIKeyMiddleware guards machine-to-machine endpoints with a shared key sent in
// header. An empty key leaves the route open.
func APIKeyMiddleware(header, key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return next(c)
			}
			provided := c.Request().Header.Get(header)
			if provided == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "API key required"})
			}
			if provided != key {
				return c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "Invalid API key"})
			}
			return next(c)
		}
	}
}
