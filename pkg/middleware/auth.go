package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/prohmpiriya/slot-booking/pkg/response"
)

const (
	// ContextKeyUserID is the gin context key holding the acting user
	ContextKeyUserID = "user_id"
	// ContextKeyRole is the gin context key holding the actor role
	ContextKeyRole = "role"

	// UserIDHeader is set by the API gateway after it validates the token
	UserIDHeader = "X-User-ID"
	// UserRoleHeader is set by the API gateway alongside UserIDHeader
	UserRoleHeader = "X-User-Role"

	bearerPrefix = "Bearer "
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AuthConfig configures actor extraction
type AuthConfig struct {
	Secret string
	Issuer string
	// TrustGatewayHeader accepts X-User-ID when no bearer token is present
	TrustGatewayHeader bool
}

// Claims is the subset of access token claims this service reads
type Claims struct {
	UserID string
	Role   string
}

// Auth resolves the acting user from a bearer token (or the gateway header when
// trusted) and stores it under ContextKeyUserID. Requests without an actor are rejected.
func Auth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if cfg.TrustGatewayHeader {
				if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); userID != "" {
					c.Set(ContextKeyUserID, userID)
					c.Set(ContextKeyRole, c.GetHeader(UserRoleHeader))
					c.Next()
					return
				}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("MISSING_TOKEN", "Authorization header is required"))
			return
		}

		if !strings.HasPrefix(authHeader, bearerPrefix) || len(authHeader) <= len(bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("INVALID_TOKEN", "Invalid authorization header format"))
			return
		}

		claims, err := ParseToken(cfg, authHeader[len(bearerPrefix):])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("INVALID_TOKEN", "Invalid or expired token"))
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// ParseToken validates an HMAC-signed access token. The user ID is read from
// the user_id claim, falling back to sub.
func ParseToken(cfg *AuthConfig, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims.GetSubject()
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}

	role, _ := claims["role"].(string)
	return &Claims{UserID: userID, Role: role}, nil
}

// GetUserID returns the acting user stored by Auth
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextKeyUserID)
	return userID, userID != ""
}
