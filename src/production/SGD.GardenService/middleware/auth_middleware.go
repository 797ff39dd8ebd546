package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/jwt"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
)

type contextKey string

// Gin context keys set by Authenticate
const (
	UsernameContextKey contextKey = "username"
	UserRoleContextKey contextKey = "user_role"
)

// AuthMiddleware guards the operator API with JWT access tokens
type AuthMiddleware struct {
	jwtService *jwt.Service
	enabled    bool
	config     Config
}

// Config names where the access token is looked up
type Config struct {
	AccessTokenHeader string
	// AccessTokenCookie is checked when the header is absent
	AccessTokenCookie string
}

// DefaultConfig reads "Authorization: Bearer" first, then the access_token cookie
func DefaultConfig() Config {
	return Config{
		AccessTokenHeader: "Authorization",
		AccessTokenCookie: "access_token",
	}
}

// NewAuthMiddleware creates a new auth middleware. With enabled false every
// request passes through untouched.
func NewAuthMiddleware(jwtService *jwt.Service, enabled bool, config Config) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		enabled:    enabled,
		config:     config,
	}
}

// Enabled reports whether tokens are checked
func (m *AuthMiddleware) Enabled() bool {
	return m.enabled
}

func extractToken(r *http.Request, headerName, cookieName string) string {
	if token := r.Header.Get(headerName); token != "" {
		return strings.TrimPrefix(token, "Bearer ")
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func unauthenticated(c *gin.Context, detail string) {
	appErr := api_models.NewAppError(api_models.ErrUnauthenticated, detail)
	c.AbortWithStatusJSON(appErr.Code.HTTPStatus(), api_models.Failure(appErr))
}

// Authenticate rejects requests without a valid access token with 1005 UNAUTHENTICATED.
// Refresh tokens are not accepted here.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		token := extractToken(c.Request, m.config.AccessTokenHeader, m.config.AccessTokenCookie)
		if token == "" {
			unauthenticated(c, "missing access token")
			return
		}
		claims, err := m.jwtService.ValidateAccessToken(token)
		if err != nil {
			unauthenticated(c, "invalid access token")
			return
		}

		c.Set(string(UsernameContextKey), claims.Username)
		c.Set(string(UserRoleContextKey), claims.Role)
		c.Next()
	}
}

// GetUserFromGinContext returns the operator set by Authenticate
func GetUserFromGinContext(c *gin.Context) (string, error) {
	return contextString(c, UsernameContextKey)
}

// GetRoleFromGinContext returns the operator's role set by Authenticate
func GetRoleFromGinContext(c *gin.Context) (string, error) {
	return contextString(c, UserRoleContextKey)
}

func contextString(c *gin.Context, key contextKey) (string, error) {
	val, ok := c.Get(string(key))
	if !ok {
		return "", fmt.Errorf("%s not found in context", key)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%s in context is %T, not a string", key, val)
	}
	return str, nil
}
