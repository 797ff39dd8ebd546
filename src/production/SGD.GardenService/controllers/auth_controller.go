package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	service "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/auth"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/middleware"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
)

const refreshCookie = "refresh_token"

// AuthController handles operator login and token rotation
type AuthController struct {
	authService     *service.AuthService
	refreshDuration time.Duration
	secureCookies   bool
	logger          *logger.Logger
}

// NewAuthController creates a new auth controller. A nil authService keeps
// the routes mounted but answers login and refresh with an error.
func NewAuthController(authService *service.AuthService, refreshDuration time.Duration, secureCookies bool, log *logger.Logger) *AuthController {
	return &AuthController{
		authService:     authService,
		refreshDuration: refreshDuration,
		secureCookies:   secureCookies,
		logger:          log.WithComponent("auth_controller"),
	}
}

// RegisterRoutes registers the auth routes
func (h *AuthController) RegisterRoutes(router gin.IRouter, authMiddleware *middleware.AuthMiddleware) {
	auth := router.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshToken)
		auth.POST("/logout", authMiddleware.Authenticate(), h.Logout)
		auth.GET("/me", authMiddleware.Authenticate(), h.Me)
	}
}

// Login handles operator login
func (h *AuthController) Login(c *gin.Context) {
	if h.loginDisabled(c) {
		return
	}
	var req api_models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, tokens, err := h.authService.Login(req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Logger.Warn().Str("username", req.Username).Msg("Failed login")
			respondError(c, h.logger, api_models.NewAppError(api_models.ErrUnauthenticated, "invalid username or password"))
			return
		}
		respondError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	respond(c, http.StatusOK, "Login successful.", resp)
}

// RefreshToken rotates the token pair using the refresh cookie
func (h *AuthController) RefreshToken(c *gin.Context) {
	if h.loginDisabled(c) {
		return
	}
	refreshToken, err := c.Cookie(refreshCookie)
	if err != nil || refreshToken == "" {
		respondError(c, h.logger, api_models.NewAppError(api_models.ErrUnauthenticated, "refresh token not found"))
		return
	}

	resp, tokens, err := h.authService.RefreshTokens(refreshToken)
	if err != nil {
		respondError(c, h.logger, api_models.NewAppError(api_models.ErrUnauthenticated, err.Error()))
		return
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	respond(c, http.StatusOK, "Token refreshed.", resp)
}

// Logout clears the refresh cookie
func (h *AuthController) Logout(c *gin.Context) {
	c.SetCookie(refreshCookie, "", -1, "/", "", h.secureCookies, true)
	respond(c, http.StatusOK, "Logged out.", nil)
}

// Me returns the authenticated operator
func (h *AuthController) Me(c *gin.Context) {
	username, _ := middleware.GetUserFromGinContext(c)
	role, _ := middleware.GetRoleFromGinContext(c)
	respond(c, http.StatusOK, "Success", gin.H{"username": username, "role": role})
}

func (h *AuthController) loginDisabled(c *gin.Context) bool {
	if h.authService != nil {
		return false
	}
	respondError(c, h.logger, api_models.NewAppError(api_models.ErrInvalidRequest,
		"operator login is unavailable: authentication is disabled and no ADMIN_PASSWORD is set"))
	return true
}

func (h *AuthController) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, token, int(h.refreshDuration.Seconds()), "/", "", h.secureCookies, true)
}
