package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	jwt "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/jwt"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService authenticates the garden operator configured through the environment
type AuthService struct {
	username     string
	passwordHash []byte
	jwtService   *jwt.Service
}

// NewAuthService hashes the configured operator password once at startup
func NewAuthService(admin config.AdminConfig, jwtService *jwt.Service) (*AuthService, error) {
	if admin.Username == "" || admin.Password == "" {
		return nil, errors.New("operator username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash operator password: %w", err)
	}
	return &AuthService{
		username:     admin.Username,
		passwordHash: hash,
		jwtService:   jwtService,
	}, nil
}

// Login authenticates the operator and returns tokens
func (s *AuthService) Login(req api_models.LoginRequest) (*api_models.AuthResponse, *api_models.TokenPair, error) {
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password))
	if !userOK || passErr != nil {
		return nil, nil, ErrInvalidCredentials
	}
	return s.issue(s.username)
}

// RefreshTokens rotates both tokens from a valid refresh token
func (s *AuthService) RefreshTokens(refreshToken string) (*api_models.AuthResponse, *api_models.TokenPair, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, errors.New("invalid refresh token")
	}
	if claims.Username != s.username {
		return nil, nil, errors.New("operator no longer exists")
	}
	return s.issue(claims.Username)
}

func (s *AuthService) issue(username string) (*api_models.AuthResponse, *api_models.TokenPair, error) {
	pair, err := s.jwtService.GenerateTokens(username, api_models.RoleOperator)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate tokens: %w", err)
	}
	return &api_models.AuthResponse{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.ExpiresAt,
		Username:    username,
		Role:        api_models.RoleOperator,
	}, pair, nil
}
