package mockapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/signal-dashboard/internal/config"
	"github.com/yourorg/signal-dashboard/internal/logger"
	"github.com/yourorg/signal-dashboard/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidTOTP        = errors.New("invalid totp")
)

// AuthService checks the demo credentials and issues access tokens
type AuthService struct {
	username      string
	pinHash       []byte
	totpSecret    string
	jwtSecret     []byte
	tokenDuration time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewAuthService creates a new demo authentication service
func NewAuthService(cfg *config.MockConfig, log *zap.Logger) (*AuthService, error) {
	if _, err := decodeSecret(cfg.TOTPSecret); err != nil {
		return nil, err
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(cfg.PIN), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo pin: %w", err)
	}

	duration := cfg.TokenDuration
	if duration <= 0 {
		duration = 24 * time.Hour
	}

	return &AuthService{
		username:      cfg.Username,
		pinHash:       pinHash,
		totpSecret:    cfg.TOTPSecret,
		jwtSecret:     []byte(cfg.JWTSecret),
		tokenDuration: duration,
		now:           time.Now,
		logger:        logger.OrNop(log),
	}, nil
}

// CurrentCode returns the demo code and how many seconds it stays valid
func (s *AuthService) CurrentCode() (*model.TOTPResponse, error) {
	now := s.now()
	code, err := GenerateCode(s.totpSecret, now)
	if err != nil {
		return nil, err
	}
	return &model.TOTPResponse{CurrentTOTP: code, ValidFor: SecondsRemaining(now)}, nil
}

// Login verifies username, PIN and TOTP and returns an access token
func (s *AuthService) Login(req *model.LoginRequest) (*model.LoginResponse, error) {
	if req.Username != s.username {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.pinHash, []byte(req.PIN)); err != nil {
		s.logger.Debug("pin verification failed", zap.String("username", req.Username))
		return nil, ErrInvalidCredentials
	}
	if !ValidateCode(s.totpSecret, req.TOTP, s.now()) {
		s.logger.Debug("totp verification failed", zap.String("username", req.Username))
		return nil, ErrInvalidTOTP
	}

	token, err := s.generateToken(req.Username)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("username", req.Username))
	return &model.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokenDuration.Seconds()),
		UserInfo:    model.UserInfo{Username: req.Username},
	}, nil
}

// ValidateToken parses an access token and returns its subject
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	if !claims.VerifyExpiresAt(s.now().Unix(), true) {
		return "", errors.New("token expired")
	}
	if tokenType, ok := claims["type"].(string); !ok || tokenType != "access" {
		return "", errors.New("invalid token type")
	}

	username, ok := claims["sub"].(string)
	if !ok || username == "" {
		return "", errors.New("invalid subject in token")
	}
	return username, nil
}

func (s *AuthService) generateToken(username string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  username,
		"exp":  now.Add(s.tokenDuration).Unix(),
		"iat":  now.Unix(),
		"type": "access",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("failed to sign access token", zap.Error(err))
		return "", err
	}
	return signed, nil
}
