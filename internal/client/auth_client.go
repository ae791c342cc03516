package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/model"
)

// AuthClient performs the login and logout exchanges and owns session creation
type AuthClient struct {
	baseClient
	store    SessionWriter
	validate *validator.Validate
}

// NewAuthClient creates a new auth client writing sessions into store
func NewAuthClient(baseURL string, store SessionWriter, logger *zap.Logger, opts ...Option) *AuthClient {
	return &AuthClient{
		baseClient: newBaseClient(baseURL, logger, opts),
		store:      store,
		validate:   validator.New(),
	}
}

// Login exchanges credentials for a session and stores it.
// Failures are returned as *AuthError.
func (c *AuthClient) Login(ctx context.Context, username, pin, totp string) (*model.Session, error) {
	status, body, err := c.send(ctx, request{
		endpoint: "login",
		method:   http.MethodPost,
		path:     "/api/auth/login",
		body:     model.LoginRequest{Username: username, PIN: pin, TOTP: totp},
	})
	if err != nil {
		c.logger.Error("Login request failed", zap.String("username", username), zap.Error(err))
		return nil, &AuthError{Kind: KindNetwork, Message: loginNetworkMessage, Err: err}
	}

	if !isSuccess(status) {
		message := detailMessage(body)
		if message == "" {
			message = loginFailedMessage
		}
		c.logger.Info("Login rejected",
			zap.String("username", username),
			zap.Int("status_code", status))
		return nil, &AuthError{Kind: KindRejected, Status: status, Message: message}
	}

	var response model.LoginResponse
	if err := json.Unmarshal(body, &response); err != nil {
		c.logger.Error("Failed to decode login response", zap.Error(err))
		return nil, &AuthError{
			Kind:    KindNetwork,
			Status:  status,
			Message: loginNetworkMessage,
			Err:     fmt.Errorf("decode login response: %w", err),
		}
	}
	if err := c.validate.Struct(response); err != nil {
		c.logger.Error("Login response is incomplete", zap.Error(err))
		return nil, &AuthError{
			Kind:    KindRejected,
			Status:  status,
			Message: loginFailedMessage,
			Err:     fmt.Errorf("invalid login response: %w", err),
		}
	}

	sess := model.Session{
		Username:         response.UserInfo.Username,
		Token:            response.AccessToken,
		ExpiresInSeconds: response.ExpiresIn,
	}
	if err := c.store.Set(ctx, sess); err != nil {
		c.logger.Warn("Failed to persist session", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("username", sess.Username),
		zap.Int("expires_in", sess.ExpiresInSeconds),
	}
	if exp, ok := TokenExpiry(sess.Token); ok {
		fields = append(fields, zap.Time("token_expires_at", exp))
	}
	c.logger.Info("Login succeeded", fields...)

	return &sess, nil
}

// Logout notifies the backend on a best-effort basis and always clears the
// local session.
func (c *AuthClient) Logout(ctx context.Context) {
	status, _, err := c.send(ctx, request{
		endpoint: "logout",
		method:   http.MethodPost,
		path:     "/api/auth/logout",
	})
	switch {
	case err != nil:
		c.logger.Warn("Logout notification failed", zap.Error(err))
	case !isSuccess(status):
		c.logger.Warn("Logout notification rejected", zap.Int("status_code", status))
	}

	// The local session goes away even if ctx is already done.
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("Failed to clear persisted session", zap.Error(err))
	}
}
