package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/model"
)

// TOTPClient fetches the demo one-time code used to pre-fill the login form
type TOTPClient struct {
	baseClient
}

// NewTOTPClient creates a new TOTP client
func NewTOTPClient(baseURL string, logger *zap.Logger, opts ...Option) *TOTPClient {
	return &TOTPClient{baseClient: newBaseClient(baseURL, logger, opts)}
}

// FetchCurrentCode returns the backend's current demo code
func (c *TOTPClient) FetchCurrentCode(ctx context.Context) (string, error) {
	status, body, err := c.send(ctx, request{
		endpoint: "current_totp",
		method:   http.MethodGet,
		path:     "/api/auth/current-totp",
	})
	if err != nil {
		return "", fmt.Errorf("fetch current totp: %w", err)
	}
	if !isSuccess(status) {
		return "", fmt.Errorf("current totp returned status code %d", status)
	}

	var response model.TOTPResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("decode current totp: %w", err)
	}
	if response.CurrentTOTP == "" {
		return "", errors.New("current totp missing from response")
	}

	return response.CurrentTOTP, nil
}
