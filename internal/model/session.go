package model

// RestoredSessionExpiry is the expiry assumed for a session rebuilt from
// durable storage. The real expiry is not persisted.
const RestoredSessionExpiry = 86400

// Session represents the authenticated identity used for backend requests
type Session struct {
	Username         string `json:"username"`
	Token            string `json:"-"`
	ExpiresInSeconds int    `json:"expires_in"`
}

// LoginRequest represents the credentials sent to the login endpoint
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	PIN      string `json:"pin" binding:"required"`
	TOTP     string `json:"totp" binding:"required"`
}

// UserInfo is the identity block of a login response
type UserInfo struct {
	Username string `json:"username" validate:"required"`
}

// LoginResponse represents the body returned after a successful login
type LoginResponse struct {
	AccessToken string   `json:"access_token" validate:"required"`
	TokenType   string   `json:"token_type,omitempty"`
	ExpiresIn   int      `json:"expires_in" validate:"gte=0"`
	UserInfo    UserInfo `json:"user_info"`
}

// TOTPResponse represents the body of the demo TOTP endpoint
type TOTPResponse struct {
	CurrentTOTP string `json:"current_totp"`
	ValidFor    int    `json:"valid_for,omitempty"`
}
