package models

import "time"

// RegisterRequest holds the payload for creating an account.
type RegisterRequest struct {
	Firstname string `json:"firstname" validate:"required,max=100"`
	Lastname  string `json:"lastname" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	ClientMeta
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	ClientMeta
}

// AuthResponse returns the issued tokens. The refresh token is only ever
// returned here and by the refresh endpoint.
type AuthResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	User         *UserInfo `json:"user,omitempty"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	ClientMeta
}

// LogoutRequest revokes a single refresh session.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	ClientMeta
}

// LogoutAllResponse reports how many sessions were revoked.
type LogoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// UserInfo describes a user in responses; it never carries the password hash.
type UserInfo struct {
	ID          int64    `json:"id"`
	Firstname   string   `json:"firstname"`
	Lastname    string   `json:"lastname"`
	Email       string   `json:"email"`
	Role        UserRole `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// NewUserInfo projects a user into its public shape.
func NewUserInfo(u *User) *UserInfo {
	return &UserInfo{
		ID:          u.ID,
		Firstname:   u.Firstname,
		Lastname:    u.Lastname,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: u.PermissionNames(),
	}
}
