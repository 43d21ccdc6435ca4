package api

import (
	"context"
	"fmt"

	"github.com/studiumhq/studium-go/internal/model"
)

// LoginResult is the payload returned by a successful login or refresh.
type LoginResult struct {
	// Access is the short-lived bearer token.
	Access string `json:"access"`

	// Refresh is the long-lived token used for silent refresh. The
	// refresh endpoint may rotate it; empty means unchanged.
	Refresh string `json:"refresh,omitempty"`

	// User is the authenticated identity, present on login only.
	User model.User `json:"user_data"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var result LoginResult
	err := c.Post(ctx, "/api/auth/login/", loginRequest{
		Email:    email,
		Password: password,
	}, &result)
	if err != nil {
		return LoginResult{}, fmt.Errorf("logging in: %w", err)
	}
	return result, nil
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (LoginResult, error) {
	var result LoginResult
	err := c.Post(ctx, "/api/auth/token/refresh/", refreshRequest{
		Refresh: refresh,
	}, &result)
	if err != nil {
		return LoginResult{}, fmt.Errorf("refreshing token: %w", err)
	}
	return result, nil
}

// Logout invalidates the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.Post(ctx, "/api/auth/logout/", nil, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var user model.User
	if err := c.Get(ctx, "/api/auth/me/", &user); err != nil {
		return model.User{}, fmt.Errorf("fetching profile: %w", err)
	}
	return user, nil
}
