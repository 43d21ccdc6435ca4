package api

import (
	"errors"
	"fmt"
)

// AuthError indicates that the backend rejected the access token (HTTP
// 401). Callers detect it to trigger a token refresh or logout instead
// of treating it as a transport failure.
type AuthError struct {
	Path    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error on %s: %s", e.Path, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
