package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is a transport-level failure. It is retryable.
	ErrNetwork = errors.New("server unavailable")

	// ErrAuth means the server rejected the credentials or refresh token;
	// the user has to authenticate again.
	ErrAuth = errors.New("unauthorized")

	// ErrTokenExpired means the access token must be refreshed before retrying.
	ErrTokenExpired = errors.New("access token expired")
)

// ApiError is a well-formed error response from the server. It is surfaced
// to the caller verbatim and never retried automatically.
type ApiError struct {
	Code    string
	Message string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Message)
}
