package api

import (
	"fmt"
	"net/http"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is an ApiError carrying a 401,
// signaling that the caller should be sent back through the auth flow.
func IsUnauthorized(err error) bool {
	apiErr, ok := err.(*ApiError)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}
