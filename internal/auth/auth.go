package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

// ErrNoCredential is returned when no usable bearer token is available.
// It is a precondition failure, not a retryable transport error.
var ErrNoCredential = errors.New("no credential")

const (
	userIdClaim = "user-id"
)

// CredentialSource supplies the bearer token attached to broker handshakes
// and REST requests. Implementations must return ErrNoCredential (possibly
// wrapped) when no valid token exists.
type CredentialSource interface {
	Token() (string, error)
}

// FileStore reads the token from a file on disk, the CLI analog of the
// browser's persistent local storage.
type FileStore struct {
	Path string
}

func (f *FileStore) Token() (string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrNoCredential
	}

	if err := checkExpiry(token); err != nil {
		return "", err
	}

	return token, nil
}

// StaticSource returns a fixed token, used in tests and one-off tooling.
type StaticSource struct {
	Value string
}

func (s *StaticSource) Token() (string, error) {
	if s.Value == "" {
		return "", ErrNoCredential
	}
	return s.Value, nil
}

// checkExpiry rejects expired tokens before a dial is attempted. The client
// holds no signing key, so the claims are inspected without verification;
// the broker still verifies the signature on handshake.
func checkExpiry(tokenString string) error {
	claims, err := parseClaims(tokenString)
	if err != nil {
		// Opaque (non-JWT) tokens are passed through as-is.
		return nil
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil
	}

	if time.Unix(int64(exp), 0).Before(time.Now()) {
		return fmt.Errorf("token expired: %w", ErrNoCredential)
	}

	return nil
}

// UserId extracts the user id claim from a token, used to resolve whether
// an inbound message was sent by the local user without a REST round trip.
func UserId(tokenString string) (int, error) {
	claims, err := parseClaims(tokenString)
	if err != nil {
		return 0, err
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid user id claim")
	}

	return int(userId), nil
}

func parseClaims(tokenString string) (jwt.MapClaims, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
