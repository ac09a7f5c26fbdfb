package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestFileStore(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		tok := signedToken(t, jwt.MapClaims{
			userIdClaim: 7,
			"exp":       time.Now().Add(time.Hour).Unix(),
		})
		require.NoError(t, os.WriteFile(path, []byte(tok+"\n"), 0600))

		fs := &FileStore{Path: path}
		got, err := fs.Token()
		require.NoError(t, err)
		assert.Equal(t, tok, got)
	})
	t.Run("missing file", func(t *testing.T) {
		fs := &FileStore{Path: filepath.Join(t.TempDir(), "nope")}
		_, err := fs.Token()
		assert.ErrorIs(t, err, ErrNoCredential)
	})
	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0600))

		fs := &FileStore{Path: path}
		_, err := fs.Token()
		assert.ErrorIs(t, err, ErrNoCredential)
	})
	t.Run("expired token", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		tok := signedToken(t, jwt.MapClaims{
			userIdClaim: 7,
			"exp":       time.Now().Add(-time.Hour).Unix(),
		})
		require.NoError(t, os.WriteFile(path, []byte(tok), 0600))

		fs := &FileStore{Path: path}
		_, err := fs.Token()
		assert.ErrorIs(t, err, ErrNoCredential)
	})
	t.Run("opaque token passes through", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("not-a-jwt"), 0600))

		fs := &FileStore{Path: path}
		got, err := fs.Token()
		require.NoError(t, err)
		assert.Equal(t, "not-a-jwt", got)
	})
}

func TestStaticSource(t *testing.T) {
	s := &StaticSource{Value: "abc"}
	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	empty := &StaticSource{}
	_, err = empty.Token()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestUserId(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{userIdClaim: 42})

	id, err := UserId(tok)
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	_, err = UserId(signedToken(t, jwt.MapClaims{}))
	assert.Error(t, err)

	_, err = UserId("garbage")
	assert.Error(t, err)
}
