package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kickdeal/chatlink/internal/auth"
	"github.com/kickdeal/chatlink/internal/testutil"
	"github.com/kickdeal/chatlink/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, &auth.StaticSource{Value: "test-token"}, testutil.TestLogger(t))
}

func TestGetRoom(t *testing.T) {
	room := types.Room{
		Id:           42,
		ProductId:    7,
		ProductTitle: "used climbing shoes",
		Price:        45000,
		Participants: []types.User{{Id: 1, Username: "seller"}, {Id: 2, Username: "buyer"}},
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chatrooms/42", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(room)
	})

	got, err := c.GetRoom(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, &room, got)
}

func TestGetMessages(t *testing.T) {
	history := []types.Message{
		{Id: 1, RoomId: 42, SenderId: 1, Content: "still available?", Timestamp: time.Now().UTC().Round(time.Millisecond)},
		{Id: 2, RoomId: 42, SenderId: 2, Content: "yes", Timestamp: time.Now().UTC().Round(time.Millisecond)},
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/42/messages", r.URL.Path)
		json.NewEncoder(w).Encode(history)
	})

	got, err := c.GetMessages(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, history, got)
}

func TestGetUserInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/info", r.URL.Path)
		json.NewEncoder(w).Encode(types.User{Id: 2, Username: "buyer"})
	})

	user, err := c.GetUserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, user.Id)
	assert.Equal(t, "buyer", user.Username)
}

func TestGet_nonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.GetUserInfo(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	var apiErr *ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestGet_noCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server without a credential")
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, &auth.StaticSource{}, testutil.TestLogger(t))
	_, err := c.GetUserInfo(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoCredential)
}
