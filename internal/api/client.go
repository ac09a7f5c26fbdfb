package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kickdeal/chatlink/internal/auth"
	"github.com/kickdeal/chatlink/internal/types"
)

// Client seeds session state from the KickDeal REST API: room metadata,
// message history, and the current user's identity. It does not implement
// any server behavior.
type Client struct {
	baseURL string
	creds   auth.CredentialSource
	http    *http.Client
	log     *log.Logger
}

func NewClient(baseURL string, creds auth.CredentialSource, logger *log.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     logger,
	}
}

// GetRoom fetches room metadata for one chat room.
func (c *Client) GetRoom(ctx context.Context, roomId string) (*types.Room, error) {
	var room types.Room
	if err := c.get(ctx, "/chatrooms/"+roomId, &room); err != nil {
		return nil, err
	}

	return &room, nil
}

// GetMessages fetches the room's message history, used to replace the
// backlog wholesale before live frames arrive.
func (c *Client) GetMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	var messages []types.Message
	if err := c.get(ctx, "/"+roomId+"/messages", &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// GetUserInfo resolves the current user, used to decide whether an inbound
// message was sent locally.
func (c *Client) GetUserInfo(ctx context.Context) (*types.User, error) {
	var user types.User
	if err := c.get(ctx, "/users/info", &user); err != nil {
		return nil, err
	}

	return &user, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	token, err := c.creds.Token()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ApiError{
			StatusCode: resp.StatusCode,
			Message:    strings.ToLower(http.StatusText(resp.StatusCode)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	return nil
}
