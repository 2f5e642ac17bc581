// Package clubchat is a remote conversation store backed by the clubchat
// HTTP and WebSocket API.
package clubchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/chatview"
	"github.com/dsavault/clubchat/internal/handlers"
	"github.com/dsavault/clubchat/internal/models"
)

var _ chatview.Store = (*Client)(nil)

// StepInbox names the failed step of a direct send the server reported as
// stored without its inbox summaries.
const StepInbox = "inbox"

// Client talks to a clubchat server on behalf of one signed-in user.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	UserID     string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     zerolog.Logger
}

// Config holds the saved session.
type Config struct {
	Token  string `json:"token"`
	UserID string `json:"user_id,omitempty"`
}

// NewClient creates a client and loads any saved session.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("CLUBCHAT_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".clubchat")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Dialer:     websocket.DefaultDialer,
		Logger:     zerolog.Nop(),
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the saved session from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	c.Token = cfg.Token
	c.UserID = cfg.UserID
	return nil
}

// SaveConfig saves the session to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(Config{Token: c.Token, UserID: c.UserID}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// APIError is a non-2xx response. It unwraps to the matching chat error.
type APIError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clubchat error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

// apiError classifies a response for callers that match on chat errors.
func apiError(status int, message, path string) error {
	e := &APIError{StatusCode: status, Message: message}
	switch {
	case status == http.StatusUnauthorized:
		e.kind = chat.ErrAuthRequired
	case status == http.StatusBadRequest && strings.Contains(message, "yourself"):
		e.kind = chat.ErrSelfMessage
	case status == http.StatusBadRequest && strings.Contains(message, "body"):
		e.kind = chat.ErrEmptyBody
	case status == http.StatusNotFound && strings.HasPrefix(path, "/rooms/"):
		e.kind = chat.ErrUnknownRoom
	case status == http.StatusNotFound:
		e.kind = chat.ErrUserNotFound
	case status == http.StatusBadGateway:
		return &chat.WriteError{Op: chat.StepMessage, Err: e}
	}
	return e
}

// do performs an HTTP request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return apiError(resp.StatusCode, errResp.Error, path)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Health returns the server health report.
func (c *Client) Health(ctx context.Context) (*handlers.HealthResponse, error) {
	var resp handlers.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rooms lists the clubs.
func (c *Client) Rooms(ctx context.Context) ([]models.Room, error) {
	var resp handlers.RoomsResponse
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// Register creates or refreshes the caller's profile and remembers their id.
func (c *Client) Register(ctx context.Context, displayName string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodPut, "/users/me", handlers.ProfileRequest{DisplayName: displayName}, &user); err != nil {
		return nil, err
	}
	c.UserID = user.ID
	return &user, nil
}

// FetchAllUsers lists every other user. The server always excludes the
// token's subject; excludingUserID is checked locally.
func (c *Client) FetchAllUsers(ctx context.Context, excludingUserID string) ([]models.User, error) {
	if excludingUserID == "" {
		return nil, chat.ErrAuthRequired
	}
	var resp handlers.UsersResponse
	if err := c.do(ctx, http.MethodGet, "/users", nil, &resp); err != nil {
		return nil, err
	}
	users := resp.Users[:0]
	for _, u := range resp.Users {
		if u.ID != excludingUserID {
			users = append(users, u)
		}
	}
	return users, nil
}

// GetUser returns one profile.
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RoomMessages returns the log of a club.
func (c *Client) RoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var resp handlers.MessagesResponse
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DirectMessages returns the log shared with another user.
func (c *Client) DirectMessages(ctx context.Context, otherID string) ([]models.Message, error) {
	var resp handlers.MessagesResponse
	if err := c.do(ctx, http.MethodGet, "/dm/"+url.PathEscape(otherID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Inbox returns the caller's inbox.
func (c *Client) Inbox(ctx context.Context) ([]models.InboxEntry, error) {
	var resp handlers.InboxResponse
	if err := c.do(ctx, http.MethodGet, "/inbox", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// SendRoomMessage posts to a club. The author is the token's subject.
func (c *Client) SendRoomMessage(ctx context.Context, roomID string, author *models.User, body string) (*models.Message, error) {
	if author == nil {
		return nil, chat.ErrAuthRequired
	}
	var resp handlers.PostMessageResponse
	path := "/rooms/" + url.PathEscape(roomID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, handlers.PostMessageRequest{Body: body}, &resp); err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

// SendDirectMessage posts a direct message. A message stored without its
// inbox summaries is returned together with a PartialInboxWriteError.
func (c *Client) SendDirectMessage(ctx context.Context, from *models.User, to models.User, body string) (*models.Message, error) {
	if from == nil {
		return nil, chat.ErrAuthRequired
	}
	var resp handlers.PostMessageResponse
	path := "/dm/" + url.PathEscape(to.ID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, handlers.PostMessageRequest{Body: body}, &resp); err != nil {
		return nil, err
	}
	if resp.InboxPending {
		return &resp.Message, &chat.PartialInboxWriteError{
			Step:    StepInbox,
			Owner:   from.ID + "/" + to.ID,
			Message: resp.Message,
			Err:     errors.New("server stored the message without inbox summaries"),
		}
	}
	return &resp.Message, nil
}
