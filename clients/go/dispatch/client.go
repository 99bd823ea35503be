// Package dispatch provides a Go client for the open-job API: REST calls
// plus the two websocket feeds (per-user events and per-chat messages).
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Client is an open-job API client. Token is the bearer token issued by
// the auth service; every call sends it.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a client for the given server.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an authenticated JSON request and decodes the
// response into out when out is non-nil.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reqBody []byte
	if body != nil {
		var err error
		if reqBody, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Chat is a chat the caller belongs to, with its last message if any.
type Chat struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	LastMessage *LastMessage `json:"lastMessage"`
}

// LastMessage is the newest message of a chat.
type LastMessage struct {
	UserID    int64     `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one chat message with its attachments resolved to URLs.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chatId"`
	UserID    int64     `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Files     []File    `json:"files"`
}

// File is an attachment reference.
type File struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	URL      string `json:"url,omitempty"`
}

// MessagePage is one page of a chat's history, newest first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"totalPages"`
}

// Job mirrors the server's job resource.
type Job struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Status      string    `json:"status"`
	CreatedBy   int64     `json:"createdBy"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Notification mirrors the server's notification resource.
type Notification struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	IsRead    bool            `json:"isRead"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ListChats returns the caller's chats ordered by recent activity.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	err := c.doRequest(ctx, http.MethodGet, "/chat", nil, &chats)
	return chats, err
}

// SendMessage posts a text message to a chat and returns the stored
// message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	body := map[string]string{"text": text}
	var msg Message
	path := fmt.Sprintf("/chat/%d/messages", chatID)
	if err := c.doRequest(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessages fetches one page of a chat's history, newest first.
func (c *Client) GetMessages(ctx context.Context, chatID int64, page, limit int) (*MessagePage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := fmt.Sprintf("/chat/%d/messages", chatID)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var result MessagePage
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs returns every job the caller created or is assigned to.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := c.doRequest(ctx, http.MethodGet, "/job", nil, &jobs)
	return jobs, err
}

// UpdateJobStatus changes a job's status.
func (c *Client) UpdateJobStatus(ctx context.Context, jobID int64, status string) (*Job, error) {
	body := map[string]string{"status": status}
	var job Job
	path := fmt.Sprintf("/job/%d/status", jobID)
	if err := c.doRequest(ctx, http.MethodPatch, path, body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListNotifications returns the caller's notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var list []Notification
	err := c.doRequest(ctx, http.MethodGet, "/notification", nil, &list)
	return list, err
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.doRequest(ctx, http.MethodPatch, fmt.Sprintf("/notification/%d/read", id), nil, nil)
}

// Event is one frame from the per-user events feed.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventStream is an open websocket feed.
type EventStream struct {
	conn *websocket.Conn
}

// Close closes the feed.
func (s *EventStream) Close() error {
	return s.conn.Close()
}

// wsURL rewrites the client's base URL to the websocket scheme.
func (c *Client) wsURL(path string, q url.Values) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path
	q.Set("authorization", c.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ConnectUserEvents opens the per-user events feed. Notifications and job
// updates for the authenticated user arrive as Events.
func (c *Client) ConnectUserEvents(ctx context.Context) (*EventStream, error) {
	target, err := c.wsURL("/realtime", url.Values{})
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	return &EventStream{conn: conn}, nil
}

// NextEvent blocks until the next event arrives or the feed closes.
func (s *EventStream) NextEvent() (*Event, error) {
	var ev Event
	if err := s.conn.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ChatStream is an open per-chat message feed.
type ChatStream struct {
	conn *websocket.Conn
}

// Close closes the feed.
func (s *ChatStream) Close() error {
	return s.conn.Close()
}

// ConnectChatFeed opens the live message feed of one chat. The caller
// must be a member of the chat; the server closes the handshake with a
// policy-violation close frame otherwise.
func (c *Client) ConnectChatFeed(ctx context.Context, chatID int64) (*ChatStream, error) {
	q := url.Values{}
	q.Set("chatId", strconv.FormatInt(chatID, 10))

	target, err := c.wsURL("/chat/new-message", q)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	return &ChatStream{conn: conn}, nil
}

// NextMessage blocks until the next chat message arrives or the feed
// closes.
func (s *ChatStream) NextMessage() (*Message, error) {
	var msg Message
	if err := s.conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
