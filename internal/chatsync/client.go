package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"project-chat/internal/models"
)

// Client is the thin REST/ws consumer of the chat service. It translates
// transport failures into the package's typed errors and leaves all policy
// (polling, retries, ordering) to the layers above.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client for the given service base URL and bearer token.
// A nil httpClient falls back to a 10s-timeout default.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// ListGroups fetches the caller's groups, most recently updated first.
func (c *Client) ListGroups(ctx context.Context) ([]models.Group, error) {
	var resp struct {
		Groups []models.Group `json:"groups"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/groups", nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// ListMessages fetches the group's full message list as the server orders it,
// newest first.
func (c *Client) ListMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	path := fmt.Sprintf("/api/groups/%s/messages", url.PathEscape(groupID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// PostMessage sends a text message. idemToken deduplicates retried attempts
// server-side.
func (c *Client) PostMessage(ctx context.Context, groupID, text, idemToken string) (models.Message, error) {
	body, _ := json.Marshal(map[string]string{"text": text})
	var msg models.Message
	path := fmt.Sprintf("/api/groups/%s/messages", url.PathEscape(groupID))
	if err := c.doJSONWithBody(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", idemToken, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// UploadFile sends a file message in one multipart request.
func (c *Client) UploadFile(ctx context.Context, groupID, text, filename, contentType string, r io.Reader, idemToken string) (models.Message, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	partHeader.Set("Content-Type", contentType)
	part, err := w.CreatePart(partHeader)
	if err != nil {
		return models.Message{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return models.Message{}, fmt.Errorf("build upload: %w", err)
	}
	if text != "" {
		if err := w.WriteField("text", text); err != nil {
			return models.Message{}, fmt.Errorf("build upload: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return models.Message{}, fmt.Errorf("build upload: %w", err)
	}

	var msg models.Message
	path := fmt.Sprintf("/api/groups/%s/upload", url.PathEscape(groupID))
	if err := c.doJSONWithBody(ctx, http.MethodPost, path, buf, w.FormDataContentType(), idemToken, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// AddReaction records an emoji reaction on a message.
func (c *Client) AddReaction(ctx context.Context, groupID, messageID, emoji string) error {
	body, _ := json.Marshal(map[string]string{"emoji": emoji})
	path := fmt.Sprintf("/api/groups/%s/messages/%s/reaction", url.PathEscape(groupID), url.PathEscape(messageID))
	return c.doJSONWithBody(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", "", nil)
}

// MarkRead acknowledges the listed messages for the caller.
func (c *Client) MarkRead(ctx context.Context, groupID string, messageIDs []string) error {
	body, _ := json.Marshal(map[string][]string{"message_ids": messageIDs})
	path := fmt.Sprintf("/api/groups/%s/messages/read", url.PathEscape(groupID))
	return c.doJSONWithBody(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", "", nil)
}

// DialDirectory opens the directory push stream.
func (c *Client) DialDirectory(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/directory"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("dial directory: %w", err)
	}
	return conn, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	return c.doJSONWithBody(ctx, method, path, body, contentType, "", out)
}

func (c *Client) doJSONWithBody(ctx context.Context, method, path string, body io.Reader, contentType, idemToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if idemToken != "" {
		req.Header.Set("X-Idempotency-Key", idemToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
