package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mfadhil/qchat/internal/chat"
)

const clientVersion = "qchat/0.1.0"

// Credentials identify this user to the service. Every request carries
// them as headers.
type Credentials struct {
	AppID  string
	UserID string
	Token  string
}

// Client is the REST side of the service. Methods are safe for
// concurrent use.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string, creds Credentials) *Client {
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadRoomList fetches the user's rooms, most recent activity first.
func (c *Client) LoadRoomList(ctx context.Context) ([]chat.RoomSummary, error) {
	var out struct {
		Results struct {
			Rooms []wireRoom `json:"rooms_info"`
		} `json:"results"`
	}
	q := url.Values{"show_participants": {"false"}, "show_removed": {"false"}}
	if err := c.get(ctx, "/api/v2/sdk/user_rooms", q, &out); err != nil {
		return nil, fmt.Errorf("load room list: %w", err)
	}
	rooms := make([]chat.RoomSummary, len(out.Results.Rooms))
	for i := range out.Results.Rooms {
		rooms[i] = out.Results.Rooms[i].toSummary()
	}
	return rooms, nil
}

// RoomsInfo fetches authoritative unread counts for the given rooms.
func (c *Client) RoomsInfo(ctx context.Context, roomIDs []int64) (map[int64]RoomInfo, error) {
	body := map[string]any{"room_ids": roomIDs, "show_participants": false}
	var out struct {
		Results struct {
			RoomsInfo []wireRoom `json:"rooms_info"`
		} `json:"results"`
	}
	if err := c.post(ctx, "/api/v2/sdk/rooms_info", body, &out); err != nil {
		return nil, fmt.Errorf("rooms info: %w", err)
	}
	info := make(map[int64]RoomInfo, len(out.Results.RoomsInfo))
	for _, r := range out.Results.RoomsInfo {
		info[r.ID] = RoomInfo{UnreadCount: r.UnreadCount, LastMessageID: r.LastCommentID}
	}
	return info, nil
}

// LoadComments fetches a page of messages oldest-first. beforeID zero
// means the newest page. The second result reports whether the earliest
// returned message still has a predecessor on the server.
func (c *Client) LoadComments(ctx context.Context, roomID, beforeID int64, limit int) ([]chat.Message, bool, error) {
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{
		"topic_id": {strconv.FormatInt(roomID, 10)},
		"limit":    {strconv.Itoa(limit)},
	}
	if beforeID > 0 {
		q.Set("last_comment_id", strconv.FormatInt(beforeID, 10))
	}
	var out struct {
		Results struct {
			Comments []wireComment `json:"comments"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/api/v2/sdk/load_comments", q, &out); err != nil {
		return nil, false, fmt.Errorf("load comments: %w", err)
	}
	comments := out.Results.Comments
	msgs := make([]chat.Message, len(comments))
	for i := range comments {
		msgs[i] = comments[i].toMessage()
	}
	hasMoreBefore := len(comments) > 0 && comments[0].CommentBeforeID != 0
	return msgs, hasMoreBefore, nil
}

// PostComment sends a text message. localID is echoed back by the server
// as the record's unique_temp_id so the optimistic record and the echo
// reconcile to one message.
func (c *Client) PostComment(ctx context.Context, roomID int64, localID, text string) (*chat.Message, error) {
	return c.postComment(ctx, map[string]any{
		"topic_id":       strconv.FormatInt(roomID, 10),
		"comment":        text,
		"unique_temp_id": localID,
		"type":           "text",
	})
}

// PostCustomComment sends a custom-typed message, e.g. an attachment
// whose payload carries the uploaded file URL.
func (c *Client) PostCustomComment(ctx context.Context, roomID int64, localID, caption, customType string, content json.RawMessage) (*chat.Message, error) {
	return c.postComment(ctx, map[string]any{
		"topic_id":       strconv.FormatInt(roomID, 10),
		"comment":        caption,
		"unique_temp_id": localID,
		"type":           "custom",
		"payload":        map[string]any{"type": customType, "content": content},
	})
}

func (c *Client) postComment(ctx context.Context, body map[string]any) (*chat.Message, error) {
	var out struct {
		Results struct {
			Comment wireComment `json:"comment"`
		} `json:"results"`
	}
	if err := c.post(ctx, "/api/v2/sdk/post_comment", body, &out); err != nil {
		return nil, fmt.Errorf("post comment: %w", err)
	}
	msg := out.Results.Comment.toMessage()
	return &msg, nil
}

// Upload streams a file to the attachment endpoint and returns its URL.
func (c *Client) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("upload: read file: %w", err)
	}
	_ = w.WriteField("name", name)
	_ = w.WriteField("type", contentType)
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/sdk/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out struct {
		Results struct {
			File struct {
				URL string `json:"url"`
			} `json:"file"`
		} `json:"results"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return out.Results.File.URL, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("qiscus_sdk_app_id", c.creds.AppID)
	req.Header.Set("qiscus_sdk_user_id", c.creds.UserID)
	req.Header.Set("qiscus_sdk_token", c.creds.Token)
	req.Header.Set("qiscus_chat_version", clientVersion)
}
