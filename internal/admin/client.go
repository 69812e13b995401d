package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a running feedq admin API.
type Client struct {
	baseURL string
	user    string
	http    *http.Client
}

// NewClient targets listen, which may be a bare host:port.
func NewClient(listen, user string) *Client {
	base := listen
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		user:    user,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Command sends one command line. ok is false when the server chose not to
// reply.
func (c *Client) Command(ctx context.Context, text string) (reply string, ok bool, err error) {
	body, err := json.Marshal(CommandRequest{User: c.user, Text: text})
	if err != nil {
		return "", false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/command", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("contacting feedq: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return "", false, nil
	case http.StatusOK:
		var out CommandResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", false, fmt.Errorf("decoding reply: %w", err)
		}
		return out.Reply, true, nil
	default:
		return "", false, responseError(resp)
	}
}

// Queue fetches the current queue.
func (c *Client) Queue(ctx context.Context) ([]QueueEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/queue", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(UserHeader, c.user)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting feedq: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var entries []QueueEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding queue: %w", err)
	}
	return entries, nil
}

func responseError(resp *http.Response) error {
	var e errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return fmt.Errorf("feedq: HTTP %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("feedq: HTTP %d", resp.StatusCode)
}
