package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pders01/feedq/internal/config"
	"github.com/pders01/feedq/internal/validation"
)

// APIError is a non-OK answer from the Bot API.
type APIError struct {
	StatusCode  int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("telegram: HTTP %d: %s", e.StatusCode, e.Description)
}

// Permanent reports whether retrying the same request cannot succeed.
// 429 and 5xx are transient; other 4xx mean the request itself is bad.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// IsPermanent reports whether err is an APIError that should not be
// retried.
func IsPermanent(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Permanent()
}

type Telegram struct {
	client   *http.Client
	endpoint string
	limiter  *rate.Limiter
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func NewTelegram(cfg *config.Config) (*Telegram, error) {
	if cfg.Delivery.BotToken == "" {
		return nil, fmt.Errorf("delivery.bot_token is required for telegram delivery")
	}
	if cfg.Delivery.ChannelID == "" {
		return nil, fmt.Errorf("delivery.channel_id is required for telegram delivery")
	}

	base, err := validation.NewPermissiveFeedURLValidator().ValidateAndNormalize(cfg.Delivery.APIBase)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery.api_base: %w", err)
	}

	limit := rate.Inf
	if cfg.Delivery.RatePerSecond > 0 {
		limit = rate.Limit(cfg.Delivery.RatePerSecond)
	}

	return &Telegram{
		client:   &http.Client{Timeout: cfg.Delivery.Timeout},
		endpoint: strings.TrimRight(base, "/") + "/bot" + cfg.Delivery.BotToken + "/sendMessage",
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                msg.ChatID,
		Text:                  msg.Text,
		DisableWebPagePreview: msg.DisablePreview,
	})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; drop it from the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var parsed apiResponse
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("decoding response: %w", jsonErr)
	}

	if resp.StatusCode == http.StatusOK && parsed.OK {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Description: parsed.Description}
	if parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
		apiErr.RetryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
	}
	if apiErr.StatusCode == http.StatusOK {
		// ok=false inside a 200 is treated as a bad request.
		apiErr.StatusCode = http.StatusBadRequest
	}
	return apiErr
}
