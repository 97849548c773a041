// Package notify delivers announcements to chats over the Telegram Bot API.
package notify

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

	"github.com/communitybot/feedwatch/pkg/logger"
)

// MaxMessageLength is the platform limit on one message's text.
const MaxMessageLength = 4096

type Client struct {
	token   string
	apiURL  string
	client  *http.Client
	limiter *rate.Limiter
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// APIError is a request the platform rejected.
type APIError struct {
	Status      int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error (status %d): %s", e.Status, e.Description)
}

// NewClient paces requests to perSecond, with no pacing when it is <= 0.
func NewClient(token, apiURL string, perSecond float64) *Client {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Client{
		token:   token,
		apiURL:  strings.TrimRight(apiURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// SendMessage posts text to one chat, splitting it when it exceeds the
// message limit.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, part := range Split(text, MaxMessageLength) {
		if err := c.send(ctx, chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, chatID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}

	jsonData, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMessage"), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending message to chat %d: %w", chatID, redact(err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return &APIError{Status: resp.StatusCode, Description: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		return &APIError{Status: resp.StatusCode, Description: result.Description}
	}
	return nil
}

// Broadcast sends text to every chat. A failing chat does not stop delivery to
// the others; the returned error joins every failure.
func (c *Client) Broadcast(ctx context.Context, chatIDs []int64, text string) error {
	var errs []error
	for _, id := range chatIDs {
		if err := c.SendMessage(ctx, id, text); err != nil {
			logger.Warn("broadcast failed", "chat", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TestConnection checks the bot token with getMe.
func (c *Client) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("getMe"), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("checking bot token: %w", redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Status: resp.StatusCode, Description: strings.TrimSpace(string(body))}
	}
	return nil
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
}

// redact drops the request URL, which carries the bot token, from err.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

// Split breaks text into parts of at most n bytes, preferring line breaks.
func Split(text string, n int) []string {
	var parts []string
	for len(text) > n {
		cut := strings.LastIndex(text[:n], "\n")
		if cut <= 0 {
			cut = n
			for cut > 0 && !utf8Start(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
