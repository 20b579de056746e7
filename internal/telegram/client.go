// Package telegram is a minimal Telegram Bot API client covering long
// polling, sending and editing text messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIBase = "https://api.telegram.org"

	// MaxMessageLength is the Bot API limit for message text, in characters.
	MaxMessageLength = 4096

	// EmptyText replaces an empty message body, which the Bot API rejects.
	EmptyText = "(empty model response)"
)

// Config configures a Client.
type Config struct {
	APIBase        string
	Token          string
	RequestTimeout time.Duration
	// EditRate and EditBurst bound outgoing send/edit calls across all chats.
	EditRate  float64
	EditBurst int
}

// Client talks to the Bot API over HTTP. It is safe for concurrent use.
type Client struct {
	endpoint       string
	requestTimeout time.Duration
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *zap.Logger
}

// NewClient creates a Client. Zero values in config fall back to defaults:
// the public API base, a 10s request timeout, and 20 sends per second.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.APIBase == "" {
		config.APIBase = DefaultAPIBase
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.EditRate <= 0 {
		config.EditRate = 20
	}
	if config.EditBurst <= 0 {
		config.EditBurst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:       strings.TrimRight(config.APIBase, "/") + "/bot" + config.Token + "/",
		requestTimeout: config.RequestTimeout,
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Limit(config.EditRate), config.EditBurst),
		logger:         logger,
	}
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns the @username, falling back to the first name.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// Chat identifies a conversation.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// Message is an incoming or sent message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// Update is one getUpdates entry. Only message updates are decoded.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

// APIError is a request the Bot API answered with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// IsNotModified reports whether err is the Bot API refusing an edit that
// would not change the message.
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	err := c.call(ctx, "getMe", struct{}{}, &me, c.requestTimeout)
	return me, err
}

// GetUpdates long-polls for updates with id >= offset. timeout is the
// server-side wait; the HTTP deadline is extended to cover it.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	req := struct {
		Offset         int64    `json:"offset"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", req, &updates, timeout+c.requestTimeout); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends text to chatID and returns the sent message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Message{}, err
	}
	req := struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}{chatID, normalize(text)}
	var msg Message
	err := c.call(ctx, "sendMessage", req, &msg, c.requestTimeout)
	return msg, err
}

// EditMessageText replaces the text of a message the bot sent. An edit that
// would leave the text unchanged succeeds.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req := struct {
		ChatID    int64  `json:"chat_id"`
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
	}{chatID, messageID, normalize(text)}
	err := c.call(ctx, "editMessageText", req, nil, c.requestTimeout)
	if IsNotModified(err) {
		return nil
	}
	return err
}

// BotCommand is one entry of the command menu.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// SetMyCommands registers the command menu shown by clients.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	req := struct {
		Commands []BotCommand `json:"commands"`
	}{commands}
	return c.call(ctx, "setMyCommands", req, nil, c.requestTimeout)
}

func (c *Client) call(ctx context.Context, method string, payload, result any, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}
	var tgResp response
	if err := json.Unmarshal(raw, &tgResp); err != nil {
		return fmt.Errorf("failed to parse %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !tgResp.OK {
		apiErr := &APIError{Method: method, Code: tgResp.ErrorCode, Description: tgResp.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if tgResp.Parameters != nil {
			apiErr.RetryAfter = time.Duration(tgResp.Parameters.RetryAfter) * time.Second
		}
		c.logger.Debug("telegram api error", zap.String("method", method), zap.Int("code", apiErr.Code), zap.String("description", apiErr.Description))
		return apiErr
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(tgResp.Result, result); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

// normalize makes text acceptable to the Bot API: non-empty and within
// MaxMessageLength characters.
func normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return EmptyText
	}
	return truncate(text, MaxMessageLength)
}

// TruncationMark ends text that was cut to fit one message.
const TruncationMark = "…"

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars-1]) + TruncationMark
}

// SplitText cuts text into chunks of at most maxChars characters, breaking
// after a newline when one falls in the second half of a chunk.
func SplitText(text string, maxChars int) []string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return []string{text}
	}
	var chunks []string
	for len(runes) > maxChars {
		cut := maxChars
		for i := maxChars - 1; i >= maxChars/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
