package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultAPIURL is the versioned Discord REST base URL.
const DefaultAPIURL = "https://discord.com/api/v10"

// APIError is a non-2xx answer from Discord.
type APIError struct {
	Status     int
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsNotFound reports whether err is a Discord 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL       string
	Token         string
	ApplicationID Snowflake
	HTTPClient    *http.Client
	Attempts      uint
}

// Client talks to the Discord REST API.
type Client struct {
	baseURL    string
	token      string
	appID      Snowflake
	httpClient *http.Client
	attempts   uint
}

// NewClient creates a Discord REST client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		appID:      cfg.ApplicationID,
		httpClient: cfg.HTTPClient,
		attempts:   cfg.Attempts,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultAPIURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.attempts == 0 {
		c.attempts = 3
	}
	return c
}

// ApplicationID returns the application the client acts for.
func (c *Client) ApplicationID() Snowflake { return c.appID }

// CreateInteractionResponse sends the one initial callback for an interaction.
// It is never retried: a second delivery would be rejected anyway.
func (c *Client) CreateInteractionResponse(ctx context.Context, id Snowflake, token string, resp InteractionResponse) error {
	path := fmt.Sprintf("/interactions/%s/%s/callback", id, token)
	return c.send(ctx, http.MethodPost, path, resp, nil, false)
}

// EditOriginal edits the original interaction response.
func (c *Client) EditOriginal(ctx context.Context, token string, data MessageData) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/webhooks/%s/%s/messages/@original", c.appID, token)
	if err := c.do(ctx, http.MethodPatch, path, data.Normalized(), &msg); err != nil {
		return nil, fmt.Errorf("edit original: %w", err)
	}
	return &msg, nil
}

// GetOriginal fetches the original interaction response.
func (c *Client) GetOriginal(ctx context.Context, token string) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/webhooks/%s/%s/messages/@original", c.appID, token)
	if err := c.do(ctx, http.MethodGet, path, nil, &msg); err != nil {
		return nil, fmt.Errorf("get original: %w", err)
	}
	return &msg, nil
}

// CreateFollowup posts a follow-up message for an interaction.
func (c *Client) CreateFollowup(ctx context.Context, token string, data MessageData) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/webhooks/%s/%s?wait=true", c.appID, token)
	if err := c.do(ctx, http.MethodPost, path, data.Normalized(), &msg); err != nil {
		return nil, fmt.Errorf("create followup: %w", err)
	}
	return &msg, nil
}

// CreateRole creates a role in a guild.
func (c *Client) CreateRole(ctx context.Context, guildID Snowflake, name string) (*Role, error) {
	var role Role
	body := map[string]any{"name": name, "mentionable": false}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/guilds/%s/roles", guildID), body, &role); err != nil {
		return nil, fmt.Errorf("create role %q: %w", name, err)
	}
	return &role, nil
}

// GuildRoles lists the roles of a guild.
func (c *Client) GuildRoles(ctx context.Context, guildID Snowflake) ([]Role, error) {
	var roles []Role
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/roles", guildID), nil, &roles); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// BulkOverwriteCommands replaces the global command set, or a guild's when
// guildID is non-zero.
func (c *Client) BulkOverwriteCommands(ctx context.Context, guildID Snowflake, cmds []ApplicationCommand) ([]ApplicationCommand, error) {
	path := fmt.Sprintf("/applications/%s/commands", c.appID)
	if guildID != 0 {
		path = fmt.Sprintf("/applications/%s/guilds/%s/commands", c.appID, guildID)
	}
	var out []ApplicationCommand
	if err := c.do(ctx, http.MethodPut, path, cmds, &out); err != nil {
		return nil, fmt.Errorf("overwrite commands: %w", err)
	}
	return out, nil
}

// GatewayBot returns the websocket URL for bot gateway sessions.
func (c *Client) GatewayBot(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodGet, "/gateway/bot", nil, &out); err != nil {
		return "", fmt.Errorf("get gateway: %w", err)
	}
	return out.URL, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.send(ctx, method, path, body, out, true)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any, retryable bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	attempts := c.attempts
	if !retryable {
		attempts = 1
	}

	return retry.Do(
		func() error { return c.roundTrip(ctx, method, path, payload, out) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Retryable()
		}),
		retry.DelayType(func(n uint, err error, cfg *retry.Config) time.Duration {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				return time.Duration(apiErr.RetryAfter * float64(time.Second))
			}
			return retry.BackOffDelay(n, err, cfg)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("Retrying Discord request", "method", method, "path", redactToken(path), "attempt", n+1, "error", err)
		}),
	)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/ashureev/rolelink, 1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		if apiErr.RetryAfter == 0 {
			if s, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil {
				apiErr.RetryAfter = s
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// redactToken strips interaction tokens from webhook paths before logging.
func redactToken(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 3 && (parts[1] == "webhooks" || parts[1] == "interactions") {
		parts[3] = "***"
	}
	return strings.Join(parts, "/")
}
