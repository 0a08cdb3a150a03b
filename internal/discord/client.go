// Package discord provides a Discord REST API client for guild channel management and messaging.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/toplane-coaching/internal/pkg/metrics"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL  = "https://discord.com/api/v10"
	defaultTimeout = 10 * time.Second
	userAgent      = "DiscordBot (https://github.com/bissquit/toplane-coaching, 1.0)"
)

// Config holds Discord client configuration.
type Config struct {
	BotToken  string
	GuildID   string
	APIURL    string        // default https://discord.com/api/v10
	RateLimit float64       // requests per second, 0 disables pacing
	Timeout   time.Duration // per request timeout
}

// User is the bot account returned by /users/@me.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Client talks to the Discord REST API as a bot.
type Client struct {
	config  Config
	http    *resty.Client
	limiter *rate.Limiter
}

// NewClient creates a new Discord client.
func NewClient(config Config) *Client {
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		burst := int(math.Ceil(config.RateLimit))
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	httpClient := resty.New().
		SetBaseURL(config.APIURL).
		SetTimeout(config.Timeout).
		SetRetryCount(0).
		SetHeader("Authorization", "Bot "+config.BotToken).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json")

	slog.Info("discord client configured",
		"enabled", config.BotToken != "" && config.GuildID != "",
		"api_url", config.APIURL,
		"rate_limit", config.RateLimit,
	)

	return &Client{
		config:  config,
		http:    httpClient,
		limiter: limiter,
	}
}

// Enabled reports whether credentials are configured.
func (c *Client) Enabled() bool {
	return c.config.BotToken != "" && c.config.GuildID != ""
}

// GuildID returns the configured guild.
func (c *Client) GuildID() string {
	return c.config.GuildID
}

// ChannelURL builds the deep link to a guild channel.
func (c *Client) ChannelURL(channelID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s", c.config.GuildID, channelID)
}

// ListGuildChannels returns all channels of the configured guild.
func (c *Client) ListGuildChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	err := c.do(ctx, "list_channels", http.MethodGet, "/guilds/{guildID}/channels",
		map[string]string{"guildID": c.config.GuildID}, nil, &channels)
	if err != nil {
		return nil, err
	}
	return channels, nil
}

// CreateGuildChannel creates a channel or category in the configured guild.
func (c *Client) CreateGuildChannel(ctx context.Context, req CreateChannelRequest) (Channel, error) {
	var channel Channel
	err := c.do(ctx, "create_channel", http.MethodPost, "/guilds/{guildID}/channels",
		map[string]string{"guildID": c.config.GuildID}, req, &channel)
	if err != nil {
		return Channel{}, err
	}
	return channel, nil
}

// CreateMessage posts a message to a channel.
func (c *Client) CreateMessage(ctx context.Context, channelID string, msg Message) (SentMessage, error) {
	var sent SentMessage
	err := c.do(ctx, "create_message", http.MethodPost, "/channels/{channelID}/messages",
		map[string]string{"channelID": channelID}, msg, &sent)
	if err != nil {
		return SentMessage{}, err
	}
	return sent, nil
}

// CurrentUser returns the bot user, useful as a credentials check.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var user User
	if err := c.do(ctx, "current_user", http.MethodGet, "/users/@me", nil, nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, pathParams map[string]string, body, result interface{}) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	var apiErr apiError
	req := c.http.R().
		SetContext(ctx).
		SetError(&apiErr)
	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	metrics.DiscordRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DiscordRequests.WithLabelValues(operation, "error").Inc()
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	metrics.DiscordRequests.WithLabelValues(operation, strconv.Itoa(resp.StatusCode())).Inc()

	if !resp.IsError() {
		slog.Debug("discord request completed", "operation", operation, "status", resp.StatusCode())
		return nil
	}

	return classify(resp.StatusCode(), apiErr, string(resp.Body()))
}

func classify(status int, apiErr apiError, body string) error {
	msg := apiErr.Message
	if msg == "" {
		msg = body
	}

	switch {
	case status == http.StatusBadRequest:
		return &PermanentError{Code: status, Message: fmt.Sprintf("bad request: %s", msg)}
	case status == http.StatusUnauthorized:
		return &PermanentError{Code: status, Message: "invalid bot token"}
	case status == http.StatusForbidden:
		return &PermanentError{Code: status, Message: fmt.Sprintf("missing permissions: %s", msg)}
	case status == http.StatusNotFound:
		return &PermanentError{Code: status, Message: fmt.Sprintf("not found: %s", msg)}
	case status == http.StatusTooManyRequests:
		return &RetryableError{Code: status, Message: fmt.Sprintf("rate limited, retry after %.1fs", apiErr.RetryAfter)}
	case status >= 500:
		return &RetryableError{Code: status, Message: fmt.Sprintf("server error: %s", msg)}
	default:
		return fmt.Errorf("unexpected status %d: %s", status, msg)
	}
}
