package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		BotToken: "test-token",
		GuildID:  "1000",
		APIURL:   serverURL,
	})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})

	assert.Equal(t, defaultAPIURL, c.config.APIURL)
	assert.Equal(t, defaultTimeout, c.config.Timeout)
	assert.False(t, c.Enabled())
}

func TestClient_ChannelURL(t *testing.T) {
	c := NewClient(Config{BotToken: "t", GuildID: "42"})
	assert.Equal(t, "https://discord.com/channels/42/99", c.ChannelURL("99"))
}

func TestClient_Disabled(t *testing.T) {
	c := NewClient(Config{GuildID: "1"})

	_, err := c.ListGuildChannels(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestClient_ListGuildChannels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/guilds/1000/channels", r.URL.Path)
		assert.Equal(t, "Bot test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1","name":"Active Customers","type":4},{"id":"2","name":"general","type":0}]`))
	}))
	defer server.Close()

	channels, err := newTestClient(server.URL).ListGuildChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, ChannelTypeCategory, channels[0].Type)
	assert.Equal(t, "general", channels[1].Name)
}

func TestClient_CreateGuildChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req CreateChannelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "simple-customer-test_123", req.Name)
		assert.Equal(t, "10", req.ParentID)
		require.Len(t, req.PermissionOverwrites, 1)
		assert.Equal(t, "1000", req.PermissionOverwrites[0].ID)
		assert.Equal(t, "1024", req.PermissionOverwrites[0].Deny)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"555","name":"simple-customer-test_123","type":0,"parent_id":"10"}`))
	}))
	defer server.Close()

	channel, err := newTestClient(server.URL).CreateGuildChannel(context.Background(), CreateChannelRequest{
		Name:     "simple-customer-test_123",
		Type:     ChannelTypeText,
		ParentID: "10",
		PermissionOverwrites: []PermissionOverwrite{
			NewOverwrite("1000", OverwriteRole, 0, PermissionViewChannel),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "555", channel.ID)
}

func TestClient_CreateMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/555/messages", r.URL.Path)

		var msg Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "hello", msg.Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","channel_id":"555"}`))
	}))
	defer server.Close()

	sent, err := newTestClient(server.URL).CreateMessage(context.Background(), "555", Message{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "m1", sent.ID)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		contains  string
	}{
		{"bad request", http.StatusBadRequest, `{"code":50035,"message":"Invalid Form Body"}`, false, "Invalid Form Body"},
		{"unauthorized", http.StatusUnauthorized, `{"code":0,"message":"401: Unauthorized"}`, false, "invalid bot token"},
		{"forbidden", http.StatusForbidden, `{"code":50013,"message":"Missing Permissions"}`, false, "Missing Permissions"},
		{"not found", http.StatusNotFound, `{"code":10003,"message":"Unknown Channel"}`, false, "Unknown Channel"},
		{"rate limited", http.StatusTooManyRequests, `{"message":"You are being rate limited.","retry_after":1.5}`, true, "retry after 1.5s"},
		{"server error", http.StatusBadGateway, `{"message":"upstream"}`, true, "server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).ListGuildChannels(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Contains(t, err.Error(), tt.contains)

			if tt.retryable {
				var retryErr *RetryableError
				require.ErrorAs(t, err, &retryErr)
				assert.Equal(t, tt.status, retryErr.Code)
			} else {
				var permErr *PermanentError
				require.ErrorAs(t, err, &permErr)
				assert.Equal(t, tt.status, permErr.Code)
			}
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).ListGuildChannels(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(Config{BotToken: "t", GuildID: "1", APIURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := c.ListGuildChannels(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestClient_RateLimitRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := NewClient(Config{BotToken: "t", GuildID: "1", APIURL: server.URL, RateLimit: 0.01})

	_, err := c.ListGuildChannels(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.ListGuildChannels(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
