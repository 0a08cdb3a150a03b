package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_ResolvesByNameOnce(t *testing.T) {
	var lists atomic.Int32
	var posted []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/guilds/1000/channels":
			lists.Add(1)
			_, _ = w.Write([]byte(`[{"id":"7","name":"notifications","type":4},{"id":"8","name":"notifications","type":0}]`))
		case "/channels/8/messages":
			var msg Message
			require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
			posted = append(posted, msg.Content)
			_, _ = w.Write([]byte(`{"id":"m","channel_id":"8"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	n := NewNotifier(newTestClient(server.URL), "", "notifications")
	require.NoError(t, n.Notify(context.Background(), "one"))
	require.NoError(t, n.Notify(context.Background(), "two"))

	assert.Equal(t, int32(1), lists.Load())
	assert.Equal(t, []string{"one", "two"}, posted)
}

func TestNotifier_ConfiguredChannelID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/42/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m","channel_id":"42"}`))
	}))
	defer server.Close()

	n := NewNotifier(newTestClient(server.URL), "42", "notifications")
	require.NoError(t, n.Notify(context.Background(), "hi"))
}

func TestNotifier_ChannelMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"2","name":"general","type":0}]`))
	}))
	defer server.Close()

	n := NewNotifier(newTestClient(server.URL), "", "notifications")
	err := n.Notify(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestNotifier_Disabled(t *testing.T) {
	n := NewNotifier(NewClient(Config{}), "", "notifications")
	err := n.Notify(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNotifier_ResolveDoesNotBlockOtherSenders(t *testing.T) {
	release := make(chan struct{})
	var posted atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/guilds/1000/channels":
			<-release
			_, _ = w.Write([]byte(`[{"id":"8","name":"notifications","type":0}]`))
		case "/channels/8/messages":
			posted.Add(1)
			_, _ = w.Write([]byte(`{"id":"m","channel_id":"8"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	n := NewNotifier(newTestClient(server.URL), "", "notifications")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, n.Notify(context.Background(), "slow"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- n.Notify(ctx, "timed out") }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("notify blocked behind an in-flight channel lookup")
	}

	close(release)
	wg.Wait()
	require.NoError(t, n.Notify(context.Background(), "cached"))
	assert.Equal(t, int32(2), posted.Load())
}
