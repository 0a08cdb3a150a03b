//go:build integration

package redis

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/bissquit/toplane-coaching/internal/channels"
	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testutil.NewRedisContainer(ctx)
	if err != nil {
		log.Fatalf("start redis: %v", err)
	}

	testAddr = container.Addr
	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		log.Printf("terminate redis: %v", err)
	}
	os.Exit(code)
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{Addr: testAddr, KeyPrefix: "test:" + t.Name() + ":"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec := domain.ChannelRecord{
		SessionID:     "cs_test_1",
		ChannelID:     "900",
		ChannelURL:    "https://discord.com/channels/1/900",
		PlanType:      domain.PlanSimple,
		CustomerEmail: "test@example.com",
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
		ExpiresAt:     &expires,
	}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, rec.ChannelURL, got.ChannelURL)

	ttl, err := s.client.TTL(ctx, s.recordKey("cs_test_1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Minute)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	expires := time.Now().Add(time.Second)
	require.NoError(t, s.Save(ctx, domain.ChannelRecord{
		SessionID: "cs_short", CreatedAt: time.Now(), ExpiresAt: &expires,
	}))

	require.Eventually(t, func() bool {
		_, err := s.Get(ctx, "cs_short")
		return err == channels.ErrNotFound
	}, 5*time.Second, 100*time.Millisecond)
}

func TestStore_Claim(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ok, err := s.Claim(ctx, "cs_test_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "cs_test_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Release(ctx, "cs_test_1"))

	ok, err = s.Claim(ctx, "cs_test_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
