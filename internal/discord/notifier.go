package discord

import (
	"context"
	"fmt"
	"sync"
)

// Notifier posts admin notifications into the staff channel.
type Notifier struct {
	client      *Client
	channelName string

	mu        sync.Mutex
	channelID string
}

// NewNotifier creates a notifier. When channelID is empty the channel is
// resolved by name on first use and cached.
func NewNotifier(client *Client, channelID, channelName string) *Notifier {
	return &Notifier{
		client:      client,
		channelID:   channelID,
		channelName: channelName,
	}
}

// Notify posts a plain text message.
func (n *Notifier) Notify(ctx context.Context, content string) error {
	return n.Send(ctx, Message{Content: content})
}

// Send posts a message into the notifications channel.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	channelID, err := n.resolve(ctx)
	if err != nil {
		return err
	}

	if _, err := n.client.CreateMessage(ctx, channelID, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func (n *Notifier) resolve(ctx context.Context) (string, error) {
	n.mu.Lock()
	cached := n.channelID
	n.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	// Concurrent callers may each list channels until one result is cached.
	channels, err := n.client.ListGuildChannels(ctx)
	if err != nil {
		return "", fmt.Errorf("list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == ChannelTypeText && ch.Name == n.channelName {
			n.mu.Lock()
			n.channelID = ch.ID
			n.mu.Unlock()
			return ch.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrChannelNotFound, n.channelName)
}
