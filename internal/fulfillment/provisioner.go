package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bissquit/toplane-coaching/internal/discord"
	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/pkg/ctxlog"
)

const channelSuffixLen = 8

// ChatClient is the subset of the Discord API the provisioner needs.
type ChatClient interface {
	ListGuildChannels(ctx context.Context) ([]discord.Channel, error)
	CreateGuildChannel(ctx context.Context, req discord.CreateChannelRequest) (discord.Channel, error)
	CreateMessage(ctx context.Context, channelID string, msg discord.Message) (discord.SentMessage, error)
	GuildID() string
	ChannelURL(channelID string) string
}

// ProvisionerConfig configures channel provisioning.
type ProvisionerConfig struct {
	CategoryName string
	StaffRoleIDs []string
	CoachMention string
	// BookingURLs maps plan ids with a live session to their booking link.
	BookingURLs map[string]string
}

// ProvisionRequest describes the channel to create.
type ProvisionRequest struct {
	Plan          domain.Plan
	SessionID     string
	CustomerEmail string
	CustomerName  string
}

// ProvisionResult is the channel handed to the customer.
type ProvisionResult struct {
	ChannelID   string
	ChannelName string
	ChannelURL  string
	// Reused is true when a channel with the same name already existed.
	Reused bool
}

// Provisioner creates private customer channels.
type Provisioner struct {
	client     ChatClient
	onboarding *discord.Onboarding
	config     ProvisionerConfig

	// mu serializes find-or-create so concurrent orders share one category.
	mu sync.Mutex
}

// NewProvisioner creates a provisioner.
func NewProvisioner(client ChatClient, onboarding *discord.Onboarding, config ProvisionerConfig) *Provisioner {
	return &Provisioner{
		client:     client,
		onboarding: onboarding,
		config:     config,
	}
}

// ChannelName builds "<plan>-customer-<last 8 of order id>" in lower case.
func ChannelName(plan domain.PlanID, orderID string) string {
	suffix := orderID
	if len(suffix) > channelSuffixLen {
		suffix = suffix[len(suffix)-channelSuffixLen:]
	}
	return strings.ToLower(fmt.Sprintf("%s-customer-%s", plan, suffix))
}

// Provision finds or creates the customer channel and posts onboarding into new ones.
func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	log := ctxlog.FromContext(ctx).With("session_id", req.SessionID, "plan", req.Plan.ID)
	name := ChannelName(req.Plan.ID, req.SessionID)

	channel, reused, err := p.findOrCreate(ctx, name, req)
	if err != nil {
		return ProvisionResult{}, err
	}

	result := ProvisionResult{
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		ChannelURL:  p.client.ChannelURL(channel.ID),
		Reused:      reused,
	}

	if reused {
		log.Info("reusing existing customer channel", "channel_id", channel.ID, "channel", name)
		return result, nil
	}

	log.Info("customer channel created", "channel_id", channel.ID, "channel", name)
	p.postOnboarding(ctx, channel.ID, req)
	return result, nil
}

func (p *Provisioner) findOrCreate(ctx context.Context, name string, req ProvisionRequest) (discord.Channel, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	channels, err := p.client.ListGuildChannels(ctx)
	if err != nil {
		return discord.Channel{}, false, fmt.Errorf("list guild channels: %w", err)
	}

	categoryID := ""
	for _, ch := range channels {
		if ch.Type == discord.ChannelTypeCategory && ch.Name == p.config.CategoryName {
			categoryID = ch.ID
			break
		}
	}

	if categoryID != "" {
		for _, ch := range channels {
			if ch.Type == discord.ChannelTypeText && ch.ParentID == categoryID && ch.Name == name {
				return ch, true, nil
			}
		}
	} else {
		category, err := p.client.CreateGuildChannel(ctx, discord.CreateChannelRequest{
			Name: p.config.CategoryName,
			Type: discord.ChannelTypeCategory,
		})
		if err != nil {
			return discord.Channel{}, false, fmt.Errorf("create category: %w", err)
		}
		categoryID = category.ID
		ctxlog.FromContext(ctx).Info("customer category created", "category_id", categoryID, "name", p.config.CategoryName)
	}

	channel, err := p.client.CreateGuildChannel(ctx, discord.CreateChannelRequest{
		Name:                 name,
		Type:                 discord.ChannelTypeText,
		ParentID:             categoryID,
		Topic:                fmt.Sprintf("%s for %s", req.Plan.Name, req.CustomerEmail),
		PermissionOverwrites: p.overwrites(),
	})
	if err != nil {
		return discord.Channel{}, false, fmt.Errorf("create channel: %w", err)
	}
	return channel, false, nil
}

// overwrites hides the channel from @everyone and opens it to staff roles.
// The @everyone role id equals the guild id.
func (p *Provisioner) overwrites() []discord.PermissionOverwrite {
	out := []discord.PermissionOverwrite{
		discord.NewOverwrite(p.client.GuildID(), discord.OverwriteRole, 0, discord.PermissionViewChannel),
	}
	staff := discord.PermissionViewChannel | discord.PermissionSendMessages
	for _, id := range p.config.StaffRoleIDs {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, discord.NewOverwrite(id, discord.OverwriteRole, staff, 0))
		}
	}
	return out
}

func (p *Provisioner) postOnboarding(ctx context.Context, channelID string, req ProvisionRequest) {
	log := ctxlog.FromContext(ctx).With("session_id", req.SessionID, "channel_id", channelID)

	embeds, err := p.onboarding.Render(discord.OnboardingData{
		Plan:          req.Plan,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		BookingURL:    p.bookingURL(req.Plan),
		CoachMention:  p.config.CoachMention,
	})
	if err != nil {
		log.Error("failed to render onboarding", "error", err)
		return
	}

	for i, embed := range embeds {
		if _, err := p.client.CreateMessage(ctx, channelID, discord.Message{Embeds: []discord.Embed{embed}}); err != nil {
			log.Error("failed to post onboarding message", "index", i, "title", embed.Title, "error", err)
		}
	}
}

func (p *Provisioner) bookingURL(plan domain.Plan) string {
	if !plan.HasLiveSession {
		return ""
	}
	return p.config.BookingURLs[string(plan.ID)]
}
