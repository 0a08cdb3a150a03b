package discord

import "fmt"

// Channel types.
const (
	ChannelTypeText     = 0
	ChannelTypeCategory = 4
)

// Permission overwrite target types.
const (
	OverwriteRole   = 0
	OverwriteMember = 1
)

// Permission bits.
const (
	PermissionViewChannel  int64 = 1 << 10
	PermissionSendMessages int64 = 1 << 11
)

// Channel is a guild channel as returned by the API.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	ParentID string `json:"parent_id,omitempty"`
}

// PermissionOverwrite grants or denies permissions for a role or member.
// Allow and Deny are decimal strings as the API expects.
type PermissionOverwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

// NewOverwrite builds a role or member overwrite.
func NewOverwrite(id string, kind int, allow, deny int64) PermissionOverwrite {
	return PermissionOverwrite{
		ID:    id,
		Type:  kind,
		Allow: fmt.Sprintf("%d", allow),
		Deny:  fmt.Sprintf("%d", deny),
	}
}

// CreateChannelRequest is the body of a guild channel creation call.
type CreateChannelRequest struct {
	Name                 string                `json:"name"`
	Type                 int                   `json:"type"`
	ParentID             string                `json:"parent_id,omitempty"`
	Topic                string                `json:"topic,omitempty"`
	PermissionOverwrites []PermissionOverwrite `json:"permission_overwrites,omitempty"`
}

// Message is an outgoing channel message.
type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is a rich message block.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField is a name/value pair inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// EmbedFooter is the small text under an embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// SentMessage is the subset of a created message the client reads back.
type SentMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// apiError is the error body returned by the API.
type apiError struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}
