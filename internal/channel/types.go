// Package channel defines the platform-neutral inbound message model and
// the connection lifecycle shared by chat-platform adapters.
package channel

import (
	"context"
	"strings"
	"time"
)

// Attachment is a binary file attached to an inbound message.
type Attachment struct {
	URL         string
	ContentType string
	Name        string
}

// InboundMessage is a message received from the chat platform. It is
// created by the platform event, read-only, and discarded after handling.
type InboundMessage struct {
	ID          string
	AuthorID    string
	AuthorName  string
	AuthorBot   bool
	ChannelID   string
	GuildID     string
	Content     string
	Attachments []Attachment
	ReceivedAt  time.Time
}

// IsDirect reports whether the message arrived outside any guild.
func (m InboundMessage) IsDirect() bool {
	return strings.TrimSpace(m.GuildID) == ""
}

// Handler is the callback invoked for each inbound message. It must not
// panic into the platform dispatcher; adapters recover and log.
type Handler func(ctx context.Context, msg InboundMessage)

// Replier sends a user-visible text reply into a platform channel.
type Replier interface {
	Reply(ctx context.Context, channelID, text string) error
}

// Connector establishes a long-lived platform connection with exactly one
// inbound handler registered before the connection opens.
type Connector interface {
	Connect(ctx context.Context, handler Handler) (Connection, error)
}

// Connection represents an active, long-lived link to the platform.
type Connection interface {
	Stop(ctx context.Context) error
	Running() bool
}
