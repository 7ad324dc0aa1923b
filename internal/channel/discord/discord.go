// Package discord adapts the Discord gateway to the channel abstraction.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/pixrelay/pixrelay/internal/channel"
)

const maxMessageLength = 2000

// Adapter owns one Discord gateway session and converts message-create
// events into channel.InboundMessage values.
type Adapter struct {
	logger  *slog.Logger
	session *discordgo.Session
}

// NewAdapter creates a Discord adapter for the given bot token.
func NewAdapter(log *slog.Logger, token string) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &Adapter{
		logger:  log.With(slog.String("adapter", "discord")),
		session: session,
	}, nil
}

// Connect registers exactly one message handler and opens the gateway
// connection. The handler runs in its own goroutine per message and never
// lets a panic or error reach the discordgo dispatcher.
func (a *Adapter) Connect(ctx context.Context, handler channel.Handler) (channel.Connection, error) {
	remove := a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Message == nil || m.Author == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		msg := fromMessageCreate(m.Message)
		a.logger.Debug("inbound received",
			slog.String("message_id", msg.ID),
			slog.String("author_id", msg.AuthorID),
			slog.Bool("direct", msg.IsDirect()),
			slog.Int("attachments", len(msg.Attachments)),
		)

		go func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("handle inbound panicked",
						slog.String("message_id", msg.ID),
						slog.Any("panic", r),
					)
				}
			}()
			if handler != nil {
				handler(ctx, msg)
			}
		}()
	})

	if err := a.session.Open(); err != nil {
		remove()
		return nil, fmt.Errorf("discord open connection: %w", err)
	}

	stop := func(stopCtx context.Context) error {
		a.logger.Info("stop")
		remove()
		return a.session.Close()
	}
	return channel.NewConnection(stop), nil
}

// Reply sends a text reply into a Discord channel, truncated to the
// platform limit.
func (a *Adapter) Reply(ctx context.Context, channelID, text string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("discord channel id is required")
	}
	_, err := a.session.ChannelMessageSend(channelID, truncate(text))
	return err
}

// fromMessageCreate converts a gateway message into the platform-neutral
// inbound model.
func fromMessageCreate(m *discordgo.Message) channel.InboundMessage {
	msg := channel.InboundMessage{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		Content:    m.Content,
		ReceivedAt: time.Now().UTC(),
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
		msg.AuthorBot = m.Author.Bot
	}
	if len(m.Attachments) > 0 {
		msg.Attachments = make([]channel.Attachment, 0, len(m.Attachments))
		for _, att := range m.Attachments {
			if att == nil {
				continue
			}
			msg.Attachments = append(msg.Attachments, channel.Attachment{
				URL:         att.URL,
				ContentType: att.ContentType,
				Name:        att.Filename,
			})
		}
	}
	return msg
}

func truncate(text string) string {
	if len(text) > maxMessageLength {
		text = text[:maxMessageLength-3] + "..."
	}
	return text
}
