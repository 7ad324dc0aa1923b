// Package bridge classifies inbound messages and routes them to the
// registration flow, the account lookup, or the forwarder.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pixrelay/pixrelay/internal/channel"
	"github.com/pixrelay/pixrelay/internal/receiver"
)

const commandPrefix = "!"

// commandHandler runs one recognized command. args carries everything after
// the command token.
type commandHandler func(r *Router, ctx context.Context, msg channel.InboundMessage, args []string)

// commands is the recognized command grammar. Tokens are matched against
// the lowercased first field of the message.
var commands = map[string]commandHandler{
	"!register": (*Router).handleRegister,
	"!status":   (*Router).handleStatus,
	"!whoami":   (*Router).handleStatus,
}

// imageContentTypes is the fixed set of attachment types the bridge
// forwards; everything else is skipped silently.
var imageContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// AccountLookup resolves a Discord user id to a registered email, or ""
// when unregistered or the lookup failed.
type AccountLookup interface {
	LookupEmail(ctx context.Context, discordID string) string
}

// RegistrationInitiator starts the OAuth registration flow and returns the
// time-limited authentication URL.
type RegistrationInitiator interface {
	Initiate(ctx context.Context, discordID, username string) (string, error)
}

// Forwarder relays message payloads to the receiver.
type Forwarder interface {
	ForwardAttachment(ctx context.Context, msg channel.InboundMessage, att channel.Attachment) (receiver.ForwardResult, error)
	ForwardText(ctx context.Context, msg channel.InboundMessage) (receiver.ForwardResult, error)
}

// Router inspects each inbound message and dispatches it. Handle never
// returns an error and never panics into the platform dispatcher.
type Router struct {
	logger    *slog.Logger
	lookup    AccountLookup
	initiator RegistrationInitiator
	forwarder Forwarder
	replier   channel.Replier
	allowed   map[string]struct{}
}

// NewRouter creates a Router. An empty allow-list accepts every guild
// channel; direct messages always bypass the list.
func NewRouter(log *slog.Logger, lookup AccountLookup, initiator RegistrationInitiator, forwarder Forwarder, replier channel.Replier, allowedChannels []string) *Router {
	if log == nil {
		log = slog.Default()
	}
	allowed := make(map[string]struct{}, len(allowedChannels))
	for _, id := range allowedChannels {
		id = strings.TrimSpace(id)
		if id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &Router{
		logger:    log.With(slog.String("component", "bridge")),
		lookup:    lookup,
		initiator: initiator,
		forwarder: forwarder,
		replier:   replier,
		allowed:   allowed,
	}
}

// Handle classifies one inbound message. Decision order, first match wins:
// bot author, command, allow-list, image attachments, plain text, nothing.
func (r *Router) Handle(ctx context.Context, msg channel.InboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("message handling panicked",
				slog.String("message_id", msg.ID),
				slog.Any("panic", rec),
			)
		}
	}()

	if msg.AuthorBot {
		return
	}

	fields := strings.Fields(msg.Content)
	if len(fields) > 0 {
		if handler, ok := commands[strings.ToLower(fields[0])]; ok {
			handler(r, ctx, msg, fields[1:])
			return
		}
	}

	if !msg.IsDirect() && len(r.allowed) > 0 {
		if _, ok := r.allowed[msg.ChannelID]; !ok {
			r.logger.Debug("channel not in allow-list",
				slog.String("channel_id", msg.ChannelID),
				slog.String("message_id", msg.ID),
			)
			return
		}
	}

	if len(msg.Attachments) > 0 {
		r.handleAttachments(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Content)
	if text != "" && !strings.HasPrefix(text, commandPrefix) {
		result, err := r.forwarder.ForwardText(ctx, msg)
		if err != nil {
			r.logger.Error("text forward failed",
				slog.String("message_id", msg.ID),
				slog.Any("error", err),
			)
			return
		}
		if !result.OK {
			r.logger.Warn("text forward rejected", slog.String("message_id", msg.ID))
		}
		return
	}
}

func (r *Router) handleRegister(ctx context.Context, msg channel.InboundMessage, args []string) {
	if len(args) > 0 {
		r.logger.Info("register command with arguments rejected",
			slog.String("author_id", msg.AuthorID),
		)
		r.reply(ctx, msg.ChannelID, "The !register command takes no arguments. Just send !register on its own.")
		return
	}

	authURL, err := r.initiator.Initiate(ctx, msg.AuthorID, msg.AuthorName)
	if err != nil {
		r.logger.Warn("registration initiation failed",
			slog.String("author_id", msg.AuthorID),
			slog.Any("error", err),
		)
		r.reply(ctx, msg.ChannelID, fmt.Sprintf("Registration could not be started: %s", err))
		return
	}
	r.reply(ctx, msg.ChannelID, fmt.Sprintf("Click here to link your account: %s\nThe link is valid for 10 minutes.", authURL))
}

func (r *Router) handleStatus(ctx context.Context, msg channel.InboundMessage, _ []string) {
	email := r.lookup.LookupEmail(ctx, msg.AuthorID)
	if email == "" {
		// Unregistered and lookup failure are indistinguishable here; the
		// reply covers both.
		r.reply(ctx, msg.ChannelID, "You are not registered yet (or the check did not go through). Send !register to link your account.")
		return
	}
	r.reply(ctx, msg.ChannelID, fmt.Sprintf("You are registered as %s.", email))
}

// handleAttachments forwards every image attachment independently. Replies
// are sent only in direct messages, one per attempted attachment; guild
// messages stay silent regardless of outcome.
func (r *Router) handleAttachments(ctx context.Context, msg channel.InboundMessage) {
	for _, att := range msg.Attachments {
		if !isImage(att.ContentType) {
			r.logger.Debug("attachment skipped",
				slog.String("message_id", msg.ID),
				slog.String("content_type", att.ContentType),
				slog.String("name", att.Name),
			)
			continue
		}

		result, err := r.forwarder.ForwardAttachment(ctx, msg, att)
		switch {
		case errors.Is(err, receiver.ErrNotRegistered):
			r.logger.Info("attachment gated, author not registered",
				slog.String("author_id", msg.AuthorID),
				slog.String("message_id", msg.ID),
			)
			if msg.IsDirect() {
				r.reply(ctx, msg.ChannelID, "Please register first: send !register to link your account.")
			}
		case err != nil:
			r.logger.Error("attachment forward failed",
				slog.String("message_id", msg.ID),
				slog.String("name", att.Name),
				slog.Any("error", err),
			)
			if msg.IsDirect() {
				r.reply(ctx, msg.ChannelID, fmt.Sprintf("Sorry, forwarding %s failed. Please try again.", att.Name))
			}
		case result.OK:
			if msg.IsDirect() {
				r.reply(ctx, msg.ChannelID, fmt.Sprintf("Got it! %s has been forwarded.", att.Name))
			}
		default:
			if msg.IsDirect() {
				r.reply(ctx, msg.ChannelID, fmt.Sprintf("Sorry, forwarding %s failed. Please try again.", att.Name))
			}
		}
	}
}

func (r *Router) reply(ctx context.Context, channelID, text string) {
	if r.replier == nil {
		return
	}
	if err := r.replier.Reply(ctx, channelID, text); err != nil {
		r.logger.Warn("reply failed",
			slog.String("channel_id", channelID),
			slog.Any("error", err),
		)
	}
}

func isImage(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if mediaType, _, found := strings.Cut(contentType, ";"); found {
		contentType = strings.TrimSpace(mediaType)
	}
	_, ok := imageContentTypes[contentType]
	return ok
}
