package discord

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestFromMessageCreate(t *testing.T) {
	t.Parallel()

	m := &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "chan-1",
		GuildID:   "guild-1",
		Content:   "hello",
		Author:    &discordgo.User{ID: "user-1", Username: "alice", Bot: false},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example/a.png", ContentType: "image/png", Filename: "a.png"},
			nil,
			{URL: "https://cdn.example/b.pdf", ContentType: "application/pdf", Filename: "b.pdf"},
		},
	}

	msg := fromMessageCreate(m)
	if msg.ID != "msg-1" || msg.ChannelID != "chan-1" || msg.GuildID != "guild-1" {
		t.Fatalf("unexpected identity fields: %+v", msg)
	}
	if msg.AuthorID != "user-1" || msg.AuthorName != "alice" || msg.AuthorBot {
		t.Fatalf("unexpected author fields: %+v", msg)
	}
	if msg.IsDirect() {
		t.Fatalf("guild message must not be direct")
	}
	if len(msg.Attachments) != 2 {
		t.Fatalf("expected nil attachment dropped, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].URL != "https://cdn.example/a.png" || msg.Attachments[0].Name != "a.png" {
		t.Fatalf("unexpected attachment: %+v", msg.Attachments[0])
	}
	if msg.ReceivedAt.IsZero() {
		t.Fatalf("expected received timestamp")
	}
}

func TestFromMessageCreateDirectMessage(t *testing.T) {
	t.Parallel()

	m := &discordgo.Message{
		ID:        "msg-2",
		ChannelID: "dm-1",
		Content:   "hi",
		Author:    &discordgo.User{ID: "user-2", Username: "bob", Bot: true},
	}

	msg := fromMessageCreate(m)
	if !msg.IsDirect() {
		t.Fatalf("message without guild id must be direct")
	}
	if !msg.AuthorBot {
		t.Fatalf("expected bot author flag")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	short := "hello"
	if truncate(short) != short {
		t.Fatalf("short text must not change")
	}

	long := strings.Repeat("x", maxMessageLength+50)
	got := truncate(long)
	if len(got) != maxMessageLength {
		t.Fatalf("expected %d chars, got %d", maxMessageLength, len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix")
	}
}
