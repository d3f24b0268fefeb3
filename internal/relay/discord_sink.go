package relay

import (
	"context"

	"github.com/foxseedlab/kikitori/internal/discord"
)

// DiscordSink posts captions to one text channel.
type DiscordSink struct {
	client    discord.Client
	channelID string
}

func NewDiscordSink(client discord.Client, channelID string) *DiscordSink {
	return &DiscordSink{client: client, channelID: channelID}
}

func (s *DiscordSink) Name() string { return "discord" }

func (s *DiscordSink) Deliver(ctx context.Context, c Caption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.SendChannelMessage(s.channelID, formatCaption(c))
}
