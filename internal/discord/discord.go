package discord

import (
	"context"
	"errors"
)

// ErrChannelNotFound is returned when the caption channel does not exist or
// the bot cannot see it.
var ErrChannelNotFound = errors.New("discord channel not found")

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	SendChannelMessage(channelID, content string) error
	ResolveChannelName(channelID string) (string, error)
}
