package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/kikitori/internal/config"
	discordpkg "github.com/foxseedlab/kikitori/internal/discord"
	"github.com/samber/do/v2"
)

const connectTimeout = 20 * time.Second

// RegisterDI provides a connected client. It is only resolved when the
// caption relay is configured.
func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (discordpkg.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		client := NewClient(c.DiscordToken)
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect discord: %w", err)
		}
		name, err := client.ResolveChannelName(c.DiscordCaptionChannelID)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to resolve caption channel: %w", err)
		}
		slog.Info("discord caption relay connected", "channel_id", c.DiscordCaptionChannelID, "channel_name", name)
		return client, nil
	})
}
