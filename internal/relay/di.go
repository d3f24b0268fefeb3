package relay

import (
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/discord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Dispatcher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		var sinks []Sink
		if cfg.CaptionRelayEnabled() {
			dc, err := do.Invoke[discord.Client](i)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, NewDiscordSink(dc, cfg.DiscordCaptionChannelID))
		}
		return NewDispatcher(sinks, cfg.CaptionQueueSize), nil
	})
}
