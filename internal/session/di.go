package session

import (
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/recognizer"
	"github.com/foxseedlab/kikitori/internal/relay"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		rec := do.MustInvoke[recognizer.Recognizer](i)
		repo := do.MustInvoke[repository.Repository](i)
		wh := do.MustInvoke[webhook.Sender](i)
		captions, err := do.Invoke[*relay.Dispatcher](i)
		if err != nil {
			return nil, err
		}
		return NewManager(cfg, rec, repo, wh, captions), nil
	})
}
