package websocket

import (
	"net/http"

	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (http.Handler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		manager, err := do.Invoke[*session.Manager](i)
		if err != nil {
			return nil, err
		}
		return NewServeMux(manager, cfg.MaxMessageBytes), nil
	})
}
