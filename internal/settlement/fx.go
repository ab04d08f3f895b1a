package settlement

import (
	"github.com/dinehall/dinehall/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement",
	fx.Provide(service.NewService),
)
