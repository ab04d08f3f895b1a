package notification

import (
	"github.com/dinehall/dinehall/internal/notification/repository"
	"github.com/dinehall/dinehall/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
