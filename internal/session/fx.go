package session

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/config"
	"github.com/dinehall/dinehall/internal/session/live"
	"github.com/dinehall/dinehall/internal/session/repository"
	"github.com/dinehall/dinehall/internal/session/service"
	"go.uber.org/fx"
)

var Module = fx.Module("session",
	fx.Provide(
		repository.Provide,
		service.NewService,
		live.NewTracker,
	),
	fx.Invoke(runTracker),
)

func runTracker(lc fx.Lifecycle, tracker *live.Tracker, cfg config.Config) {
	if cfg.DefaultRestaurantID == 0 {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			tracker.Start(snowflake.ID(cfg.DefaultRestaurantID))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			tracker.Stop()
			return nil
		},
	})
}
