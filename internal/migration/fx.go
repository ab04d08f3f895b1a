package migration

import (
	"github.com/dinehall/dinehall/internal/config"
	"github.com/dinehall/dinehall/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		if cfg.DefaultRestaurantID != 0 {
			return seed.EnsureMainRestaurantWithID(conn, cfg.DefaultRestaurantID)
		}
		return seed.EnsureMainRestaurant(conn)
	}),
)
