package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/dinehall/dinehall/internal/member/domain"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

const (
	defaultRestaurantName = "Main"
	defaultTableCount     = 12
)

// EnsureMainRestaurant seeds the default restaurant with a floor of
// tables so a fresh install is usable immediately.
func EnsureMainRestaurant(db *gorm.DB) error {
	return ensure(db, 0)
}

// EnsureMainRestaurantWithID seeds the default restaurant under a fixed
// id, used when the deployment pins DEFAULT_RESTAURANT.
func EnsureMainRestaurantWithID(db *gorm.DB, id int64) error {
	return ensure(db, id)
}

func ensure(db *gorm.DB, fixedID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		restaurant, err := ensureRestaurantTx(ctx, tx, node, fixedID)
		if err != nil {
			return err
		}
		return ensureTablesTx(ctx, tx, node, restaurant.ID)
	})
}

func ensureRestaurantTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, fixedID int64) (memberdomain.Restaurant, error) {
	restaurantSlug := slug.Make(defaultRestaurantName)

	var restaurant memberdomain.Restaurant
	err := tx.WithContext(ctx).Where("slug = ?", restaurantSlug).First(&restaurant).Error
	if err == nil {
		return restaurant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return restaurant, err
	}

	id := node.Generate()
	if fixedID != 0 {
		id = snowflake.ID(fixedID)
	}
	restaurant = memberdomain.Restaurant{
		ID:        id,
		Name:      defaultRestaurantName,
		Slug:      restaurantSlug,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&restaurant).Error; err != nil {
		return restaurant, err
	}
	return restaurant, nil
}

func ensureTablesTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, restaurantID snowflake.ID) error {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&sessiondomain.RestaurantTable{}).
		Where("restaurant_id = ?", restaurantID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	tables := make([]sessiondomain.RestaurantTable, 0, defaultTableCount)
	for number := 1; number <= defaultTableCount; number++ {
		tables = append(tables, sessiondomain.RestaurantTable{
			ID:           node.Generate(),
			RestaurantID: restaurantID,
			Number:       number,
			Status:       sessiondomain.TableAvailable,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return tx.WithContext(ctx).Create(&tables).Error
}
