package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/dinehall/dinehall/internal/member/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) memberdomain.Repository {
	return &repo{db: db}
}

func (r *repo) ListByRestaurant(ctx context.Context, restaurantID snowflake.ID) ([]memberdomain.Member, error) {
	var members []memberdomain.Member
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("id").
		Find(&members).Error
	return members, err
}

func (r *repo) ListByRoles(ctx context.Context, restaurantID snowflake.ID, roles []memberdomain.Role) ([]memberdomain.Member, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var members []memberdomain.Member
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND role IN ?", restaurantID, roles).
		Order("id").
		Find(&members).Error
	return members, err
}

func (r *repo) FindByUser(ctx context.Context, restaurantID, userID snowflake.ID) (*memberdomain.Member, error) {
	var member memberdomain.Member
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND user_id = ?", restaurantID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}
