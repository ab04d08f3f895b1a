package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is a staff role within one restaurant.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleWaiter    Role = "waiter"
	RoleChef      Role = "chef"
	RoleBartender Role = "bartender"
	RoleCashier   Role = "cashier"
)

// Restaurant is the tenant scope every other row hangs off.
type Restaurant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Restaurant) TableName() string { return "restaurants" }

// Member is one staff membership; a user may belong to several
// restaurants under different roles.
type Member struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	RestaurantID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_members_restaurant_user,priority:1" json:"restaurant_id"`
	UserID       snowflake.ID `gorm:"not null;uniqueIndex:ux_members_restaurant_user,priority:2" json:"user_id"`
	DisplayName  string       `gorm:"type:text;not null" json:"display_name"`
	Role         Role         `gorm:"type:text;not null" json:"role"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Member) TableName() string { return "members" }

// Repository resolves membership rows for one restaurant.
type Repository interface {
	ListByRestaurant(ctx context.Context, restaurantID snowflake.ID) ([]Member, error)
	ListByRoles(ctx context.Context, restaurantID snowflake.ID, roles []Role) ([]Member, error)
	FindByUser(ctx context.Context, restaurantID, userID snowflake.ID) (*Member, error)
}
