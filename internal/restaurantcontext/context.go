package restaurantcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// RestaurantKey is the request context key for the active restaurant ID.
type RestaurantKey struct{}

// UserKey is the request context key for the acting user ID.
type UserKey struct{}

// WithRestaurantID stores the restaurant ID in the context.
func WithRestaurantID(ctx context.Context, restaurantID int64) context.Context {
	return context.WithValue(ctx, RestaurantKey{}, restaurantID)
}

// WithUserID stores the acting user ID in the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserKey{}, userID)
}

// RestaurantIDFromContext returns the restaurant ID from context, if set.
func RestaurantIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	return idFromContext(ctx, RestaurantKey{})
}

// UserIDFromContext returns the acting user ID from context, if set.
func UserIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	return idFromContext(ctx, UserKey{})
}

func idFromContext(ctx context.Context, key any) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	value := ctx.Value(key)
	if value == nil {
		return 0, false
	}
	switch typed := value.(type) {
	case int64:
		return snowflake.ID(typed), true
	case snowflake.ID:
		return typed, true
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}
