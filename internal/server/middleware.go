package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/config"
	"github.com/dinehall/dinehall/internal/restaurantcontext"
	"github.com/gin-gonic/gin"
)

const (
	HeaderRestaurant = "X-Restaurant-ID"
	HeaderUser       = "X-User-ID"
)

// RestaurantContext resolves the acting restaurant (and user, when
// present) from request headers and injects them into the request
// context. Identity provisioning itself lives outside this core.
func RestaurantContext(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		restaurantID := cfg.DefaultRestaurantID
		if raw := strings.TrimSpace(c.GetHeader(HeaderRestaurant)); raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil {
				AbortWithError(c, ErrInvalidRequest)
				return
			}
			restaurantID = parsed.Int64()
		}
		if restaurantID == 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		ctx := restaurantcontext.WithRestaurantID(c.Request.Context(), restaurantID)
		if raw := strings.TrimSpace(c.GetHeader(HeaderUser)); raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil {
				AbortWithError(c, ErrInvalidRequest)
				return
			}
			ctx = restaurantcontext.WithUserID(ctx, parsed.Int64())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
