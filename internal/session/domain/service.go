package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type OpenSessionRequest struct {
	RestaurantID snowflake.ID  `json:"restaurant_id"`
	TableID      *snowflake.ID `json:"table_id,omitempty"`
	WaiterID     *snowflake.ID `json:"waiter_id,omitempty"`
	GuestCount   int           `json:"guest_count"`
}

type AddItemRequest struct {
	SessionID   snowflake.ID    `json:"session_id"`
	MenuItemID  snowflake.ID    `json:"menu_item_id"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	Station     Station         `json:"station"`
}

// Service owns the session state machine and the table side effects
// that come with it.
type Service interface {
	OpenSession(ctx context.Context, req OpenSessionRequest) (*SessionView, error)
	AddItem(ctx context.Context, req AddItemRequest) (*OrderItem, error)
	UpdateItemPrep(ctx context.Context, itemID snowflake.ID, status PrepStatus) (*OrderItem, error)
	RemoveItem(ctx context.Context, itemID snowflake.ID) error
	MarkBilled(ctx context.Context, sessionID snowflake.ID) (*TableSession, error)
	GetSession(ctx context.Context, sessionID snowflake.ID) (*SessionView, error)
	RecomputeOrderTotal(ctx context.Context, orderID snowflake.ID) (decimal.Decimal, error)
	ListActiveSessions(ctx context.Context, restaurantID snowflake.ID) ([]SessionView, error)
	ListClosedSessions(ctx context.Context, restaurantID snowflake.ID, limit int) ([]SessionView, error)
	PaymentMethodTotals(ctx context.Context, restaurantID snowflake.ID) ([]PaymentMethodTotal, error)
}
