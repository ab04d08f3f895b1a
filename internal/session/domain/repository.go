package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository executes row-level reads and writes for sessions, orders,
// items and tables. Methods take the gorm handle explicitly so callers
// can pass a transaction.
type Repository interface {
	InsertSession(ctx context.Context, db *gorm.DB, session *TableSession) error
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	InsertItem(ctx context.Context, db *gorm.DB, item *OrderItem) error

	FindSession(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TableSession, error)
	FindSessionByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*TableSession, error)
	FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindTable(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RestaurantTable, error)
	FindItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OrderItem, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)

	// ActiveSessionForTable returns the one non-close session on a
	// table, or nil.
	ActiveSessionForTable(ctx context.Context, db *gorm.DB, tableID snowflake.ID) (*TableSession, error)

	// TransitionSession performs a conditional status update guarded by
	// the allowed predecessor states and reports rows affected.
	TransitionSession(ctx context.Context, db *gorm.DB, id snowflake.ID, from []SessionStatus, to SessionStatus, closedAt *time.Time, now time.Time) (int64, error)

	UpdateItemPrep(ctx context.Context, db *gorm.DB, id snowflake.ID, status PrepStatus, now time.Time) (int64, error)
	DeleteItem(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	UpdateOrderTotal(ctx context.Context, db *gorm.DB, orderID snowflake.ID, total decimal.Decimal, now time.Time) error
	FinalizeOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, total decimal.Decimal, method PaymentMethod, now time.Time) error

	UpdateTable(ctx context.Context, db *gorm.DB, tableID snowflake.ID, status TableStatus, waiterID *snowflake.ID, now time.Time) (int64, error)

	ListSessionViews(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, closed bool, limit int) ([]SessionView, error)
	PaymentMethodTotals(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID) ([]PaymentMethodTotal, error)
}
