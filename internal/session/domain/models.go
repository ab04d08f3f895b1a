package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of one table occupancy.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionBilled SessionStatus = "billed"
	SessionClose  SessionStatus = "close"
)

// OrderStatus tracks the order attached to a session.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderServed    OrderStatus = "served"
	OrderCancelled OrderStatus = "cancelled"
)

// TableStatus is the floor state of a restaurant table.
type TableStatus string

const (
	TableAvailable   TableStatus = "available"
	TableReserved    TableStatus = "reserved"
	TableOccupied    TableStatus = "occupied"
	TableUnavailable TableStatus = "unavailable"
)

// PaymentMethod is how a settled order was paid.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
	PaymentMomo PaymentMethod = "momo"
)

// Station routes an item to the preparation display it belongs to.
type Station string

const (
	StationKitchen Station = "kitchen"
	StationBar     Station = "bar"
)

// PrepStatus is the preparation workflow state of one line item.
type PrepStatus string

const (
	PrepPending   PrepStatus = "pending"
	PrepPreparing PrepStatus = "preparing"
	PrepReady     PrepStatus = "ready"
	PrepServed    PrepStatus = "served"
)

// TableSession is one dining occupancy from open to settlement. Rows
// are never deleted, only transitioned to close.
type TableSession struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	RestaurantID snowflake.ID  `gorm:"not null;index" json:"restaurant_id"`
	TableID      *snowflake.ID `gorm:"index" json:"table_id,omitempty"`
	OrderID      snowflake.ID  `gorm:"not null;index" json:"order_id"`
	WaiterID     *snowflake.ID `json:"waiter_id,omitempty"`
	Status       SessionStatus `gorm:"type:text;not null;index" json:"status"`
	GuestCount   int           `gorm:"not null;default:1" json:"guest_count"`
	OpenedAt     time.Time     `gorm:"not null" json:"opened_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TableSession) TableName() string { return "table_sessions" }

// Order is the monetary side of a session, one per session.
type Order struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	RestaurantID  snowflake.ID    `gorm:"not null;index" json:"restaurant_id"`
	Total         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total"`
	PaymentMethod *PaymentMethod  `gorm:"type:text" json:"payment_method,omitempty"`
	Status        OrderStatus     `gorm:"type:text;not null;index" json:"status"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is one line of an order. LineSum is persisted so the order
// total is an exact decimal sum of stored values.
type OrderItem struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	RestaurantID snowflake.ID    `gorm:"not null;index" json:"restaurant_id"`
	OrderID      snowflake.ID    `gorm:"not null;index" json:"order_id"`
	MenuItemID   snowflake.ID    `gorm:"not null" json:"menu_item_id"`
	Name         string          `gorm:"type:text;not null" json:"name"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	DiscountPct  decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"discount_pct"`
	LineSum      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"line_sum"`
	Station      Station         `gorm:"type:text;not null;default:'kitchen'" json:"station"`
	PrepStatus   PrepStatus      `gorm:"type:text;not null;default:'pending'" json:"prep_status"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (OrderItem) TableName() string { return "order_items" }

// RestaurantTable is floor state. Mutations go through the session and
// settlement services only, never from arbitrary callers.
type RestaurantTable struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	RestaurantID snowflake.ID  `gorm:"not null;index" json:"restaurant_id"`
	Number       int           `gorm:"not null" json:"number"`
	Status       TableStatus   `gorm:"type:text;not null" json:"status"`
	WaiterID     *snowflake.ID `json:"waiter_id,omitempty"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (RestaurantTable) TableName() string { return "restaurant_tables" }

// SessionView is the assembled read model served to role screens.
type SessionView struct {
	Session     TableSession `json:"session"`
	Order       Order        `json:"order"`
	Items       []OrderItem  `json:"items"`
	TableNumber *int         `json:"table_number,omitempty"`
}

// PaymentMethodTotal is one row of the all-sessions revenue aggregate.
type PaymentMethodTotal struct {
	Method PaymentMethod   `json:"method"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// LineSum computes quantity x unit price x (1 - discount%), rounded
// half-up to two decimal places. Money never passes through floats.
func LineSum(quantity int, unitPrice, discountPct decimal.Decimal) decimal.Decimal {
	gross := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	factor := decimal.NewFromInt(1).Sub(discountPct.Div(decimal.NewFromInt(100)))
	return gross.Mul(factor).Round(2)
}
