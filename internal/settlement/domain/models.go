package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	"github.com/shopspring/decimal"
)

// SettleRequest finalizes payment for one session. Tendered is required
// for cash and ignored for card/momo.
type SettleRequest struct {
	SessionID snowflake.ID                `json:"session_id"`
	Method    sessiondomain.PaymentMethod `json:"method"`
	Tendered  *decimal.Decimal            `json:"tendered,omitempty"`
}

// Receipt echoes the finalized settlement. Change is present for cash
// only.
type Receipt struct {
	SessionID snowflake.ID                `json:"session_id"`
	OrderID   snowflake.ID                `json:"order_id"`
	TableID   *snowflake.ID               `json:"table_id,omitempty"`
	Total     decimal.Decimal             `json:"total"`
	Method    sessiondomain.PaymentMethod `json:"method"`
	Tendered  *decimal.Decimal            `json:"tendered,omitempty"`
	Change    *decimal.Decimal            `json:"change,omitempty"`
	SettledAt time.Time                   `json:"settled_at"`
}

// Service performs the at-most-once settlement of a session. It is
// never retried automatically; a second attempt on the same session
// reports ErrAlreadySettled.
type Service interface {
	Settle(ctx context.Context, req SettleRequest) (*Receipt, error)
}
