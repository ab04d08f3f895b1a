package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrAlreadySettled reports a double-settlement attempt. The caller
	// recovers by refetching the session.
	ErrAlreadySettled = errors.New("already_settled")

	ErrInvalidMethod  = errors.New("invalid_payment_method")
	ErrTenderRequired = errors.New("tender_required")
)

// InsufficientTenderError rejects a cash settlement short of the order
// total. Shortfall is surfaced verbatim so the cashier can correct it.
type InsufficientTenderError struct {
	Shortfall decimal.Decimal
}

func (e *InsufficientTenderError) Error() string {
	return fmt.Sprintf("insufficient_tender: short by %s", e.Shortfall.StringFixed(2))
}

// AsInsufficientTender unwraps err into an InsufficientTenderError.
func AsInsufficientTender(err error) (*InsufficientTenderError, bool) {
	var target *InsufficientTenderError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
