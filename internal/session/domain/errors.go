package domain

import "errors"

var (
	// ErrConflict is returned for any transition attempted on a session
	// that is not in the valid predecessor state, and for opening a
	// session on a table that already carries one.
	ErrConflict = errors.New("session_conflict")

	ErrSessionNotFound = errors.New("session_not_found")
	ErrOrderNotFound   = errors.New("order_not_found")
	ErrTableNotFound   = errors.New("table_not_found")
	ErrItemNotFound    = errors.New("item_not_found")

	ErrInvalidRestaurant = errors.New("invalid_restaurant")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInvalidDiscount   = errors.New("invalid_discount")
	ErrInvalidStation    = errors.New("invalid_station")
)
