package domain

import "errors"

var (
	ErrNotificationNotFound = errors.New("notification_not_found")
	ErrInvalidTarget        = errors.New("invalid_target")
	ErrEmptyTitle           = errors.New("empty_title")
)
