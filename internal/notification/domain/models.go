package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/dinehall/dinehall/internal/member/domain"
	"gorm.io/datatypes"
)

// Priority orders notifications in role inboxes.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// TargetType tags the recipient-resolution variant.
type TargetType string

const (
	TargetTypeAll  TargetType = "all"
	TargetTypeRole TargetType = "role"
	TargetTypeUser TargetType = "user"
)

// Target is the tagged recipient selector of one send.
type Target struct {
	Type    TargetType          `json:"type"`
	Roles   []memberdomain.Role `json:"roles,omitempty"`
	UserIDs []snowflake.ID      `json:"user_ids,omitempty"`
}

func TargetAll() Target {
	return Target{Type: TargetTypeAll}
}

func TargetRoles(roles ...memberdomain.Role) Target {
	return Target{Type: TargetTypeRole, Roles: roles}
}

func TargetUsers(userIDs ...snowflake.ID) Target {
	return Target{Type: TargetTypeUser, UserIDs: userIDs}
}

// Notification is the single authoritative copy of the content.
// Immutable after creation.
type Notification struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	RestaurantID  snowflake.ID   `gorm:"not null;index" json:"restaurant_id"`
	SenderID      snowflake.ID   `gorm:"not null" json:"sender_id"`
	Title         string         `gorm:"type:text;not null" json:"title"`
	Message       string         `gorm:"type:text;not null" json:"message"`
	Type          string         `gorm:"type:text;not null;default:'general'" json:"type"`
	Priority      Priority       `gorm:"type:text;not null;default:'normal'" json:"priority"`
	TargetType    TargetType     `gorm:"type:text;not null" json:"target_type"`
	TargetRoles   datatypes.JSON `json:"target_roles,omitempty"`
	TargetUserIDs datatypes.JSON `json:"target_user_ids,omitempty"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

// UserNotification is one recipient's inbox row. The unique index
// guarantees the same notification never appears twice for one user.
type UserNotification struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	NotificationID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_user_notifications_pair,priority:1" json:"notification_id"`
	UserID         snowflake.ID `gorm:"not null;index;uniqueIndex:ux_user_notifications_pair,priority:2" json:"user_id"`
	RestaurantID   snowflake.ID `gorm:"not null;index" json:"restaurant_id"`
	IsRead         bool         `gorm:"not null;default:false" json:"is_read"`
	ReadAt         *time.Time   `json:"read_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (UserNotification) TableName() string { return "user_notifications" }

// InboxEntry joins a recipient row to its notification content.
type InboxEntry struct {
	UserNotification UserNotification `json:"user_notification"`
	Notification     Notification     `json:"notification"`
}

type SendRequest struct {
	RestaurantID snowflake.ID   `json:"restaurant_id"`
	SenderID     snowflake.ID   `json:"sender_id"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Type         string         `json:"type"`
	Priority     Priority       `json:"priority"`
	Target       Target         `json:"target"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
}

// WarningNoRecipients signals that recipient resolution produced zero
// rows. The notification itself still exists; this is not an error.
const WarningNoRecipients = "no_recipients"

type SendResult struct {
	Notification *Notification `json:"notification"`
	Recipients   int           `json:"recipients"`
	Warning      string        `json:"warning,omitempty"`
}

// Service fans one notification out to per-recipient inbox rows and
// owns the recipient-scoped read-state operations.
type Service interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	List(ctx context.Context, restaurantID, userID snowflake.ID, limit int) ([]InboxEntry, error)
	UnreadCount(ctx context.Context, restaurantID, userID snowflake.ID) (int64, error)
	MarkRead(ctx context.Context, restaurantID, userID, notificationID snowflake.ID) error
	MarkAllRead(ctx context.Context, restaurantID, userID snowflake.ID) (int64, error)
	Delete(ctx context.Context, restaurantID, userID, notificationID snowflake.ID) error
	ClearAll(ctx context.Context, restaurantID, userID snowflake.ID) (int64, error)
}
