package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/dinehall/dinehall/internal/notification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists notification content and per-recipient rows.
// Methods take the gorm handle so fan-out can run transactionally.
type Repository interface {
	InsertNotification(ctx context.Context, tx *gorm.DB, notification *notificationdomain.Notification) error
	InsertUserNotifications(ctx context.Context, tx *gorm.DB, rows []notificationdomain.UserNotification) (int, error)

	ListInbox(ctx context.Context, tx *gorm.DB, restaurantID, userID snowflake.ID, limit int) ([]notificationdomain.InboxEntry, error)
	UnreadCount(ctx context.Context, tx *gorm.DB, restaurantID, userID snowflake.ID) (int64, error)

	MarkRead(ctx context.Context, tx *gorm.DB, restaurantID, userID, notificationID snowflake.ID, now time.Time) (int64, error)
	MarkAllRead(ctx context.Context, tx *gorm.DB, restaurantID, userID snowflake.ID, now time.Time) (int64, error)
	Delete(ctx context.Context, tx *gorm.DB, restaurantID, userID, notificationID snowflake.ID) (int64, error)
	ClearAll(ctx context.Context, tx *gorm.DB, restaurantID, userID snowflake.ID) (int64, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) InsertNotification(ctx context.Context, tx *gorm.DB, notification *notificationdomain.Notification) error {
	return tx.WithContext(ctx).Create(notification).Error
}

// InsertUserNotifications bulk-inserts one inbox row per recipient and
// reports how many landed. Duplicate (notification, user) pairs are
// skipped at the index so redelivered fan-outs stay idempotent without
// aborting the enclosing transaction.
func (r *repo) InsertUserNotifications(ctx context.Context, tx *gorm.DB, rows []notificationdomain.UserNotification) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "notification_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&rows)
	return int(result.RowsAffected), result.Error
}

func (r *repo) ListInbox(ctx context.Context, tx *gorm.DB, restaurantID, userID snowflake.ID, limit int) ([]notificationdomain.InboxEntry, error) {
	var userRows []notificationdomain.UserNotification
	stmt := tx.WithContext(ctx).
		Where("restaurant_id = ? AND user_id = ?", restaurantID, userID).
		Order("id DESC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&userRows).Error; err != nil {
		return nil, err
	}
	if len(userRows) == 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(userRows))
	for _, row := range userRows {
		ids = append(ids, row.NotificationID)
	}
	var notifications []notificationdomain.Notification
	if err := tx.WithContext(ctx).Where("id IN ?", ids).Find(&notifications).Error; err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]notificationdomain.Notification, len(notifications))
	for _, n := range notifications {
		byID[n.ID] = n
	}

	entries := make([]notificationdomain.InboxEntry, 0, len(userRows))
	for _, row := range userRows {
		entries = append(entries, notificationdomain.InboxEntry{
			UserNotification: row,
			Notification:     byID[row.NotificationID],
		})
	}
	return entries, nil
}

func (r *repo) UnreadCount(ctx context.Context, tx *gorm.DB, restaurantID, userID snowflake.ID) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&notificationdomain.UserNotification{}).
		Where("restaurant_id = ? AND user_id = ? AND is_read = ?", restaurantID, userID, false).
		Count(&count).Error
	return count, err
}

func (r *repo) MarkRead(ctx context.Context, tx *gorm.DB, restaurantID, userID, notificationID snowflake.ID, now time.Time) (int64, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE user_notifications SET is_read = ?, read_at = ?
		 WHERE restaurant_id = ? AND user_id = ? AND notification_id = ?`,
		true, now, restaurantID, userID, notificationID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkAllRead(ctx context.Context, tx *gorm.DB, restaurantID, userID snowflake.ID, now time.Time) (int64, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE user_notifications SET is_read = ?, read_at = ?
		 WHERE restaurant_id = ? AND user_id = ? AND is_read = ?`,
		true, now, restaurantID, userID, false,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Delete(ctx context.Context, tx *gorm.DB, restaurantID, userID, notificationID snowflake.ID) (int64, error) {
	result := tx.WithContext(ctx).Exec(
		`DELETE FROM user_notifications
		 WHERE restaurant_id = ? AND user_id = ? AND notification_id = ?`,
		restaurantID, userID, notificationID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ClearAll(ctx context.Context, tx *gorm.DB, restaurantID, userID snowflake.ID) (int64, error) {
	result := tx.WithContext(ctx).Exec(
		`DELETE FROM user_notifications WHERE restaurant_id = ? AND user_id = ?`,
		restaurantID, userID,
	)
	return result.RowsAffected, result.Error
}
