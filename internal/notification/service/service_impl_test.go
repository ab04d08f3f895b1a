package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/changefeed"
	"github.com/dinehall/dinehall/internal/clock"
	memberdomain "github.com/dinehall/dinehall/internal/member/domain"
	memberrepository "github.com/dinehall/dinehall/internal/member/repository"
	notificationdomain "github.com/dinehall/dinehall/internal/notification/domain"
	"github.com/dinehall/dinehall/internal/notification/repository"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	service notificationdomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	hub     *changefeed.Hub

	restaurantID snowflake.ID
	waiter       snowflake.ID
	cashier      snowflake.ID
	manager      snowflake.ID
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	statements := []string{
		`CREATE TABLE members (
			id INTEGER PRIMARY KEY,
			restaurant_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at DATETIME,
			UNIQUE (restaurant_id, user_id)
		)`,
		`CREATE TABLE notifications (
			id INTEGER PRIMARY KEY,
			restaurant_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'general',
			priority TEXT NOT NULL DEFAULT 'normal',
			target_type TEXT NOT NULL,
			target_roles TEXT,
			target_user_ids TEXT,
			metadata TEXT,
			created_at DATETIME
		)`,
		`CREATE TABLE user_notifications (
			id INTEGER PRIMARY KEY,
			notification_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			restaurant_id INTEGER NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0,
			read_at DATETIME,
			created_at DATETIME,
			UNIQUE (notification_id, user_id)
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	f := &fixture{
		db:           db,
		node:         node,
		hub:          changefeed.NewHub(),
		restaurantID: node.Generate(),
		waiter:       node.Generate(),
		cashier:      node.Generate(),
		manager:      node.Generate(),
	}

	for _, m := range []struct {
		userID snowflake.ID
		name   string
		role   memberdomain.Role
	}{
		{f.waiter, "Linh", memberdomain.RoleWaiter},
		{f.cashier, "Minh", memberdomain.RoleCashier},
		{f.manager, "An", memberdomain.RoleManager},
	} {
		member := memberdomain.Member{
			ID:           node.Generate(),
			RestaurantID: f.restaurantID,
			UserID:       m.userID,
			DisplayName:  m.name,
			Role:         m.role,
		}
		if err := db.Create(&member).Error; err != nil {
			t.Fatalf("seed member %s: %v", m.name, err)
		}
	}

	f.service = NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)),
		Repo:    repository.Provide(),
		Members: memberrepository.Provide(db),
		Hub:     f.hub,
	})
	return f
}

func (f *fixture) send(t *testing.T, target notificationdomain.Target) *notificationdomain.SendResult {
	t.Helper()

	result, err := f.service.Send(context.Background(), notificationdomain.SendRequest{
		RestaurantID: f.restaurantID,
		SenderID:     f.manager,
		Title:        "86 the salmon",
		Message:      "Out of salmon for tonight",
		Target:       target,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return result
}

func TestSendToAllFansOut(t *testing.T) {
	f := setupFixture(t)

	result := f.send(t, notificationdomain.TargetAll())
	if result.Recipients != 3 {
		t.Fatalf("expected 3 recipients, got %d", result.Recipients)
	}
	if result.Warning != "" {
		t.Fatalf("unexpected warning %q", result.Warning)
	}

	for _, userID := range []snowflake.ID{f.waiter, f.cashier, f.manager} {
		count, err := f.service.UnreadCount(context.Background(), f.restaurantID, userID)
		if err != nil {
			t.Fatalf("unread count: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 unread for %s, got %d", userID, count)
		}
	}
}

func TestSendRoleTargetWithoutMatchesWarns(t *testing.T) {
	f := setupFixture(t)

	result := f.send(t, notificationdomain.TargetRoles(memberdomain.RoleChef))
	if result.Warning != notificationdomain.WarningNoRecipients {
		t.Fatalf("expected no-recipients warning, got %q", result.Warning)
	}
	if result.Recipients != 0 {
		t.Fatalf("expected 0 recipients, got %d", result.Recipients)
	}

	// The content row still exists even though nobody received it.
	var notifications int64
	if err := f.db.Model(&notificationdomain.Notification{}).Count(&notifications).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if notifications != 1 {
		t.Fatalf("expected 1 notification row, got %d", notifications)
	}
	var rows int64
	if err := f.db.Model(&notificationdomain.UserNotification{}).Count(&rows).Error; err != nil {
		t.Fatalf("count inbox rows: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected 0 inbox rows, got %d", rows)
	}
}

func TestSendRoleTargetSelectsMatchingMembers(t *testing.T) {
	f := setupFixture(t)

	result := f.send(t, notificationdomain.TargetRoles(memberdomain.RoleWaiter, memberdomain.RoleCashier))
	if result.Recipients != 2 {
		t.Fatalf("expected 2 recipients, got %d", result.Recipients)
	}

	count, err := f.service.UnreadCount(context.Background(), f.restaurantID, f.manager)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Fatalf("manager should not be targeted, got %d unread", count)
	}
}

func TestSendUserTargetDeduplicates(t *testing.T) {
	f := setupFixture(t)

	result := f.send(t, notificationdomain.TargetUsers(f.waiter, f.waiter, f.cashier))
	if result.Recipients != 2 {
		t.Fatalf("expected 2 recipients after dedupe, got %d", result.Recipients)
	}
}

func TestInboxIsolationBetweenRecipients(t *testing.T) {
	f := setupFixture(t)

	result := f.send(t, notificationdomain.TargetUsers(f.waiter))

	mine, err := f.service.List(context.Background(), f.restaurantID, f.waiter, 10)
	if err != nil {
		t.Fatalf("list waiter inbox: %v", err)
	}
	if len(mine) != 1 || mine[0].Notification.ID != result.Notification.ID {
		t.Fatalf("expected the sent notification in the waiter inbox, got %d entries", len(mine))
	}

	theirs, err := f.service.List(context.Background(), f.restaurantID, f.cashier, 10)
	if err != nil {
		t.Fatalf("list cashier inbox: %v", err)
	}
	if len(theirs) != 0 {
		t.Fatalf("expected empty cashier inbox, got %d entries", len(theirs))
	}

	// Read state is scoped to the recipient pair; the cashier cannot
	// touch the waiter's row.
	err = f.service.MarkRead(context.Background(), f.restaurantID, f.cashier, result.Notification.ID)
	if !errors.Is(err, notificationdomain.ErrNotificationNotFound) {
		t.Fatalf("expected not found for foreign inbox row, got %v", err)
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	f := setupFixture(t)

	result := f.send(t, notificationdomain.TargetUsers(f.waiter))

	if err := f.service.MarkRead(context.Background(), f.restaurantID, f.waiter, result.Notification.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	count, err := f.service.UnreadCount(context.Background(), f.restaurantID, f.waiter)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unread after mark read, got %d", count)
	}

	// Marking an already-read row again is not an error.
	if err := f.service.MarkRead(context.Background(), f.restaurantID, f.waiter, result.Notification.ID); err != nil {
		t.Fatalf("second mark read: %v", err)
	}
}

func TestMarkAllReadCountsRows(t *testing.T) {
	f := setupFixture(t)

	f.send(t, notificationdomain.TargetUsers(f.waiter))
	f.send(t, notificationdomain.TargetUsers(f.waiter))

	updated, err := f.service.MarkAllRead(context.Background(), f.restaurantID, f.waiter)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 rows updated, got %d", updated)
	}

	updated, err = f.service.MarkAllRead(context.Background(), f.restaurantID, f.waiter)
	if err != nil {
		t.Fatalf("second mark all read: %v", err)
	}
	if updated != 0 {
		t.Fatalf("expected 0 rows on repeat, got %d", updated)
	}
}

func TestDeleteAndClearRemoveOnlyInboxRows(t *testing.T) {
	f := setupFixture(t)

	first := f.send(t, notificationdomain.TargetUsers(f.waiter, f.cashier))
	f.send(t, notificationdomain.TargetUsers(f.waiter))

	if err := f.service.Delete(context.Background(), f.restaurantID, f.waiter, first.Notification.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	removed, err := f.service.ClearAll(context.Background(), f.restaurantID, f.waiter)
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 remaining row cleared, got %d", removed)
	}

	// The cashier's copy and the shared content survive.
	theirs, err := f.service.List(context.Background(), f.restaurantID, f.cashier, 10)
	if err != nil {
		t.Fatalf("list cashier inbox: %v", err)
	}
	if len(theirs) != 1 {
		t.Fatalf("expected cashier copy untouched, got %d entries", len(theirs))
	}
	var notifications int64
	if err := f.db.Model(&notificationdomain.Notification{}).Count(&notifications).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if notifications != 2 {
		t.Fatalf("expected content rows untouched, got %d", notifications)
	}
}

func TestSendValidation(t *testing.T) {
	f := setupFixture(t)

	_, err := f.service.Send(context.Background(), notificationdomain.SendRequest{
		RestaurantID: f.restaurantID,
		SenderID:     f.manager,
		Title:        "   ",
		Target:       notificationdomain.TargetAll(),
	})
	if !errors.Is(err, notificationdomain.ErrEmptyTitle) {
		t.Fatalf("expected empty title error, got %v", err)
	}

	_, err = f.service.Send(context.Background(), notificationdomain.SendRequest{
		RestaurantID: f.restaurantID,
		SenderID:     f.manager,
		Title:        "hi",
		Target:       notificationdomain.Target{Type: "broadcast"},
	})
	if !errors.Is(err, notificationdomain.ErrInvalidTarget) {
		t.Fatalf("expected invalid target error, got %v", err)
	}

	_, err = f.service.Send(context.Background(), notificationdomain.SendRequest{
		RestaurantID: f.restaurantID,
		SenderID:     f.manager,
		Title:        "hi",
		Target:       notificationdomain.Target{Type: notificationdomain.TargetTypeRole},
	})
	if !errors.Is(err, notificationdomain.ErrInvalidTarget) {
		t.Fatalf("expected invalid target error for empty roles, got %v", err)
	}
}

func TestInsertUserNotificationsSkipsExistingPairs(t *testing.T) {
	f := setupFixture(t)
	repo := repository.Provide()
	ctx := context.Background()

	notification := &notificationdomain.Notification{
		ID:           f.node.Generate(),
		RestaurantID: f.restaurantID,
		SenderID:     f.manager,
		Title:        "86 the salmon",
		Message:      "Out of salmon for tonight",
		Type:         "general",
		Priority:     notificationdomain.PriorityNormal,
		TargetType:   notificationdomain.TargetTypeUser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.InsertNotification(ctx, f.db, notification); err != nil {
		t.Fatalf("insert notification: %v", err)
	}

	pair := func(userID snowflake.ID) notificationdomain.UserNotification {
		return notificationdomain.UserNotification{
			ID:             f.node.Generate(),
			NotificationID: notification.ID,
			UserID:         userID,
			RestaurantID:   f.restaurantID,
			CreatedAt:      time.Now().UTC(),
		}
	}
	inserted, err := repo.InsertUserNotifications(ctx, f.db, []notificationdomain.UserNotification{pair(f.waiter)})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected 1 row inserted, got %d", inserted)
	}

	// Redelivery carries the already-landed pair plus a new recipient in
	// one batch; the existing pair is skipped and the batch commits.
	err = f.db.Transaction(func(tx *gorm.DB) error {
		inserted, err = repo.InsertUserNotifications(ctx, tx, []notificationdomain.UserNotification{
			pair(f.waiter), pair(f.cashier),
		})
		return err
	})
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected only the new pair inserted, got %d", inserted)
	}

	var rows int64
	if err := f.db.Model(&notificationdomain.UserNotification{}).Count(&rows).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected 2 inbox rows, got %d", rows)
	}
}

func TestSendDeliversPersonalFeedEvents(t *testing.T) {
	f := setupFixture(t)

	sub, _, err := f.hub.Subscribe(changefeed.UserTopic(f.restaurantID, f.waiter))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	result := f.send(t, notificationdomain.TargetUsers(f.waiter))

	select {
	case event := <-sub.Events():
		if event.Table != "user_notifications" || event.Op != changefeed.OpInsert {
			t.Fatalf("unexpected event %s/%s", event.Table, event.Op)
		}
		if event.Ref != result.Notification.ID {
			t.Fatalf("expected ref %s, got %s", result.Notification.ID, event.Ref)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a personal feed event")
	}
}
