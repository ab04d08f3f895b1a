package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/changefeed"
	"github.com/dinehall/dinehall/internal/clock"
	memberdomain "github.com/dinehall/dinehall/internal/member/domain"
	notificationdomain "github.com/dinehall/dinehall/internal/notification/domain"
	"github.com/dinehall/dinehall/internal/notification/repository"
	obsmetrics "github.com/dinehall/dinehall/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       repository.Repository
	Members    memberdomain.Repository
	Hub        *changefeed.Hub     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       repository.Repository
	members    memberdomain.Repository
	hub        *changefeed.Hub
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) notificationdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("notification.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		members:    p.Members,
		hub:        p.Hub,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Send(ctx context.Context, req notificationdomain.SendRequest) (*notificationdomain.SendResult, error) {
	if req.RestaurantID == 0 {
		return nil, notificationdomain.ErrInvalidTarget
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, notificationdomain.ErrEmptyTitle
	}
	switch req.Target.Type {
	case notificationdomain.TargetTypeAll:
	case notificationdomain.TargetTypeRole:
		if len(req.Target.Roles) == 0 {
			return nil, notificationdomain.ErrInvalidTarget
		}
	case notificationdomain.TargetTypeUser:
		if len(req.Target.UserIDs) == 0 {
			return nil, notificationdomain.ErrInvalidTarget
		}
	default:
		return nil, notificationdomain.ErrInvalidTarget
	}
	if req.Priority == "" {
		req.Priority = notificationdomain.PriorityNormal
	}
	if strings.TrimSpace(req.Type) == "" {
		req.Type = "general"
	}

	recipients, err := s.resolveRecipients(ctx, req.RestaurantID, req.Target)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	notification := &notificationdomain.Notification{
		ID:           s.genID.Generate(),
		RestaurantID: req.RestaurantID,
		SenderID:     req.SenderID,
		Title:        strings.TrimSpace(req.Title),
		Message:      req.Message,
		Type:         req.Type,
		Priority:     req.Priority,
		TargetType:   req.Target.Type,
		Metadata:     req.Metadata,
		CreatedAt:    now,
	}
	if len(req.Target.Roles) > 0 {
		raw, err := json.Marshal(req.Target.Roles)
		if err != nil {
			return nil, err
		}
		notification.TargetRoles = datatypes.JSON(raw)
	}
	if len(req.Target.UserIDs) > 0 {
		raw, err := json.Marshal(req.Target.UserIDs)
		if err != nil {
			return nil, err
		}
		notification.TargetUserIDs = datatypes.JSON(raw)
	}

	rows := make([]notificationdomain.UserNotification, 0, len(recipients))
	for _, userID := range recipients {
		rows = append(rows, notificationdomain.UserNotification{
			ID:             s.genID.Generate(),
			NotificationID: notification.ID,
			UserID:         userID,
			RestaurantID:   req.RestaurantID,
			IsRead:         false,
			CreatedAt:      now,
		})
	}

	inserted := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertNotification(ctx, tx, notification); err != nil {
			return err
		}
		inserted, err = s.repo.InsertUserNotifications(ctx, tx, rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	// At-least-once live delivery; recipients deduplicate on
	// notification id.
	if s.hub != nil {
		for _, row := range rows {
			s.hub.Publish(changefeed.UserTopic(req.RestaurantID, row.UserID),
				changefeed.NewEvent("user_notifications", changefeed.OpInsert, row.ID, notification.ID, req.RestaurantID))
		}
	}

	s.obsMetrics.RecordNotificationSent(ctx, req.RestaurantID.String(), string(req.Target.Type))
	s.obsMetrics.RecordFanOutRows(ctx, req.RestaurantID.String(), int64(inserted))

	result := &notificationdomain.SendResult{
		Notification: notification,
		Recipients:   inserted,
	}
	if inserted == 0 {
		// Content creation does not depend on recipients existing.
		result.Warning = notificationdomain.WarningNoRecipients
		s.log.Warn("notification resolved zero recipients",
			zap.String("notification_id", notification.ID.String()),
			zap.String("target_type", string(req.Target.Type)),
		)
	}
	return result, nil
}

func (s *Service) resolveRecipients(ctx context.Context, restaurantID snowflake.ID, target notificationdomain.Target) ([]snowflake.ID, error) {
	switch target.Type {
	case notificationdomain.TargetTypeAll:
		members, err := s.members.ListByRestaurant(ctx, restaurantID)
		if err != nil {
			return nil, err
		}
		return memberUserIDs(members), nil
	case notificationdomain.TargetTypeRole:
		members, err := s.members.ListByRoles(ctx, restaurantID, target.Roles)
		if err != nil {
			return nil, err
		}
		return memberUserIDs(members), nil
	case notificationdomain.TargetTypeUser:
		seen := make(map[snowflake.ID]struct{}, len(target.UserIDs))
		out := make([]snowflake.ID, 0, len(target.UserIDs))
		for _, id := range target.UserIDs {
			if id == 0 {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
		return out, nil
	default:
		return nil, notificationdomain.ErrInvalidTarget
	}
}

func memberUserIDs(members []memberdomain.Member) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(members))
	for _, m := range members {
		out = append(out, m.UserID)
	}
	return out
}

func (s *Service) List(ctx context.Context, restaurantID, userID snowflake.ID, limit int) ([]notificationdomain.InboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListInbox(ctx, s.db, restaurantID, userID, limit)
}

func (s *Service) UnreadCount(ctx context.Context, restaurantID, userID snowflake.ID) (int64, error) {
	return s.repo.UnreadCount(ctx, s.db, restaurantID, userID)
}

func (s *Service) MarkRead(ctx context.Context, restaurantID, userID, notificationID snowflake.ID) error {
	rows, err := s.repo.MarkRead(ctx, s.db, restaurantID, userID, notificationID, s.clock.Now())
	if err != nil {
		return err
	}
	if rows == 0 {
		return notificationdomain.ErrNotificationNotFound
	}
	s.publishInboxChange(restaurantID, userID, notificationID, changefeed.OpUpdate)
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, restaurantID, userID snowflake.ID) (int64, error) {
	rows, err := s.repo.MarkAllRead(ctx, s.db, restaurantID, userID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		s.publishInboxChange(restaurantID, userID, 0, changefeed.OpUpdate)
	}
	return rows, nil
}

func (s *Service) Delete(ctx context.Context, restaurantID, userID, notificationID snowflake.ID) error {
	rows, err := s.repo.Delete(ctx, s.db, restaurantID, userID, notificationID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return notificationdomain.ErrNotificationNotFound
	}
	s.publishInboxChange(restaurantID, userID, notificationID, changefeed.OpDelete)
	return nil
}

func (s *Service) ClearAll(ctx context.Context, restaurantID, userID snowflake.ID) (int64, error) {
	rows, err := s.repo.ClearAll(ctx, s.db, restaurantID, userID)
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		s.publishInboxChange(restaurantID, userID, 0, changefeed.OpDelete)
	}
	return rows, nil
}

func (s *Service) publishInboxChange(restaurantID, userID, notificationID snowflake.ID, op string) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(changefeed.UserTopic(restaurantID, userID),
		changefeed.NewEvent("user_notifications", op, notificationID, notificationID, restaurantID))
}
