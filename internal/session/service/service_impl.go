package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/changefeed"
	"github.com/dinehall/dinehall/internal/clock"
	obsmetrics "github.com/dinehall/dinehall/internal/observability/metrics"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	"github.com/dinehall/dinehall/pkg/db"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       sessiondomain.Repository
	Hub        *changefeed.Hub          `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       sessiondomain.Repository
	hub        *changefeed.Hub
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) sessiondomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("session.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		hub:        p.Hub,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) OpenSession(ctx context.Context, req sessiondomain.OpenSessionRequest) (*sessiondomain.SessionView, error) {
	if req.RestaurantID == 0 {
		return nil, sessiondomain.ErrInvalidRestaurant
	}
	if req.GuestCount < 1 {
		req.GuestCount = 1
	}

	now := s.clock.Now()
	order := &sessiondomain.Order{
		ID:           s.genID.Generate(),
		RestaurantID: req.RestaurantID,
		Total:        decimal.Zero,
		Status:       sessiondomain.OrderOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	session := &sessiondomain.TableSession{
		ID:           s.genID.Generate(),
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
		OrderID:      order.ID,
		WaiterID:     req.WaiterID,
		Status:       sessiondomain.SessionOpen,
		GuestCount:   req.GuestCount,
		OpenedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var tableNumber *int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.TableID != nil {
			table, err := s.repo.FindTable(ctx, tx, *req.TableID)
			if err != nil {
				return err
			}
			if table == nil {
				return sessiondomain.ErrTableNotFound
			}
			if table.Status != sessiondomain.TableAvailable && table.Status != sessiondomain.TableReserved {
				return sessiondomain.ErrConflict
			}
			active, err := s.repo.ActiveSessionForTable(ctx, tx, *req.TableID)
			if err != nil {
				return err
			}
			if active != nil {
				return sessiondomain.ErrConflict
			}
			if _, err := s.repo.UpdateTable(ctx, tx, *req.TableID, sessiondomain.TableOccupied, req.WaiterID, now); err != nil {
				return err
			}
			number := table.Number
			tableNumber = &number
		}

		if err := s.repo.InsertOrder(ctx, tx, order); err != nil {
			return err
		}
		// Two opens can race past the availability check; the partial
		// unique index on active table sessions rejects the loser.
		if err := s.repo.InsertSession(ctx, tx, session); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return sessiondomain.ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(changefeed.NewEvent("table_sessions", changefeed.OpInsert, session.ID, order.ID, req.RestaurantID))
	s.obsMetrics.RecordSessionOpened(ctx, req.RestaurantID.String())

	return &sessiondomain.SessionView{
		Session:     *session,
		Order:       *order,
		TableNumber: tableNumber,
	}, nil
}

func (s *Service) AddItem(ctx context.Context, req sessiondomain.AddItemRequest) (*sessiondomain.OrderItem, error) {
	if req.Quantity < 1 {
		return nil, sessiondomain.ErrInvalidQuantity
	}
	if req.DiscountPct.IsNegative() || req.DiscountPct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, sessiondomain.ErrInvalidDiscount
	}
	switch req.Station {
	case sessiondomain.StationKitchen, sessiondomain.StationBar:
	case "":
		req.Station = sessiondomain.StationKitchen
	default:
		return nil, sessiondomain.ErrInvalidStation
	}

	now := s.clock.Now()
	var item *sessiondomain.OrderItem
	var restaurantID snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.repo.FindSession(ctx, tx, req.SessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return sessiondomain.ErrSessionNotFound
		}
		// Items stay editable while billed; only close freezes them.
		if session.Status == sessiondomain.SessionClose {
			return sessiondomain.ErrConflict
		}
		restaurantID = session.RestaurantID

		item = &sessiondomain.OrderItem{
			ID:           s.genID.Generate(),
			RestaurantID: session.RestaurantID,
			OrderID:      session.OrderID,
			MenuItemID:   req.MenuItemID,
			Name:         req.Name,
			Quantity:     req.Quantity,
			UnitPrice:    req.UnitPrice,
			DiscountPct:  req.DiscountPct,
			LineSum:      sessiondomain.LineSum(req.Quantity, req.UnitPrice, req.DiscountPct),
			Station:      req.Station,
			PrepStatus:   sessiondomain.PrepPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.InsertItem(ctx, tx, item); err != nil {
			return err
		}
		_, err = s.recomputeTx(ctx, tx, session.OrderID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(changefeed.NewEvent("order_items", changefeed.OpInsert, item.ID, item.OrderID, restaurantID))
	return item, nil
}

func (s *Service) UpdateItemPrep(ctx context.Context, itemID snowflake.ID, status sessiondomain.PrepStatus) (*sessiondomain.OrderItem, error) {
	switch status {
	case sessiondomain.PrepPending, sessiondomain.PrepPreparing, sessiondomain.PrepReady, sessiondomain.PrepServed:
	default:
		return nil, sessiondomain.ErrConflict
	}

	now := s.clock.Now()
	var item *sessiondomain.OrderItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if found == nil {
			return sessiondomain.ErrItemNotFound
		}
		session, err := s.repo.FindSessionByOrder(ctx, tx, found.OrderID)
		if err != nil {
			return err
		}
		if session == nil {
			return sessiondomain.ErrSessionNotFound
		}
		if session.Status == sessiondomain.SessionClose {
			return sessiondomain.ErrConflict
		}
		if _, err := s.repo.UpdateItemPrep(ctx, tx, itemID, status, now); err != nil {
			return err
		}
		found.PrepStatus = status
		found.UpdatedAt = now
		item = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(changefeed.NewEvent("order_items", changefeed.OpUpdate, item.ID, item.OrderID, item.RestaurantID))
	return item, nil
}

func (s *Service) RemoveItem(ctx context.Context, itemID snowflake.ID) error {
	now := s.clock.Now()
	var orderID, restaurantID snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return sessiondomain.ErrItemNotFound
		}
		session, err := s.repo.FindSessionByOrder(ctx, tx, item.OrderID)
		if err != nil {
			return err
		}
		if session == nil {
			return sessiondomain.ErrSessionNotFound
		}
		if session.Status != sessiondomain.SessionOpen {
			return sessiondomain.ErrConflict
		}
		if err := s.repo.DeleteItem(ctx, tx, itemID); err != nil {
			return err
		}
		orderID = item.OrderID
		restaurantID = item.RestaurantID
		_, err = s.recomputeTx(ctx, tx, item.OrderID, now)
		return err
	})
	if err != nil {
		return err
	}

	s.publish(changefeed.NewEvent("order_items", changefeed.OpDelete, itemID, orderID, restaurantID))
	return nil
}

func (s *Service) MarkBilled(ctx context.Context, sessionID snowflake.ID) (*sessiondomain.TableSession, error) {
	now := s.clock.Now()
	var session *sessiondomain.TableSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.TransitionSession(ctx, tx, sessionID,
			[]sessiondomain.SessionStatus{sessiondomain.SessionOpen, sessiondomain.SessionBilled},
			sessiondomain.SessionBilled, nil, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			existing, err := s.repo.FindSession(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			if existing == nil {
				return sessiondomain.ErrSessionNotFound
			}
			return sessiondomain.ErrConflict
		}
		session, err = s.repo.FindSession(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(changefeed.NewEvent("table_sessions", changefeed.OpUpdate, session.ID, session.OrderID, session.RestaurantID))
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID snowflake.ID) (*sessiondomain.SessionView, error) {
	session, err := s.repo.FindSession(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, sessiondomain.ErrSessionNotFound
	}
	order, err := s.repo.FindOrder(ctx, s.db, session.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, sessiondomain.ErrOrderNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, session.OrderID)
	if err != nil {
		return nil, err
	}

	view := &sessiondomain.SessionView{
		Session: *session,
		Order:   *order,
		Items:   items,
	}
	if session.TableID != nil {
		table, err := s.repo.FindTable(ctx, s.db, *session.TableID)
		if err != nil {
			return nil, err
		}
		if table != nil {
			number := table.Number
			view.TableNumber = &number
		}
	}
	return view, nil
}

func (s *Service) RecomputeOrderTotal(ctx context.Context, orderID snowflake.ID) (decimal.Decimal, error) {
	now := s.clock.Now()
	var total decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return sessiondomain.ErrOrderNotFound
		}
		total, err = s.recomputeTx(ctx, tx, orderID, now)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// recomputeTx sums the persisted line sums and writes the result back.
// Idempotent; calling it with no intervening item change is a no-op
// write.
func (s *Service) recomputeTx(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, now time.Time) (decimal.Decimal, error) {
	items, err := s.repo.ListItems(ctx, tx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineSum)
	}
	total = total.Round(2)
	if err := s.repo.UpdateOrderTotal(ctx, tx, orderID, total, now); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Service) ListActiveSessions(ctx context.Context, restaurantID snowflake.ID) ([]sessiondomain.SessionView, error) {
	return s.repo.ListSessionViews(ctx, s.db, restaurantID, false, 0)
}

func (s *Service) ListClosedSessions(ctx context.Context, restaurantID snowflake.ID, limit int) ([]sessiondomain.SessionView, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListSessionViews(ctx, s.db, restaurantID, true, limit)
}

func (s *Service) PaymentMethodTotals(ctx context.Context, restaurantID snowflake.ID) ([]sessiondomain.PaymentMethodTotal, error) {
	return s.repo.PaymentMethodTotals(ctx, s.db, restaurantID)
}

func (s *Service) publish(event changefeed.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(changefeed.RestaurantTopic(event.RestaurantID), event)
}
