package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/changefeed"
	"github.com/dinehall/dinehall/internal/clock"
	obsmetrics "github.com/dinehall/dinehall/internal/observability/metrics"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	settlementdomain "github.com/dinehall/dinehall/internal/settlement/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       sessiondomain.Repository
	Hub        *changefeed.Hub     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       sessiondomain.Repository
	hub        *changefeed.Hub
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) settlementdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("settlement.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		hub:        p.Hub,
		obsMetrics: p.ObsMetrics,
	}
}

// Settle closes the session, marks the order served and releases the
// table in one transaction. The session close is a conditional update
// guarded by status != close; losing a concurrent race surfaces as
// ErrAlreadySettled with nothing written.
func (s *Service) Settle(ctx context.Context, req settlementdomain.SettleRequest) (*settlementdomain.Receipt, error) {
	switch req.Method {
	case sessiondomain.PaymentCash:
		if req.Tendered == nil {
			return nil, settlementdomain.ErrTenderRequired
		}
	case sessiondomain.PaymentCard, sessiondomain.PaymentMomo:
	default:
		return nil, settlementdomain.ErrInvalidMethod
	}

	now := s.clock.Now()
	var receipt *settlementdomain.Receipt
	var restaurantID, orderID snowflake.ID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.repo.FindSession(ctx, tx, req.SessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return sessiondomain.ErrSessionNotFound
		}
		if session.Status == sessiondomain.SessionClose {
			return settlementdomain.ErrAlreadySettled
		}
		restaurantID = session.RestaurantID
		orderID = session.OrderID

		// Re-aggregate from the line items rather than trusting the
		// possibly stale cached total. No write yet; tender rejection
		// must leave zero mutations behind.
		items, err := s.repo.ListItems(ctx, tx, session.OrderID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.LineSum)
		}
		total = total.Round(2)

		var change *decimal.Decimal
		if req.Method == sessiondomain.PaymentCash {
			if req.Tendered.LessThan(total) {
				return &settlementdomain.InsufficientTenderError{
					Shortfall: total.Sub(*req.Tendered).Round(2),
				}
			}
			diff := req.Tendered.Sub(total).Round(2)
			change = &diff
		}

		closedAt := now
		rows, err := s.repo.TransitionSession(ctx, tx, session.ID,
			[]sessiondomain.SessionStatus{sessiondomain.SessionOpen, sessiondomain.SessionBilled},
			sessiondomain.SessionClose, &closedAt, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Another cashier won the race between our read and the
			// conditional update.
			return settlementdomain.ErrAlreadySettled
		}

		if err := s.repo.FinalizeOrder(ctx, tx, session.OrderID, total, req.Method, now); err != nil {
			return err
		}

		if session.TableID != nil {
			if _, err := s.repo.UpdateTable(ctx, tx, *session.TableID, sessiondomain.TableAvailable, nil, now); err != nil {
				return err
			}
		}

		receipt = &settlementdomain.Receipt{
			SessionID: session.ID,
			OrderID:   session.OrderID,
			TableID:   session.TableID,
			Total:     total,
			Method:    req.Method,
			Tendered:  req.Tendered,
			Change:    change,
			SettledAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("session settled",
		zap.String("session_id", req.SessionID.String()),
		zap.String("method", string(req.Method)),
		zap.String("total", receipt.Total.StringFixed(2)),
	)
	if s.hub != nil {
		s.hub.Publish(changefeed.RestaurantTopic(restaurantID),
			changefeed.NewEvent("table_sessions", changefeed.OpUpdate, req.SessionID, orderID, restaurantID))
	}
	s.obsMetrics.RecordSettlement(ctx, restaurantID.String(), string(req.Method))

	return receipt, nil
}
