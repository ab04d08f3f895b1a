package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() sessiondomain.Repository {
	return &repo{}
}

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, session *sessiondomain.TableSession) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *sessiondomain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *sessiondomain.OrderItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) FindSession(ctx context.Context, db *gorm.DB, id snowflake.ID) (*sessiondomain.TableSession, error) {
	var session sessiondomain.TableSession
	if err := first(ctx, db, &session, id); err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) FindSessionByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*sessiondomain.TableSession, error) {
	var session sessiondomain.TableSession
	err := db.WithContext(ctx).Where("order_id = ?", orderID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*sessiondomain.Order, error) {
	var order sessiondomain.Order
	if err := first(ctx, db, &order, id); err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindTable(ctx context.Context, db *gorm.DB, id snowflake.ID) (*sessiondomain.RestaurantTable, error) {
	var table sessiondomain.RestaurantTable
	if err := first(ctx, db, &table, id); err != nil {
		return nil, err
	}
	if table.ID == 0 {
		return nil, nil
	}
	return &table, nil
}

func (r *repo) FindItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*sessiondomain.OrderItem, error) {
	var item sessiondomain.OrderItem
	if err := first(ctx, db, &item, id); err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]sessiondomain.OrderItem, error) {
	var items []sessiondomain.OrderItem
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&items).Error
	return items, err
}

func (r *repo) ActiveSessionForTable(ctx context.Context, db *gorm.DB, tableID snowflake.ID) (*sessiondomain.TableSession, error) {
	var session sessiondomain.TableSession
	err := db.WithContext(ctx).
		Where("table_id = ? AND status != ?", tableID, sessiondomain.SessionClose).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) TransitionSession(ctx context.Context, db *gorm.DB, id snowflake.ID, from []sessiondomain.SessionStatus, to sessiondomain.SessionStatus, closedAt *time.Time, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE table_sessions
		 SET status = ?, closed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to, closedAt, now, id, from,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpdateItemPrep(ctx context.Context, db *gorm.DB, id snowflake.ID, status sessiondomain.PrepStatus, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE order_items SET prep_status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM order_items WHERE id = ?`, id).Error
}

func (r *repo) UpdateOrderTotal(ctx context.Context, db *gorm.DB, orderID snowflake.ID, total decimal.Decimal, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET total = ?, updated_at = ? WHERE id = ?`,
		total, now, orderID,
	).Error
}

func (r *repo) FinalizeOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, total decimal.Decimal, method sessiondomain.PaymentMethod, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, total = ?, payment_method = ?, updated_at = ? WHERE id = ?`,
		sessiondomain.OrderServed, total, method, now, orderID,
	).Error
}

func (r *repo) UpdateTable(ctx context.Context, db *gorm.DB, tableID snowflake.ID, status sessiondomain.TableStatus, waiterID *snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE restaurant_tables SET status = ?, waiter_id = ?, updated_at = ? WHERE id = ?`,
		status, waiterID, now, tableID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListSessionViews(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID, closed bool, limit int) ([]sessiondomain.SessionView, error) {
	stmt := db.WithContext(ctx).Where("restaurant_id = ?", restaurantID)
	if closed {
		stmt = stmt.Where("status = ?", sessiondomain.SessionClose).Order("closed_at DESC")
	} else {
		stmt = stmt.Where("status != ?", sessiondomain.SessionClose).Order("opened_at")
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var sessions []sessiondomain.TableSession
	if err := stmt.Find(&sessions).Error; err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	orderIDs := make([]snowflake.ID, 0, len(sessions))
	tableIDs := make([]snowflake.ID, 0, len(sessions))
	for _, s := range sessions {
		orderIDs = append(orderIDs, s.OrderID)
		if s.TableID != nil {
			tableIDs = append(tableIDs, *s.TableID)
		}
	}

	var orders []sessiondomain.Order
	if err := db.WithContext(ctx).Where("id IN ?", orderIDs).Find(&orders).Error; err != nil {
		return nil, err
	}
	ordersByID := make(map[snowflake.ID]sessiondomain.Order, len(orders))
	for _, o := range orders {
		ordersByID[o.ID] = o
	}

	var items []sessiondomain.OrderItem
	if err := db.WithContext(ctx).Where("order_id IN ?", orderIDs).Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	itemsByOrder := make(map[snowflake.ID][]sessiondomain.OrderItem)
	for _, item := range items {
		itemsByOrder[item.OrderID] = append(itemsByOrder[item.OrderID], item)
	}

	tablesByID := make(map[snowflake.ID]sessiondomain.RestaurantTable)
	if len(tableIDs) > 0 {
		var tables []sessiondomain.RestaurantTable
		if err := db.WithContext(ctx).Where("id IN ?", tableIDs).Find(&tables).Error; err != nil {
			return nil, err
		}
		for _, t := range tables {
			tablesByID[t.ID] = t
		}
	}

	views := make([]sessiondomain.SessionView, 0, len(sessions))
	for _, s := range sessions {
		view := sessiondomain.SessionView{
			Session: s,
			Order:   ordersByID[s.OrderID],
			Items:   itemsByOrder[s.OrderID],
		}
		if s.TableID != nil {
			if table, ok := tablesByID[*s.TableID]; ok {
				number := table.Number
				view.TableNumber = &number
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (r *repo) PaymentMethodTotals(ctx context.Context, db *gorm.DB, restaurantID snowflake.ID) ([]sessiondomain.PaymentMethodTotal, error) {
	var rows []sessiondomain.PaymentMethodTotal
	err := db.WithContext(ctx).Raw(
		`SELECT o.payment_method AS method, COUNT(*) AS count, SUM(o.total) AS total
		 FROM orders o
		 JOIN table_sessions s ON s.order_id = o.id
		 WHERE s.restaurant_id = ? AND s.status = ? AND o.payment_method IS NOT NULL
		 GROUP BY o.payment_method
		 ORDER BY o.payment_method`,
		restaurantID, sessiondomain.SessionClose,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Total = rows[i].Total.Round(2)
	}
	return rows, nil
}

func first(ctx context.Context, db *gorm.DB, dest any, id snowflake.ID) error {
	err := db.WithContext(ctx).Where("id = ?", id).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
