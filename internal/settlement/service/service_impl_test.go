package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/clock"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	sessionrepository "github.com/dinehall/dinehall/internal/session/repository"
	sessionservice "github.com/dinehall/dinehall/internal/session/service"
	settlementdomain "github.com/dinehall/dinehall/internal/settlement/domain"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	sessions    sessiondomain.Service
	settlements settlementdomain.Service
	db          *gorm.DB
	node        *snowflake.Node
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
		`CREATE TABLE restaurant_tables (
			id INTEGER PRIMARY KEY,
			restaurant_id INTEGER NOT NULL,
			number INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'available',
			waiter_id INTEGER,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			restaurant_id INTEGER NOT NULL,
			total NUMERIC NOT NULL DEFAULT 0,
			payment_method TEXT,
			status TEXT NOT NULL DEFAULT 'open',
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE table_sessions (
			id INTEGER PRIMARY KEY,
			restaurant_id INTEGER NOT NULL,
			table_id INTEGER,
			order_id INTEGER NOT NULL,
			waiter_id INTEGER,
			status TEXT NOT NULL DEFAULT 'open',
			guest_count INTEGER NOT NULL DEFAULT 1,
			opened_at DATETIME,
			closed_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE order_items (
			id INTEGER PRIMARY KEY,
			restaurant_id INTEGER NOT NULL,
			order_id INTEGER NOT NULL,
			menu_item_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price NUMERIC NOT NULL,
			discount_pct NUMERIC NOT NULL DEFAULT 0,
			line_sum NUMERIC NOT NULL,
			station TEXT NOT NULL DEFAULT 'kitchen',
			prep_status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))
	repo := sessionrepository.Provide()
	sessions := sessionservice.NewService(sessionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repo,
	})
	settlements := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  repo,
	})

	return &fixture{
		sessions:    sessions,
		settlements: settlements,
		db:          db,
		node:        node,
	}
}

// openWithItems opens a session on a fresh table and orders items worth
// 45.00 in total.
func (f *fixture) openWithItems(t *testing.T, restaurantID snowflake.ID) *sessiondomain.SessionView {
	t.Helper()

	table := sessiondomain.RestaurantTable{
		ID:           f.node.Generate(),
		RestaurantID: restaurantID,
		Number:       1,
		Status:       sessiondomain.TableAvailable,
	}
	if err := f.db.Create(&table).Error; err != nil {
		t.Fatalf("seed table: %v", err)
	}

	view, err := f.sessions.OpenSession(context.Background(), sessiondomain.OpenSessionRequest{
		RestaurantID: restaurantID,
		TableID:      &table.ID,
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	for _, line := range []struct {
		name  string
		qty   int
		price string
	}{
		{"pho bo", 2, "15.00"},
		{"iced tea", 3, "5.00"},
	} {
		if _, err := f.sessions.AddItem(context.Background(), sessiondomain.AddItemRequest{
			SessionID: view.Session.ID,
			Name:      line.name,
			Quantity:  line.qty,
			UnitPrice: decimal.RequireFromString(line.price),
		}); err != nil {
			t.Fatalf("add item %s: %v", line.name, err)
		}
	}
	return view
}

func tender(amount string) *decimal.Decimal {
	d := decimal.RequireFromString(amount)
	return &d
}

func TestSettleCashComputesChange(t *testing.T) {
	f := setupFixture(t)
	restaurantID := f.node.Generate()
	view := f.openWithItems(t, restaurantID)

	receipt, err := f.settlements.Settle(context.Background(), settlementdomain.SettleRequest{
		SessionID: view.Session.ID,
		Method:    sessiondomain.PaymentCash,
		Tendered:  tender("50.00"),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := receipt.Total.StringFixed(2); got != "45.00" {
		t.Fatalf("expected total 45.00, got %s", got)
	}
	if receipt.Change == nil || receipt.Change.StringFixed(2) != "5.00" {
		t.Fatalf("expected change 5.00, got %v", receipt.Change)
	}

	var session sessiondomain.TableSession
	if err := f.db.First(&session, "id = ?", view.Session.ID).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if session.Status != sessiondomain.SessionClose {
		t.Fatalf("expected closed session, got %s", session.Status)
	}
	if session.ClosedAt == nil {
		t.Fatal("expected closed_at to be set")
	}

	var order sessiondomain.Order
	if err := f.db.First(&order, "id = ?", view.Order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if order.Status != sessiondomain.OrderServed {
		t.Fatalf("expected served order, got %s", order.Status)
	}
	if order.PaymentMethod == nil || *order.PaymentMethod != sessiondomain.PaymentCash {
		t.Fatalf("expected cash payment method, got %v", order.PaymentMethod)
	}

	var table sessiondomain.RestaurantTable
	if err := f.db.First(&table, "id = ?", *view.Session.TableID).Error; err != nil {
		t.Fatalf("reload table: %v", err)
	}
	if table.Status != sessiondomain.TableAvailable {
		t.Fatalf("expected table released, got %s", table.Status)
	}
	if table.WaiterID != nil {
		t.Fatalf("expected waiter cleared, got %v", table.WaiterID)
	}
}

func TestSettleTwiceAlreadySettled(t *testing.T) {
	f := setupFixture(t)
	view := f.openWithItems(t, f.node.Generate())

	req := settlementdomain.SettleRequest{
		SessionID: view.Session.ID,
		Method:    sessiondomain.PaymentCard,
	}
	if _, err := f.settlements.Settle(context.Background(), req); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	_, err := f.settlements.Settle(context.Background(), req)
	if !errors.Is(err, settlementdomain.ErrAlreadySettled) {
		t.Fatalf("expected already settled, got %v", err)
	}
}

func TestSettleInsufficientTenderLeavesStateUntouched(t *testing.T) {
	f := setupFixture(t)
	view := f.openWithItems(t, f.node.Generate())

	_, err := f.settlements.Settle(context.Background(), settlementdomain.SettleRequest{
		SessionID: view.Session.ID,
		Method:    sessiondomain.PaymentCash,
		Tendered:  tender("40.00"),
	})
	var short *settlementdomain.InsufficientTenderError
	if !errors.As(err, &short) {
		t.Fatalf("expected insufficient tender, got %v", err)
	}
	if got := short.Shortfall.StringFixed(2); got != "5.00" {
		t.Fatalf("expected shortfall 5.00, got %s", got)
	}

	var session sessiondomain.TableSession
	if err := f.db.First(&session, "id = ?", view.Session.ID).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if session.Status != sessiondomain.SessionOpen {
		t.Fatalf("expected session still open, got %s", session.Status)
	}

	var order sessiondomain.Order
	if err := f.db.First(&order, "id = ?", view.Order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if order.Status != sessiondomain.OrderOpen {
		t.Fatalf("expected order still open, got %s", order.Status)
	}
	if order.PaymentMethod != nil {
		t.Fatalf("expected no payment method, got %v", order.PaymentMethod)
	}
}

func TestSettleCashRequiresTender(t *testing.T) {
	f := setupFixture(t)
	view := f.openWithItems(t, f.node.Generate())

	_, err := f.settlements.Settle(context.Background(), settlementdomain.SettleRequest{
		SessionID: view.Session.ID,
		Method:    sessiondomain.PaymentCash,
	})
	if !errors.Is(err, settlementdomain.ErrTenderRequired) {
		t.Fatalf("expected tender required, got %v", err)
	}
}

func TestSettleRejectsUnknownMethod(t *testing.T) {
	f := setupFixture(t)

	_, err := f.settlements.Settle(context.Background(), settlementdomain.SettleRequest{
		SessionID: f.node.Generate(),
		Method:    "barter",
	})
	if !errors.Is(err, settlementdomain.ErrInvalidMethod) {
		t.Fatalf("expected invalid method, got %v", err)
	}
}

func TestSettleCardWithoutTender(t *testing.T) {
	f := setupFixture(t)
	view := f.openWithItems(t, f.node.Generate())

	receipt, err := f.settlements.Settle(context.Background(), settlementdomain.SettleRequest{
		SessionID: view.Session.ID,
		Method:    sessiondomain.PaymentCard,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if receipt.Change != nil {
		t.Fatalf("expected no change for card, got %v", receipt.Change)
	}
}

func TestSettleUnknownSession(t *testing.T) {
	f := setupFixture(t)

	_, err := f.settlements.Settle(context.Background(), settlementdomain.SettleRequest{
		SessionID: f.node.Generate(),
		Method:    sessiondomain.PaymentCard,
	})
	if !errors.Is(err, sessiondomain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestConcurrentSettleSingleWinner(t *testing.T) {
	f := setupFixture(t)
	view := f.openWithItems(t, f.node.Generate())

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.settlements.Settle(context.Background(), settlementdomain.SettleRequest{
				SessionID: view.Session.ID,
				Method:    sessiondomain.PaymentCard,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, settlementdomain.ErrAlreadySettled):
			losses++
		default:
			t.Fatalf("unexpected settle error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d (losses %d)", wins, losses)
	}

	var count int64
	if err := f.db.Model(&sessiondomain.Order{}).
		Where("id = ? AND status = ?", view.Order.ID, sessiondomain.OrderServed).
		Count(&count).Error; err != nil {
		t.Fatalf("count served orders: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one served order, got %d", count)
	}
}

func TestPaymentMethodTotalsAfterSettlement(t *testing.T) {
	f := setupFixture(t)
	restaurantID := f.node.Generate()

	cash := f.openWithItems(t, restaurantID)
	card := f.openWithItems(t, restaurantID)

	if _, err := f.settlements.Settle(context.Background(), settlementdomain.SettleRequest{
		SessionID: cash.Session.ID,
		Method:    sessiondomain.PaymentCash,
		Tendered:  tender("45.00"),
	}); err != nil {
		t.Fatalf("settle cash: %v", err)
	}
	if _, err := f.settlements.Settle(context.Background(), settlementdomain.SettleRequest{
		SessionID: card.Session.ID,
		Method:    sessiondomain.PaymentCard,
	}); err != nil {
		t.Fatalf("settle card: %v", err)
	}

	totals, err := f.sessions.PaymentMethodTotals(context.Background(), restaurantID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(totals))
	}
	for _, row := range totals {
		if row.Count != 1 {
			t.Fatalf("expected 1 session per method, got %d for %s", row.Count, row.Method)
		}
		if got := row.Total.StringFixed(2); got != "45.00" {
			t.Fatalf("expected 45.00 for %s, got %s", row.Method, got)
		}
	}
}
