//go:build integration

// Database Integration Tests
// These tests verify repository operations against a real PostgreSQL schema:
// - Schema and constraint validation
// - Order lifecycle persistence and idempotency guards
// - Transactional position and stats updates
// - Concurrent database access
//
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
)

// ============================================================
// Database Schema Tests
// ============================================================

func TestDatabase_SchemaCreation_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	tables := []string{
		"signals",
		"orders",
		"positions",
		"daily_stats",
		"risk_events",
		"risk_params",
		"notifications",
	}

	for _, table := range tables {
		t.Run("table_"+table+"_exists", func(t *testing.T) {
			var exists bool
			err := db.QueryRow(`
				SELECT EXISTS (
					SELECT FROM information_schema.tables
					WHERE table_name = $1
				)
			`, table).Scan(&exists)

			if err != nil {
				t.Fatalf("failed to check table existence: %v", err)
			}
			if !exists {
				t.Errorf("table %s does not exist", table)
			}
		})
	}
}

func TestDatabase_SchemaColumns_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	t.Run("orders table has required columns", func(t *testing.T) {
		requiredColumns := []string{
			"id", "signal_id", "market", "side", "ord_type", "status",
			"requested_amount", "executed_price", "executed_amount", "fee",
			"exchange_order_id", "idempotency_key", "applied_at",
		}
		checkTableColumns(t, db, "orders", requiredColumns)
	})

	t.Run("positions table has required columns", func(t *testing.T) {
		requiredColumns := []string{"id", "market", "quantity", "avg_buy_price", "updated_at"}
		checkTableColumns(t, db, "positions", requiredColumns)
	})

	t.Run("daily_stats table has required columns", func(t *testing.T) {
		requiredColumns := []string{
			"id", "stat_date", "starting_balance", "realized_pnl",
			"trade_count", "win_count", "loss_count", "is_trading_halted",
		}
		checkTableColumns(t, db, "daily_stats", requiredColumns)
	})

	t.Run("risk_events table has required columns", func(t *testing.T) {
		requiredColumns := []string{"id", "event_type", "trigger_value", "threshold", "order_id"}
		checkTableColumns(t, db, "risk_events", requiredColumns)
	})
}

func checkTableColumns(t *testing.T, db *sql.DB, tableName string, requiredColumns []string) {
	for _, col := range requiredColumns {
		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT FROM information_schema.columns
				WHERE table_name = $1 AND column_name = $2
			)
		`, tableName, col).Scan(&exists)

		if err != nil {
			t.Fatalf("failed to check column %s.%s: %v", tableName, col, err)
		}
		if !exists {
			t.Errorf("column %s.%s does not exist", tableName, col)
		}
	}
}

// ============================================================
// Order Lifecycle Repository Tests
// ============================================================

func TestDatabase_OrderLifecycle_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	repo := repository.NewOrderRepository(db)
	key := uuid.NewString()

	order := &models.Order{
		Market:          "KRW-BTC",
		Side:            models.SideBuy,
		OrdType:         models.OrdTypeMarket,
		RequestedAmount: decimal.NewFromInt(50000),
		IdempotencyKey:  key,
	}

	t.Run("create pending order", func(t *testing.T) {
		if err := repo.Create(order); err != nil {
			t.Fatalf("failed to create order: %v", err)
		}
		if order.ID == 0 {
			t.Error("expected non-zero ID after creation")
		}

		loaded, err := repo.GetByID(order.ID)
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		if loaded.Status != models.OrderStatusPending {
			t.Errorf("expected status PENDING, got %s", loaded.Status)
		}
	})

	t.Run("find by idempotency key", func(t *testing.T) {
		loaded, err := repo.GetByIdempotencyKey(key)
		if err != nil {
			t.Fatalf("failed to find by key: %v", err)
		}
		if loaded.ID != order.ID {
			t.Errorf("expected order %d, got %d", order.ID, loaded.ID)
		}

		if _, err := repo.GetByIdempotencyKey(uuid.NewString()); !errors.Is(err, repository.ErrOrderNotFound) {
			t.Errorf("expected ErrOrderNotFound for unknown key, got %v", err)
		}
	})

	t.Run("submit records exchange order id exactly once", func(t *testing.T) {
		if err := repo.SetSubmitted(order.ID, "upbit-first"); err != nil {
			t.Fatalf("failed to submit order: %v", err)
		}

		// The IS NULL guard must reject a second submission
		err := repo.SetSubmitted(order.ID, "upbit-second")
		if !errors.Is(err, repository.ErrAlreadySubmitted) {
			t.Errorf("expected ErrAlreadySubmitted, got %v", err)
		}

		loaded, _ := repo.GetByID(order.ID)
		if loaded.ExchangeOrderID != "upbit-first" {
			t.Errorf("expected exchange order id upbit-first, got %s", loaded.ExchangeOrderID)
		}
		if loaded.Status != models.OrderStatusSubmitted {
			t.Errorf("expected status SUBMITTED, got %s", loaded.Status)
		}
	})

	t.Run("list and count by status", func(t *testing.T) {
		submitted, err := repo.ListByStatus(models.OrderStatusSubmitted, 10)
		if err != nil {
			t.Fatalf("failed to list by status: %v", err)
		}
		if len(submitted) != 1 {
			t.Errorf("expected 1 SUBMITTED order, got %d", len(submitted))
		}

		count, err := repo.CountByStatus(models.OrderStatusSubmitted)
		if err != nil {
			t.Fatalf("failed to count by status: %v", err)
		}
		if count != 1 {
			t.Errorf("expected count 1, got %d", count)
		}
	})

	t.Run("finds stale submitted orders for the sweep", func(t *testing.T) {
		stale, err := repo.ListSubmittedBefore(time.Now().Add(time.Minute), 10)
		if err != nil {
			t.Fatalf("failed to list stale orders: %v", err)
		}
		if len(stale) != 1 {
			t.Errorf("expected 1 stale order, got %d", len(stale))
		}

		fresh, err := repo.ListSubmittedBefore(time.Now().Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("failed to list with old cutoff: %v", err)
		}
		if len(fresh) != 0 {
			t.Errorf("expected 0 orders before old cutoff, got %d", len(fresh))
		}
	})

	t.Run("mark applied persists execution data", func(t *testing.T) {
		now := time.Now().UTC()
		err := repository.WithinTx(db, func(tx *sql.Tx) error {
			locked, err := repo.GetForUpdateTx(tx, order.ID)
			if err != nil {
				return err
			}
			locked.Status = models.OrderStatusFilled
			locked.ExecutedPrice = decimal.NewFromInt(51000000)
			locked.ExecutedAmount = decimal.RequireFromString("0.00098")
			locked.Fee = decimal.NewFromInt(25)
			locked.AppliedAt = &now
			locked.ExecutedAt = &now
			return repo.MarkAppliedTx(tx, locked)
		})
		if err != nil {
			t.Fatalf("failed to mark applied: %v", err)
		}

		loaded, _ := repo.GetByID(order.ID)
		if loaded.Status != models.OrderStatusFilled {
			t.Errorf("expected status FILLED, got %s", loaded.Status)
		}
		if !loaded.Applied() {
			t.Error("expected applied_at to be set")
		}
		if !loaded.ExecutedPrice.Equal(decimal.NewFromInt(51000000)) {
			t.Errorf("expected executed price 51000000, got %s", loaded.ExecutedPrice)
		}
	})

	t.Run("set failed records error message", func(t *testing.T) {
		failing := &models.Order{
			Market:          "KRW-ETH",
			Side:            models.SideBuy,
			OrdType:         models.OrdTypeMarket,
			RequestedAmount: decimal.NewFromInt(10000),
			IdempotencyKey:  uuid.NewString(),
		}
		if err := repo.Create(failing); err != nil {
			t.Fatalf("failed to create order: %v", err)
		}

		if err := repo.SetFailed(failing.ID, "insufficient balance"); err != nil {
			t.Fatalf("failed to set failed: %v", err)
		}

		loaded, _ := repo.GetByID(failing.ID)
		if loaded.Status != models.OrderStatusFailed {
			t.Errorf("expected status FAILED, got %s", loaded.Status)
		}
		if loaded.ErrorMessage != "insufficient balance" {
			t.Errorf("expected error message, got %q", loaded.ErrorMessage)
		}
	})

	t.Run("get unknown order returns not found", func(t *testing.T) {
		if _, err := repo.GetByID(99999); !errors.Is(err, repository.ErrOrderNotFound) {
			t.Errorf("expected ErrOrderNotFound, got %v", err)
		}
	})
}

// ============================================================
// Position Repository Tests
// ============================================================

func TestDatabase_PositionUpsert_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	repo := repository.NewPositionRepository(db)

	t.Run("creates zero position on first access", func(t *testing.T) {
		err := repository.WithinTx(db, func(tx *sql.Tx) error {
			pos, err := repo.GetOrCreateForUpdateTx(tx, "KRW-BTC")
			if err != nil {
				return err
			}
			if !pos.IsFlat() {
				t.Errorf("expected flat position on creation, got quantity %s", pos.Quantity)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("failed to create position: %v", err)
		}
	})

	t.Run("updates quantity and average price", func(t *testing.T) {
		err := repository.WithinTx(db, func(tx *sql.Tx) error {
			pos, err := repo.GetOrCreateForUpdateTx(tx, "KRW-BTC")
			if err != nil {
				return err
			}
			pos.Quantity = decimal.RequireFromString("0.5")
			pos.AvgBuyPrice = decimal.NewFromInt(49000000)
			return repo.UpdateTx(tx, pos)
		})
		if err != nil {
			t.Fatalf("failed to update position: %v", err)
		}

		loaded, err := repo.GetByMarket("KRW-BTC")
		if err != nil {
			t.Fatalf("failed to load position: %v", err)
		}
		if !loaded.Quantity.Equal(decimal.RequireFromString("0.5")) {
			t.Errorf("expected quantity 0.5, got %s", loaded.Quantity)
		}
		if !loaded.AvgBuyPrice.Equal(decimal.NewFromInt(49000000)) {
			t.Errorf("expected avg price 49000000, got %s", loaded.AvgBuyPrice)
		}
	})

	t.Run("second access reuses existing row", func(t *testing.T) {
		err := repository.WithinTx(db, func(tx *sql.Tx) error {
			pos, err := repo.GetOrCreateForUpdateTx(tx, "KRW-BTC")
			if err != nil {
				return err
			}
			if !pos.Quantity.Equal(decimal.RequireFromString("0.5")) {
				t.Errorf("expected existing quantity 0.5, got %s", pos.Quantity)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("failed to reread position: %v", err)
		}

		all, err := repo.GetAll()
		if err != nil {
			t.Fatalf("failed to list positions: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("expected 1 position row, got %d", len(all))
		}
	})

	t.Run("unknown market returns not found", func(t *testing.T) {
		if _, err := repo.GetByMarket("KRW-XRP"); !errors.Is(err, repository.ErrPositionNotFound) {
			t.Errorf("expected ErrPositionNotFound, got %v", err)
		}
	})
}

// ============================================================
// Daily Stats Repository Tests
// ============================================================

func TestDatabase_DailyStats_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	repo := repository.NewStatsRepository(db)
	today := time.Now().UTC()

	t.Run("ensure is idempotent", func(t *testing.T) {
		if err := repo.EnsureForDate(today, decimal.NewFromInt(1000000)); err != nil {
			t.Fatalf("failed to ensure stats row: %v", err)
		}
		// Second call must not overwrite the opening balance
		if err := repo.EnsureForDate(today, decimal.NewFromInt(999)); err != nil {
			t.Fatalf("failed on repeated ensure: %v", err)
		}

		stats, err := repo.GetByDate(today)
		if err != nil {
			t.Fatalf("failed to load stats: %v", err)
		}
		if !stats.StartingBalance.Equal(decimal.NewFromInt(1000000)) {
			t.Errorf("expected starting balance 1000000, got %s", stats.StartingBalance)
		}
	})

	t.Run("accumulates trade results in transaction", func(t *testing.T) {
		err := repository.WithinTx(db, func(tx *sql.Tx) error {
			stats, err := repo.GetOrCreateForUpdateTx(tx, today)
			if err != nil {
				return err
			}
			stats.TradeCount++
			stats.WinCount++
			stats.RealizedPnl = stats.RealizedPnl.Add(decimal.NewFromInt(15000))
			return repo.UpdateTx(tx, stats)
		})
		if err != nil {
			t.Fatalf("failed to accumulate stats: %v", err)
		}

		stats, _ := repo.GetByDate(today)
		if stats.TradeCount != 1 || stats.WinCount != 1 {
			t.Errorf("expected 1 trade and 1 win, got %d/%d", stats.TradeCount, stats.WinCount)
		}
		if !stats.RealizedPnl.Equal(decimal.NewFromInt(15000)) {
			t.Errorf("expected realized pnl 15000, got %s", stats.RealizedPnl)
		}
	})

	t.Run("halt flag round trip", func(t *testing.T) {
		if err := repo.SetHalted(today, true, models.HaltReasonDailyLimit); err != nil {
			t.Fatalf("failed to set halted: %v", err)
		}

		stats, _ := repo.GetByDate(today)
		if !stats.IsTradingHalted {
			t.Error("expected trading halted")
		}
		if stats.HaltReason != models.HaltReasonDailyLimit {
			t.Errorf("expected halt reason DAILY_LIMIT, got %s", stats.HaltReason)
		}

		if err := repo.SetHalted(today, false, ""); err != nil {
			t.Fatalf("failed to clear halted: %v", err)
		}
		stats, _ = repo.GetByDate(today)
		if stats.IsTradingHalted {
			t.Error("expected trading active after clear")
		}
	})

	t.Run("lists recent days newest first", func(t *testing.T) {
		yesterday := today.AddDate(0, 0, -1)
		if err := repo.EnsureForDate(yesterday, decimal.NewFromInt(900000)); err != nil {
			t.Fatalf("failed to create yesterday row: %v", err)
		}

		days, err := repo.ListRecent(7)
		if err != nil {
			t.Fatalf("failed to list recent: %v", err)
		}
		if len(days) != 2 {
			t.Fatalf("expected 2 days, got %d", len(days))
		}
		if !days[0].StatDate.After(days[1].StatDate) {
			t.Error("expected newest day first")
		}
	})

	t.Run("missing date returns not found", func(t *testing.T) {
		future := today.AddDate(0, 0, 7)
		if _, err := repo.GetByDate(future); !errors.Is(err, repository.ErrStatsNotFound) {
			t.Errorf("expected ErrStatsNotFound, got %v", err)
		}
		if err := repo.SetHalted(future, true, "x"); !errors.Is(err, repository.ErrStatsNotFound) {
			t.Errorf("expected ErrStatsNotFound from SetHalted, got %v", err)
		}
	})
}

// ============================================================
// Risk Params Repository Tests
// ============================================================

func TestDatabase_RiskParams_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	repo := repository.NewRiskParamsRepository(db)

	t.Run("get creates defaults when row is missing", func(t *testing.T) {
		params, err := repo.Get()
		if err != nil {
			t.Fatalf("failed to get params: %v", err)
		}
		defaults := models.DefaultRiskParams()
		if !params.StopLossPct.Equal(defaults.StopLossPct) {
			t.Errorf("expected default stop loss %s, got %s", defaults.StopLossPct, params.StopLossPct)
		}
	})

	t.Run("seed does not overwrite existing row", func(t *testing.T) {
		custom := models.DefaultRiskParams()
		custom.StopLossPct = decimal.NewFromFloat(7.5)
		if err := repo.Seed(custom); err != nil {
			t.Fatalf("failed to seed: %v", err)
		}

		params, _ := repo.Get()
		if params.StopLossPct.Equal(decimal.NewFromFloat(7.5)) {
			t.Error("seed must not overwrite the existing row")
		}
	})

	t.Run("update round trip", func(t *testing.T) {
		params, _ := repo.Get()
		params.OrderMaxKRW = decimal.NewFromInt(250000)

		if err := repo.Update(params); err != nil {
			t.Fatalf("failed to update params: %v", err)
		}

		saved, _ := repo.Get()
		if !saved.OrderMaxKRW.Equal(decimal.NewFromInt(250000)) {
			t.Errorf("expected order max 250000, got %s", saved.OrderMaxKRW)
		}
	})
}

// ============================================================
// Signal and Risk Event Repository Tests
// ============================================================

func TestDatabase_SignalJournal_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	repo := repository.NewSignalRepository(db)

	first := &models.Signal{
		Market:     "KRW-BTC",
		SignalType: models.SignalHold,
		Confidence: decimal.RequireFromString("0.55"),
		ModelName:  "gpt-4o-mini",
	}
	if err := repo.Create(first); err != nil {
		t.Fatalf("failed to create signal: %v", err)
	}
	second := &models.Signal{
		Market:     "KRW-BTC",
		SignalType: models.SignalBuy,
		Confidence: decimal.RequireFromString("0.78"),
		Reasoning:  "breakout above resistance",
		ModelName:  "gpt-4o-mini",
		Tokens:     512,
	}
	if err := repo.Create(second); err != nil {
		t.Fatalf("failed to create signal: %v", err)
	}

	t.Run("latest by market returns newest", func(t *testing.T) {
		latest, err := repo.GetLatestByMarket("KRW-BTC")
		if err != nil {
			t.Fatalf("failed to get latest: %v", err)
		}
		if latest.ID != second.ID {
			t.Errorf("expected signal %d, got %d", second.ID, latest.ID)
		}
		if latest.SignalType != models.SignalBuy {
			t.Errorf("expected BUY, got %s", latest.SignalType)
		}
	})

	t.Run("get by id", func(t *testing.T) {
		loaded, err := repo.GetByID(first.ID)
		if err != nil {
			t.Fatalf("failed to get signal: %v", err)
		}
		if loaded.SignalType != models.SignalHold {
			t.Errorf("expected HOLD, got %s", loaded.SignalType)
		}
	})

	t.Run("market without signals returns not found", func(t *testing.T) {
		if _, err := repo.GetLatestByMarket("KRW-DOGE"); !errors.Is(err, repository.ErrSignalNotFound) {
			t.Errorf("expected ErrSignalNotFound, got %v", err)
		}
	})
}

func TestDatabase_RiskEventJournal_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	repo := repository.NewRiskEventRepository(db)

	event := &models.RiskEvent{
		EventType:    models.RiskEventDailyLimit,
		Market:       "KRW-BTC",
		TriggerValue: decimal.NewFromInt(-52000),
		Threshold:    decimal.NewFromInt(-50000),
		Message:      "daily loss limit reached",
	}
	if err := repo.Create(event); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	if event.ID == 0 {
		t.Error("expected non-zero event ID")
	}

	other := &models.RiskEvent{
		EventType: models.RiskEventVolatilityHalt,
		Market:    "KRW-ETH",
		Message:   "volatility above threshold",
	}
	if err := repo.Create(other); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	t.Run("filter by type", func(t *testing.T) {
		events, err := repo.ListByType(models.RiskEventDailyLimit, 10)
		if err != nil {
			t.Fatalf("failed to list by type: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("expected 1 DAILY_LIMIT event, got %d", len(events))
		}
		if !events[0].TriggerValue.Equal(decimal.NewFromInt(-52000)) {
			t.Errorf("expected trigger -52000, got %s", events[0].TriggerValue)
		}
	})

	t.Run("count since cutoff", func(t *testing.T) {
		count, err := repo.CountSince(time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("failed to count events: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 events in window, got %d", count)
		}

		count, err = repo.CountSince(time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("failed to count events: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 events after future cutoff, got %d", count)
		}
	})
}

// ============================================================
// Notification Retention Tests
// ============================================================

func TestDatabase_NotificationRetention_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	repo := repository.NewNotificationRepository(db)

	recent := &models.Notification{
		Type:     models.NotifyOrderFilled,
		Severity: models.SeverityInfo,
		Title:    "Order filled",
		Message:  "KRW-BTC BUY filled at 51000000",
		Metadata: map[string]string{"market": "KRW-BTC"},
	}
	if err := repo.Create(recent); err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}
	old := &models.Notification{
		Type:     models.NotifyRiskEvent,
		Severity: models.SeverityCritical,
		Title:    "Trading halted",
	}
	if err := repo.Create(old); err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}
	if _, err := db.Exec(
		`UPDATE notifications SET created_at = now() - interval '40 days' WHERE id = $1`,
		old.ID); err != nil {
		t.Fatalf("failed to backdate notification: %v", err)
	}

	t.Run("metadata survives json round trip", func(t *testing.T) {
		list, err := repo.ListRecent(10)
		if err != nil {
			t.Fatalf("failed to list notifications: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 notifications, got %d", len(list))
		}
		if list[0].Metadata["market"] != "KRW-BTC" {
			t.Errorf("expected metadata market KRW-BTC, got %v", list[0].Metadata)
		}
	})

	t.Run("delete older than cutoff", func(t *testing.T) {
		deleted, err := repo.DeleteOlderThan(time.Now().AddDate(0, 0, -30))
		if err != nil {
			t.Fatalf("failed to delete old notifications: %v", err)
		}
		if deleted != 1 {
			t.Errorf("expected 1 deleted, got %d", deleted)
		}

		list, _ := repo.ListRecent(10)
		if len(list) != 1 {
			t.Errorf("expected 1 notification left, got %d", len(list))
		}
	})
}

// ============================================================
// Transaction Tests
// ============================================================

func TestDatabase_Transaction_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	positions := repository.NewPositionRepository(db)

	t.Run("rollback on error discards all writes", func(t *testing.T) {
		sentinel := errors.New("apply failed")

		err := repository.WithinTx(db, func(tx *sql.Tx) error {
			pos, err := positions.GetOrCreateForUpdateTx(tx, "KRW-BTC")
			if err != nil {
				return err
			}
			pos.Quantity = decimal.NewFromInt(1)
			pos.AvgBuyPrice = decimal.NewFromInt(50000000)
			if err := positions.UpdateTx(tx, pos); err != nil {
				return err
			}
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel error, got %v", err)
		}

		// The position row must not exist: the insert rolled back too
		if _, err := positions.GetByMarket("KRW-BTC"); !errors.Is(err, repository.ErrPositionNotFound) {
			t.Errorf("expected ErrPositionNotFound after rollback, got %v", err)
		}
	})

	t.Run("commit persists writes", func(t *testing.T) {
		err := repository.WithinTx(db, func(tx *sql.Tx) error {
			pos, err := positions.GetOrCreateForUpdateTx(tx, "KRW-BTC")
			if err != nil {
				return err
			}
			pos.Quantity = decimal.NewFromInt(2)
			pos.AvgBuyPrice = decimal.NewFromInt(48000000)
			return positions.UpdateTx(tx, pos)
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}

		pos, err := positions.GetByMarket("KRW-BTC")
		if err != nil {
			t.Fatalf("failed to load position: %v", err)
		}
		if !pos.Quantity.Equal(decimal.NewFromInt(2)) {
			t.Errorf("expected quantity 2, got %s", pos.Quantity)
		}
	})
}

// ============================================================
// Data Integrity Tests
// ============================================================

func TestDatabase_DataIntegrity_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	t.Run("rejects unknown order status", func(t *testing.T) {
		_, err := db.Exec(`
			INSERT INTO orders (market, side, ord_type, status, requested_amount, idempotency_key)
			VALUES ('KRW-BTC', 'BUY', 'market', 'TELEPORTED', 50000, $1)`,
			uuid.NewString())
		if err == nil {
			t.Fatal("expected CHECK violation for unknown status")
		}
	})

	t.Run("rejects duplicate idempotency key", func(t *testing.T) {
		key := uuid.NewString()
		repo := repository.NewOrderRepository(db)

		first := &models.Order{
			Market:          "KRW-BTC",
			Side:            models.SideBuy,
			OrdType:         models.OrdTypeMarket,
			RequestedAmount: decimal.NewFromInt(50000),
			IdempotencyKey:  key,
		}
		if err := repo.Create(first); err != nil {
			t.Fatalf("failed to create first order: %v", err)
		}

		duplicate := &models.Order{
			Market:          "KRW-BTC",
			Side:            models.SideBuy,
			OrdType:         models.OrdTypeMarket,
			RequestedAmount: decimal.NewFromInt(50000),
			IdempotencyKey:  key,
		}
		err := repo.Create(duplicate)
		if err == nil {
			t.Fatal("expected unique violation for duplicate key")
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() != "unique_violation" {
			t.Errorf("expected unique_violation, got %s", pqErr.Code.Name())
		}
	})

	t.Run("rejects negative position quantity", func(t *testing.T) {
		_, err := db.Exec(`
			INSERT INTO positions (market, quantity, avg_buy_price)
			VALUES ('KRW-NEG', -1, 0)`)
		if err == nil {
			t.Fatal("expected CHECK violation for negative quantity")
		}
	})
}

// ============================================================
// Concurrent Access Tests
// ============================================================

func TestDatabase_ConcurrentAccess_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	repo := repository.NewOrderRepository(db)

	t.Run("concurrent order creates", func(t *testing.T) {
		const numGoroutines = 10
		const numWrites = 10

		var wg sync.WaitGroup
		errs := make(chan error, numGoroutines*numWrites)

		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < numWrites; j++ {
					order := &models.Order{
						Market:          "KRW-BTC",
						Side:            models.SideBuy,
						OrdType:         models.OrdTypeMarket,
						RequestedAmount: decimal.NewFromInt(int64(1000 * (j + 1))),
						IdempotencyKey:  fmt.Sprintf("concurrent-%d-%d-%s", id, j, uuid.NewString()),
					}
					if err := repo.Create(order); err != nil {
						errs <- err
					}
				}
			}(i)
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("concurrent create error: %v", err)
		}

		count, err := repo.CountByStatus(models.OrderStatusPending)
		if err != nil {
			t.Fatalf("failed to count orders: %v", err)
		}
		if count != numGoroutines*numWrites {
			t.Errorf("expected %d orders, got %d", numGoroutines*numWrites, count)
		}
	})

	t.Run("concurrent stats accumulation under row lock", func(t *testing.T) {
		stats := repository.NewStatsRepository(db)
		today := time.Now().UTC()

		if err := stats.EnsureForDate(today, decimal.NewFromInt(1000000)); err != nil {
			t.Fatalf("failed to open trading day: %v", err)
		}

		const numWorkers = 8
		var wg sync.WaitGroup
		errs := make(chan error, numWorkers)

		for i := 0; i < numWorkers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repository.WithinTx(db, func(tx *sql.Tx) error {
					day, err := stats.GetOrCreateForUpdateTx(tx, today)
					if err != nil {
						return err
					}
					day.TradeCount++
					day.RealizedPnl = day.RealizedPnl.Add(decimal.NewFromInt(100))
					return stats.UpdateTx(tx, day)
				})
				if err != nil {
					errs <- err
				}
			}()
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("concurrent update error: %v", err)
		}

		// FOR UPDATE serializes the read-modify-write: no lost updates
		day, err := stats.GetByDate(today)
		if err != nil {
			t.Fatalf("failed to load stats: %v", err)
		}
		if day.TradeCount != numWorkers {
			t.Errorf("expected trade count %d, got %d", numWorkers, day.TradeCount)
		}
		if !day.RealizedPnl.Equal(decimal.NewFromInt(100 * numWorkers)) {
			t.Errorf("expected pnl %d, got %s", 100*numWorkers, day.RealizedPnl)
		}
	})
}
