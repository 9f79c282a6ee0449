//go:build integration

// Package integration contains integration tests for the auto-trading server.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: migrations, repositories, transactions
//
// Integration tests use build tag "integration" to separate from unit tests.
// Run with: go test -tags=integration ./tests/integration/...
//
// A reachable Postgres is required; tests are skipped when the
// TEST_DB_* connection fails.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/api"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/bot"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/websocket"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/crypto"
)

// testToken - операторский токен для protected endpoints
const testToken = "integration-test-token"

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB      *sql.DB
	Router  *mux.Router
	Server  *httptest.Server
	Hub     *websocket.Hub
	Repos   *TestRepositories
	Engine  *fakeEngine
	Cleanup func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Orders        *repository.OrderRepository
	Positions     *repository.PositionRepository
	Stats         *repository.StatsRepository
	RiskEvents    *repository.RiskEventRepository
	RiskParams    *repository.RiskParamsRepository
	Signals       *repository.SignalRepository
	Notifications *repository.NotificationRepository
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "autotrader_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := applyMigrations(db); err != nil {
		db.Close()
		t.Skipf("Skipping integration test: cannot apply migrations: %v", err)
		return nil, func() {}
	}

	// Start from a clean slate even if a previous run aborted mid-test
	truncateAll(db)

	cleanup := func() {
		truncateAll(db)
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// applyMigrations applies the real schema migration used in production
func applyMigrations(db *sql.DB) error {
	schema, err := os.ReadFile("../../migrations/001_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read migration: %w", err)
	}

	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

// truncateAll wipes all tables between tests.
// Order follows foreign keys: risk_events and orders first.
func truncateAll(db *sql.DB) {
	tables := []string{
		"risk_events",
		"orders",
		"signals",
		"notifications",
		"positions",
		"daily_stats",
	}
	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table))
	}
	db.Exec("DELETE FROM risk_params")
}

// ============================================================
// Fake engine: API flow tests exercise HTTP -> service -> repo -> DB
// with the exchange-facing pipeline replaced at its interface
// ============================================================

// fakeEngine implements service.TradeEngine and service.MarketQuoter.
// ExecuteManual persists a FILLED order through the real repository,
// RequestCancel enforces the cancellable-status rule.
type fakeEngine struct {
	mu      sync.Mutex
	orders  *repository.OrderRepository
	markets []string
	running bool
	prices  map[string]decimal.Decimal
}

func newFakeEngine(orders *repository.OrderRepository, markets ...string) *fakeEngine {
	if len(markets) == 0 {
		markets = []string{"KRW-BTC"}
	}
	return &fakeEngine{
		orders:  orders,
		markets: markets,
		running: true,
		prices: map[string]decimal.Decimal{
			"KRW-BTC": decimal.NewFromInt(50000000),
		},
	}
}

func (f *fakeEngine) ExecuteManual(ctx context.Context, market, side string, amount decimal.Decimal) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order := &models.Order{
		Market:          market,
		Side:            side,
		OrdType:         models.OrdTypeMarket,
		Status:          models.OrderStatusPending,
		RequestedAmount: amount,
		IdempotencyKey:  uuid.NewString(),
	}
	if err := f.orders.Create(order); err != nil {
		return nil, err
	}

	// Мгновенное исполнение: SUBMITTED -> FILLED без биржи
	if err := f.orders.SetSubmitted(order.ID, "fake-"+uuid.NewString()); err != nil {
		return nil, err
	}
	if err := f.orders.UpdateStatus(order.ID, models.OrderStatusFilled); err != nil {
		return nil, err
	}
	return f.orders.GetByID(order.ID)
}

func (f *fakeEngine) RequestCancel(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := f.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusSubmitted {
		return nil, bot.ErrNotCancellable
	}
	return order, nil
}

func (f *fakeEngine) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEngine) SetRunning(running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = running
}

func (f *fakeEngine) Markets() []string {
	return f.markets
}

func (f *fakeEngine) LastPrice(market string) (decimal.Decimal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.prices[market]
	return price, ok
}

func (f *fakeEngine) VolatilityPct(market string) decimal.Decimal {
	return decimal.Zero
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	hub := websocket.NewHub(nil)
	go hub.Run()

	repos := &TestRepositories{
		Orders:        repository.NewOrderRepository(db),
		Positions:     repository.NewPositionRepository(db),
		Stats:         repository.NewStatsRepository(db),
		RiskEvents:    repository.NewRiskEventRepository(db),
		RiskParams:    repository.NewRiskParamsRepository(db),
		Signals:       repository.NewSignalRepository(db),
		Notifications: repository.NewNotificationRepository(db),
	}

	engine := newFakeEngine(repos.Orders, "KRW-BTC", "KRW-ETH")

	tokenHash, err := crypto.HashTokenWithCost(testToken, 4)
	if err != nil {
		t.Fatalf("failed to hash test token: %v", err)
	}

	logger := zap.NewNop()
	deps := &api.Dependencies{
		OrderService:        service.NewOrderService(repos.Orders, engine, logger),
		PositionService:     service.NewPositionService(repos.Positions, engine),
		StatsService:        service.NewStatsService(repos.Stats),
		RiskService:         service.NewRiskService(repos.RiskParams, repos.RiskEvents, repos.Stats, logger),
		SignalService:       service.NewSignalService(repos.Signals),
		NotificationService: service.NewNotificationService(repos.Notifications, logger),

		DB:        db,
		Engine:    engine,
		Hub:       hub,
		TokenHash: tokenHash,
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		hub.Stop()
		dbCleanup()
	}

	return &TestServer{
		DB:      db,
		Router:  router,
		Server:  server,
		Hub:     hub,
		Repos:   repos,
		Engine:  engine,
		Cleanup: cleanup,
	}
}
