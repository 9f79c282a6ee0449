package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
)

func d(s string) decimal.Decimal {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return dec
}

// ============ Mock OrderStore ============

type MockOrderStore struct {
	orders  map[int64]*models.Order
	listErr error
	getErr  error
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{orders: make(map[int64]*models.Order)}
}

func (m *MockOrderStore) add(order *models.Order) {
	m.orders[order.ID] = order
}

func (m *MockOrderStore) GetByID(id int64) (*models.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if order, ok := m.orders[id]; ok {
		return order, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockOrderStore) sorted() []*models.Order {
	result := make([]*models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result
}

func (m *MockOrderStore) List(limit, offset int) ([]*models.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	all := m.sorted()
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MockOrderStore) ListByStatus(status string, limit int) ([]*models.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Order
	for _, o := range m.sorted() {
		if o.Status == status && len(result) < limit {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockOrderStore) ListByMarket(market string, limit int) ([]*models.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Order
	for _, o := range m.sorted() {
		if o.Market == market && len(result) < limit {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockOrderStore) CountByStatus(status string) (int, error) {
	if m.listErr != nil {
		return 0, m.listErr
	}
	count := 0
	for _, o := range m.orders {
		if o.Status == status {
			count++
		}
	}
	return count, nil
}

// ============ Mock PositionStore ============

type MockPositionStore struct {
	positions map[string]*models.Position
	getErr    error
}

func NewMockPositionStore() *MockPositionStore {
	return &MockPositionStore{positions: make(map[string]*models.Position)}
}

func (m *MockPositionStore) add(p *models.Position) {
	m.positions[p.Market] = p
}

func (m *MockPositionStore) GetByMarket(market string) (*models.Position, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if p, ok := m.positions[market]; ok {
		return p, nil
	}
	return nil, repository.ErrPositionNotFound
}

func (m *MockPositionStore) GetAll() ([]*models.Position, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Market < result[j].Market })
	return result, nil
}

// ============ Mock StatsStore ============

type MockStatsStore struct {
	days      map[string]*models.DailyStats
	getErr    error
	haltedErr error
}

func NewMockStatsStore() *MockStatsStore {
	return &MockStatsStore{days: make(map[string]*models.DailyStats)}
}

func dayKey(date time.Time) string {
	return date.UTC().Format("2006-01-02")
}

func (m *MockStatsStore) add(day *models.DailyStats) {
	m.days[dayKey(day.StatDate)] = day
}

func (m *MockStatsStore) GetByDate(date time.Time) (*models.DailyStats, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if day, ok := m.days[dayKey(date)]; ok {
		return day, nil
	}
	return nil, repository.ErrStatsNotFound
}

func (m *MockStatsStore) GetLatest() (*models.DailyStats, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var latest *models.DailyStats
	for _, day := range m.days {
		if latest == nil || day.StatDate.After(latest.StatDate) {
			latest = day
		}
	}
	if latest == nil {
		return nil, repository.ErrStatsNotFound
	}
	return latest, nil
}

func (m *MockStatsStore) ListRecent(limit int) ([]*models.DailyStats, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.DailyStats, 0, len(m.days))
	for _, day := range m.days {
		result = append(result, day)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StatDate.After(result[j].StatDate) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockStatsStore) SetHalted(date time.Time, halted bool, reason string) error {
	if m.haltedErr != nil {
		return m.haltedErr
	}
	day, ok := m.days[dayKey(date)]
	if !ok {
		return repository.ErrStatsNotFound
	}
	day.IsTradingHalted = halted
	day.HaltReason = reason
	return nil
}

// ============ Mock RiskParamsStore ============

type MockRiskParamsStore struct {
	params    *models.RiskParams
	getErr    error
	updateErr error
}

func NewMockRiskParamsStore() *MockRiskParamsStore {
	return &MockRiskParamsStore{
		params: &models.RiskParams{
			PositionSizeMinPct:     d("1"),
			PositionSizeMaxPct:     d("20"),
			StopLossPct:            d("5"),
			DailyLossLimitPct:      d("5"),
			VolatilityThresholdPct: d("8"),
			MinConfidence:          d("0.6"),
			OrderMaxKRW:            d("1000000"),
		},
	}
}

func (m *MockRiskParamsStore) Get() (*models.RiskParams, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	copied := *m.params
	return &copied, nil
}

func (m *MockRiskParamsStore) Update(params *models.RiskParams) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	copied := *params
	m.params = &copied
	return nil
}

// ============ Mock RiskEventStore ============

type MockRiskEventStore struct {
	events    []*models.RiskEvent
	createErr error
	listErr   error
	nextID    int64
}

func NewMockRiskEventStore() *MockRiskEventStore {
	return &MockRiskEventStore{nextID: 1}
}

func (m *MockRiskEventStore) Create(event *models.RiskEvent) error {
	if m.createErr != nil {
		return m.createErr
	}
	event.ID = m.nextID
	m.nextID++
	event.CreatedAt = time.Now()
	m.events = append(m.events, event)
	return nil
}

func (m *MockRiskEventStore) ListRecent(limit int) ([]*models.RiskEvent, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := append([]*models.RiskEvent(nil), m.events...)
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockRiskEventStore) ListByType(eventType string, limit int) ([]*models.RiskEvent, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.RiskEvent
	for _, e := range m.events {
		if e.EventType == eventType && len(result) < limit {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *MockRiskEventStore) CountSince(since time.Time) (int, error) {
	if m.listErr != nil {
		return 0, m.listErr
	}
	count := 0
	for _, e := range m.events {
		if e.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// ============ Mock SignalStore ============

type MockSignalStore struct {
	signals map[int64]*models.Signal
	listErr error
}

func NewMockSignalStore() *MockSignalStore {
	return &MockSignalStore{signals: make(map[int64]*models.Signal)}
}

func (m *MockSignalStore) add(s *models.Signal) {
	m.signals[s.ID] = s
}

func (m *MockSignalStore) GetByID(id int64) (*models.Signal, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if s, ok := m.signals[id]; ok {
		return s, nil
	}
	return nil, repository.ErrSignalNotFound
}

func (m *MockSignalStore) GetLatestByMarket(market string) (*models.Signal, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var latest *models.Signal
	for _, s := range m.signals {
		if s.Market != market {
			continue
		}
		if latest == nil || s.ID > latest.ID {
			latest = s
		}
	}
	if latest == nil {
		return nil, repository.ErrSignalNotFound
	}
	return latest, nil
}

func (m *MockSignalStore) ListRecent(limit int) ([]*models.Signal, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.Signal, 0, len(m.signals))
	for _, s := range m.signals {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ============ Mock NotificationStore ============

type MockNotificationStore struct {
	notifications []*models.Notification
	listErr       error
	deleteErr     error
}

func NewMockNotificationStore() *MockNotificationStore {
	return &MockNotificationStore{}
}

func (m *MockNotificationStore) add(n *models.Notification) {
	m.notifications = append(m.notifications, n)
}

func (m *MockNotificationStore) ListRecent(limit int) ([]*models.Notification, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := append([]*models.Notification(nil), m.notifications...)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationStore) DeleteOlderThan(timestamp time.Time) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var kept []*models.Notification
	var deleted int64
	for _, n := range m.notifications {
		if n.CreatedAt.Before(timestamp) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return deleted, nil
}

// ============ Mock TradeEngine ============

type MockTradeEngine struct {
	running     bool
	markets     []string
	execFn      func(ctx context.Context, market, side string, amount decimal.Decimal) (*models.Order, error)
	cancelFn    func(ctx context.Context, orderID int64) (*models.Order, error)
	execCalls   int
	cancelCalls int
	lastMarket  string
	lastSide    string
	lastAmount  decimal.Decimal
}

func NewMockTradeEngine(markets ...string) *MockTradeEngine {
	return &MockTradeEngine{running: true, markets: markets}
}

func (m *MockTradeEngine) ExecuteManual(ctx context.Context, market, side string, amount decimal.Decimal) (*models.Order, error) {
	m.execCalls++
	m.lastMarket = market
	m.lastSide = side
	m.lastAmount = amount
	if m.execFn != nil {
		return m.execFn(ctx, market, side, amount)
	}
	return &models.Order{
		ID:              1,
		Market:          market,
		Side:            side,
		Status:          models.OrderStatusFilled,
		RequestedAmount: amount,
	}, nil
}

func (m *MockTradeEngine) RequestCancel(ctx context.Context, orderID int64) (*models.Order, error) {
	m.cancelCalls++
	if m.cancelFn != nil {
		return m.cancelFn(ctx, orderID)
	}
	return &models.Order{
		ID:     orderID,
		Market: "KRW-BTC",
		Status: models.OrderStatusSubmitted,
	}, nil
}

func (m *MockTradeEngine) IsRunning() bool {
	return m.running
}

func (m *MockTradeEngine) Markets() []string {
	return m.markets
}

// ============ Mock MarketQuoter ============

type MockMarketQuoter struct {
	prices     map[string]decimal.Decimal
	volatility map[string]decimal.Decimal
}

func NewMockMarketQuoter() *MockMarketQuoter {
	return &MockMarketQuoter{
		prices:     make(map[string]decimal.Decimal),
		volatility: make(map[string]decimal.Decimal),
	}
}

func (m *MockMarketQuoter) setPrice(market, price string) {
	m.prices[market] = d(price)
}

func (m *MockMarketQuoter) LastPrice(market string) (decimal.Decimal, bool) {
	price, ok := m.prices[market]
	return price, ok
}

func (m *MockMarketQuoter) VolatilityPct(market string) decimal.Decimal {
	if v, ok := m.volatility[market]; ok {
		return v
	}
	return decimal.Zero
}
