package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ============ Mock Order Service ============

// MockOrderService мок для OrderServiceInterface
type MockOrderService struct {
	orders    map[int64]*models.Order
	listErr   error
	getErr    error
	execErr   error
	cancelErr error
	execFn    func(ctx context.Context, market, side string, amount decimal.Decimal) (*models.Order, error)
	nextID    int64
	mu        sync.RWMutex
}

// NewMockOrderService создает новый мок сервиса ордеров
func NewMockOrderService() *MockOrderService {
	return &MockOrderService{
		orders: make(map[int64]*models.Order),
		nextID: 1,
	}
}

func (m *MockOrderService) GetOrders(status, market string, limit, offset int) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	orders := []*models.Order{}
	for _, o := range m.orders {
		if status != "" && o.Status != status {
			continue
		}
		if market != "" && o.Market != market {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (m *MockOrderService) GetOrder(id int64) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	order, exists := m.orders[id]
	if !exists {
		return nil, service.ErrOrderNotFound
	}
	return order, nil
}

func (m *MockOrderService) ExecuteManual(ctx context.Context, market, side string, amount decimal.Decimal) (*models.Order, error) {
	if m.execErr != nil {
		return nil, m.execErr
	}
	if m.execFn != nil {
		return m.execFn(ctx, market, side, amount)
	}

	return m.AddOrder(&models.Order{
		Market:          market,
		Side:            side,
		OrdType:         models.OrdTypeMarket,
		Status:          models.OrderStatusFilled,
		RequestedAmount: amount,
	}), nil
}

func (m *MockOrderService) CancelOrder(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cancelErr != nil {
		return nil, m.cancelErr
	}

	order, exists := m.orders[id]
	if !exists {
		return nil, service.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusSubmitted {
		return nil, service.ErrOrderNotCancellable
	}
	return order, nil
}

func (m *MockOrderService) GetStatusSummary() (*service.StatusSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	summary := &service.StatusSummary{}
	for _, o := range m.orders {
		switch o.Status {
		case models.OrderStatusPending:
			summary.Pending++
		case models.OrderStatusSubmitted:
			summary.Submitted++
		case models.OrderStatusFilled:
			summary.Filled++
		case models.OrderStatusCancelled:
			summary.Cancelled++
		case models.OrderStatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

// SetError устанавливает ошибку для указанной операции
func (m *MockOrderService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "list":
		m.listErr = err
	case "get":
		m.getErr = err
	case "exec":
		m.execErr = err
	case "cancel":
		m.cancelErr = err
	}
}

// AddOrder добавляет ордер напрямую (для настройки тестов)
func (m *MockOrderService) AddOrder(order *models.Order) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order.ID == 0 {
		order.ID = m.nextID
	}
	if order.ID >= m.nextID {
		m.nextID = order.ID + 1
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	m.orders[order.ID] = order
	return order
}

// ============ Mock Position Service ============

// MockPositionService мок для PositionServiceInterface
type MockPositionService struct {
	views   map[string]*service.PositionView
	listErr error
	getErr  error
	mu      sync.RWMutex
}

// NewMockPositionService создает новый мок сервиса позиций
func NewMockPositionService() *MockPositionService {
	return &MockPositionService{
		views: make(map[string]*service.PositionView),
	}
}

func (m *MockPositionService) GetPositions() ([]*service.PositionView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	views := []*service.PositionView{}
	for _, v := range m.views {
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Market < views[j].Market })
	return views, nil
}

func (m *MockPositionService) GetPosition(market string) (*service.PositionView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	view, exists := m.views[market]
	if !exists {
		return nil, service.ErrPositionNotFound
	}
	return view, nil
}

// SetError устанавливает ошибку для указанной операции
func (m *MockPositionService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "list":
		m.listErr = err
	case "get":
		m.getErr = err
	}
}

// AddPosition добавляет позицию напрямую (для настройки тестов)
func (m *MockPositionService) AddPosition(view *service.PositionView) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.views[view.Market] = view
}

// ============ Mock Stats Service ============

// MockStatsService мок для StatsServiceInterface
type MockStatsService struct {
	today       *models.DailyStats
	history     []*models.DailyStats
	performance *service.PerformanceSummary
	todayErr    error
	historyErr  error
	perfErr     error
	mu          sync.RWMutex
}

// NewMockStatsService создает новый мок сервиса статистики
func NewMockStatsService() *MockStatsService {
	return &MockStatsService{}
}

func (m *MockStatsService) GetToday() (*models.DailyStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.todayErr != nil {
		return nil, m.todayErr
	}
	if m.today == nil {
		return nil, service.ErrStatsNotFound
	}
	return m.today, nil
}

func (m *MockStatsService) GetHistory(days int) ([]*models.DailyStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.historyErr != nil {
		return nil, m.historyErr
	}
	if len(m.history) > days {
		return m.history[:days], nil
	}
	return m.history, nil
}

func (m *MockStatsService) GetPerformance(days int) (*service.PerformanceSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.perfErr != nil {
		return nil, m.perfErr
	}
	if m.performance == nil {
		return &service.PerformanceSummary{Days: days}, nil
	}
	return m.performance, nil
}

// SetError устанавливает ошибку для указанной операции
func (m *MockStatsService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "today":
		m.todayErr = err
	case "history":
		m.historyErr = err
	case "performance":
		m.perfErr = err
	}
}

// SetToday устанавливает статистику текущего дня напрямую
func (m *MockStatsService) SetToday(stats *models.DailyStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.today = stats
}

// AddDay добавляет день в историю (для настройки тестов)
func (m *MockStatsService) AddDay(stats *models.DailyStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, stats)
}

// SetPerformance устанавливает сводку производительности напрямую
func (m *MockStatsService) SetPerformance(perf *service.PerformanceSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.performance = perf
}

// ============ Mock Risk Service ============

// MockRiskService мок для RiskServiceInterface
type MockRiskService struct {
	params     *models.RiskParams
	halted     bool
	haltReason string
	events     []*models.RiskEvent
	paramsErr  error
	haltErr    error
	statusErr  error
	eventsErr  error
	mu         sync.RWMutex
}

// NewMockRiskService создает новый мок сервиса риск-контроля
func NewMockRiskService() *MockRiskService {
	params := models.DefaultRiskParams()
	return &MockRiskService{params: &params}
}

func (m *MockRiskService) GetParams() (*models.RiskParams, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.paramsErr != nil {
		return nil, m.paramsErr
	}
	return m.params, nil
}

func (m *MockRiskService) UpdateParams(params *models.RiskParams) (*models.RiskParams, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paramsErr != nil {
		return nil, m.paramsErr
	}

	// Та же валидация, что у реального сервиса
	if err := params.Validate(); err != nil {
		return nil, service.ErrInvalidRiskParams
	}
	m.params = params
	return params, nil
}

func (m *MockRiskService) HaltTrading(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.haltErr != nil {
		return m.haltErr
	}

	m.halted = true
	if reason == "" {
		reason = "manual halt by operator"
	}
	m.haltReason = reason
	return nil
}

func (m *MockRiskService) ResumeTrading() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.haltErr != nil {
		return m.haltErr
	}

	m.halted = false
	m.haltReason = ""
	return nil
}

func (m *MockRiskService) IsHalted() (bool, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.statusErr != nil {
		return false, "", m.statusErr
	}
	return m.halted, m.haltReason, nil
}

func (m *MockRiskService) GetEvents(eventType string, limit int) ([]*models.RiskEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.eventsErr != nil {
		return nil, m.eventsErr
	}

	events := []*models.RiskEvent{}
	for _, e := range m.events {
		if eventType != "" && e.EventType != eventType {
			continue
		}
		events = append(events, e)
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// SetError устанавливает ошибку для указанной операции
func (m *MockRiskService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "params":
		m.paramsErr = err
	case "halt":
		m.haltErr = err
	case "status":
		m.statusErr = err
	case "events":
		m.eventsErr = err
	}
}

// SetHalted устанавливает статус остановки напрямую
func (m *MockRiskService) SetHalted(halted bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.halted = halted
	m.haltReason = reason
}

// AddEvent добавляет риск-событие напрямую (для настройки тестов)
func (m *MockRiskService) AddEvent(eventType, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, &models.RiskEvent{
		ID:        int64(len(m.events) + 1),
		EventType: eventType,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ============ Mock Signal Service ============

// MockSignalService мок для SignalServiceInterface
type MockSignalService struct {
	signals map[int64]*models.Signal
	latest  map[string]*models.Signal
	listErr error
	getErr  error
	nextID  int64
	mu      sync.RWMutex
}

// NewMockSignalService создает новый мок сервиса сигналов
func NewMockSignalService() *MockSignalService {
	return &MockSignalService{
		signals: make(map[int64]*models.Signal),
		latest:  make(map[string]*models.Signal),
		nextID:  1,
	}
}

func (m *MockSignalService) GetSignals(limit int) ([]*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	signals := []*models.Signal{}
	for _, s := range m.signals {
		signals = append(signals, s)
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].ID > signals[j].ID })
	if limit > 0 && len(signals) > limit {
		signals = signals[:limit]
	}
	return signals, nil
}

func (m *MockSignalService) GetSignal(id int64) (*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	signal, exists := m.signals[id]
	if !exists {
		return nil, service.ErrSignalNotFound
	}
	return signal, nil
}

func (m *MockSignalService) GetLatestForMarket(market string) (*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	signal, exists := m.latest[market]
	if !exists {
		return nil, service.ErrSignalNotFound
	}
	return signal, nil
}

// SetError устанавливает ошибку для указанной операции
func (m *MockSignalService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "list":
		m.listErr = err
	case "get":
		m.getErr = err
	}
}

// AddSignal добавляет сигнал напрямую (для настройки тестов)
func (m *MockSignalService) AddSignal(market, signalType, confidence string) *models.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	signal := &models.Signal{
		ID:         m.nextID,
		Market:     market,
		SignalType: signalType,
		Confidence: d(confidence),
		ModelName:  "gpt-4o-mini",
		CreatedAt:  time.Now(),
	}
	m.nextID++
	m.signals[signal.ID] = signal
	m.latest[market] = signal
	return signal
}

// ============ Mock Notification Service ============

// MockNotificationService мок для NotificationServiceInterface
type MockNotificationService struct {
	notifications []*models.Notification
	getErr        error
	cleanupErr    error
	mu            sync.RWMutex
}

// NewMockNotificationService создает новый мок сервиса уведомлений
func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

func (m *MockNotificationService) GetNotifications(limit int) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	notifications := []*models.Notification{}
	notifications = append(notifications, m.notifications...)
	if limit > 0 && len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

func (m *MockNotificationService) Cleanup(olderThanDays int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cleanupErr != nil {
		return 0, m.cleanupErr
	}

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	kept := m.notifications[:0]
	deleted := int64(0)
	for _, n := range m.notifications {
		if n.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return deleted, nil
}

// SetError устанавливает ошибку для указанной операции
func (m *MockNotificationService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "get":
		m.getErr = err
	case "cleanup":
		m.cleanupErr = err
	}
}

// AddNotification добавляет уведомление напрямую (для настройки тестов)
func (m *MockNotificationService) AddNotification(ntype, severity, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications = append(m.notifications, &models.Notification{
		ID:        int64(len(m.notifications) + 1),
		Type:      ntype,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ============ Mock Engine Status ============

// MockEngineStatus мок статуса движка для health check
type MockEngineStatus struct {
	running bool
	markets []string
}

func (m *MockEngineStatus) IsRunning() bool   { return m.running }
func (m *MockEngineStatus) Markets() []string { return m.markets }

// ============ Helper errors for tests ============

var (
	ErrMockDatabase = errors.New("mock database error")
	ErrMockService  = errors.New("mock service error")
)

// Интерфейсы должны быть реализованы моками
var _ service.OrderServiceInterface = (*MockOrderService)(nil)
var _ service.PositionServiceInterface = (*MockPositionService)(nil)
var _ service.StatsServiceInterface = (*MockStatsService)(nil)
var _ service.RiskServiceInterface = (*MockRiskService)(nil)
var _ service.SignalServiceInterface = (*MockSignalService)(nil)
var _ service.NotificationServiceInterface = (*MockNotificationService)(nil)
