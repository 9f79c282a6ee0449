package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/bot"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
)

// Интерфейсы хранилищ, используемые сервисами. Реализуются
// репозиториями пакета repository; в тестах подменяются моками.

// OrderStore определяет чтение ордеров для API
type OrderStore interface {
	GetByID(id int64) (*models.Order, error)
	List(limit, offset int) ([]*models.Order, error)
	ListByStatus(status string, limit int) ([]*models.Order, error)
	ListByMarket(market string, limit int) ([]*models.Order, error)
	CountByStatus(status string) (int, error)
}

// PositionStore определяет чтение позиций
type PositionStore interface {
	GetByMarket(market string) (*models.Position, error)
	GetAll() ([]*models.Position, error)
}

// StatsStore определяет чтение и остановку торгового дня
type StatsStore interface {
	GetByDate(date time.Time) (*models.DailyStats, error)
	GetLatest() (*models.DailyStats, error)
	ListRecent(limit int) ([]*models.DailyStats, error)
	SetHalted(date time.Time, halted bool, reason string) error
}

// RiskParamsStore определяет чтение и изменение параметров риска
type RiskParamsStore interface {
	Get() (*models.RiskParams, error)
	Update(params *models.RiskParams) error
}

// RiskEventStore определяет журнал риск-событий
type RiskEventStore interface {
	Create(event *models.RiskEvent) error
	ListRecent(limit int) ([]*models.RiskEvent, error)
	ListByType(eventType string, limit int) ([]*models.RiskEvent, error)
	CountSince(since time.Time) (int, error)
}

// SignalStore определяет чтение торговых сигналов
type SignalStore interface {
	GetByID(id int64) (*models.Signal, error)
	GetLatestByMarket(market string) (*models.Signal, error)
	ListRecent(limit int) ([]*models.Signal, error)
}

// NotificationStore определяет журнал уведомлений
type NotificationStore interface {
	ListRecent(limit int) ([]*models.Notification, error)
	DeleteOlderThan(timestamp time.Time) (int64, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ OrderStore = (*repository.OrderRepository)(nil)
var _ PositionStore = (*repository.PositionRepository)(nil)
var _ StatsStore = (*repository.StatsRepository)(nil)
var _ RiskParamsStore = (*repository.RiskParamsRepository)(nil)
var _ RiskEventStore = (*repository.RiskEventRepository)(nil)
var _ SignalStore = (*repository.SignalRepository)(nil)
var _ NotificationStore = (*repository.NotificationRepository)(nil)

// TradeEngine - операции торгового движка, доступные через API.
// Интерфейс позволяет тестировать сервисы без живого движка.
type TradeEngine interface {
	ExecuteManual(ctx context.Context, market, side string, amount decimal.Decimal) (*models.Order, error)
	RequestCancel(ctx context.Context, orderID int64) (*models.Order, error)
	IsRunning() bool
	Markets() []string
}

// MarketQuoter отдаёт последнюю известную цену рынка.
// Реализуется движком поверх окна коллектора цен.
type MarketQuoter interface {
	LastPrice(market string) (decimal.Decimal, bool)
	VolatilityPct(market string) decimal.Decimal
}

var _ TradeEngine = (*bot.Engine)(nil)
var _ MarketQuoter = (*bot.Engine)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// OrderServiceInterface определяет интерфейс сервиса ордеров
type OrderServiceInterface interface {
	GetOrders(status, market string, limit, offset int) ([]*models.Order, error)
	GetOrder(id int64) (*models.Order, error)
	ExecuteManual(ctx context.Context, market, side string, amount decimal.Decimal) (*models.Order, error)
	CancelOrder(ctx context.Context, id int64) (*models.Order, error)
	GetStatusSummary() (*StatusSummary, error)
}

// PositionServiceInterface определяет интерфейс сервиса позиций
type PositionServiceInterface interface {
	GetPositions() ([]*PositionView, error)
	GetPosition(market string) (*PositionView, error)
}

// StatsServiceInterface определяет интерфейс сервиса дневной статистики
type StatsServiceInterface interface {
	GetToday() (*models.DailyStats, error)
	GetHistory(days int) ([]*models.DailyStats, error)
	GetPerformance(days int) (*PerformanceSummary, error)
}

// RiskServiceInterface определяет интерфейс сервиса риск-контроля
type RiskServiceInterface interface {
	GetParams() (*models.RiskParams, error)
	UpdateParams(params *models.RiskParams) (*models.RiskParams, error)
	HaltTrading(reason string) error
	ResumeTrading() error
	IsHalted() (bool, string, error)
	GetEvents(eventType string, limit int) ([]*models.RiskEvent, error)
}

// SignalServiceInterface определяет интерфейс сервиса сигналов
type SignalServiceInterface interface {
	GetSignals(limit int) ([]*models.Signal, error)
	GetSignal(id int64) (*models.Signal, error)
	GetLatestForMarket(market string) (*models.Signal, error)
}

// NotificationServiceInterface определяет интерфейс сервиса уведомлений
type NotificationServiceInterface interface {
	GetNotifications(limit int) ([]*models.Notification, error)
	Cleanup(olderThanDays int) (int64, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ OrderServiceInterface = (*OrderService)(nil)
var _ PositionServiceInterface = (*PositionService)(nil)
var _ StatsServiceInterface = (*StatsService)(nil)
var _ RiskServiceInterface = (*RiskService)(nil)
var _ SignalServiceInterface = (*SignalService)(nil)
var _ NotificationServiceInterface = (*NotificationService)(nil)
