package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/bot"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/utils"
)

// Ошибки сервиса ордеров
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotCancellable = errors.New("order is not cancellable")
	ErrEngineStopped       = errors.New("trading engine is not running")
	ErrUnknownMarket       = errors.New("market is not traded by the engine")
	ErrInvalidOrderArg     = errors.New("invalid order argument")
)

// OrderService предоставляет бизнес-логику для работы с ордерами.
//
// Отвечает за:
// - Получение списка ордеров с фильтрацией по статусу и рынку
// - Получение ордера по ID
// - Ручной запуск сделки через торговый движок
// - Сводку по статусам для панели управления
//
// Сам конвейер исполнения живёт в internal/bot: сервис только
// проверяет вход и передаёт запрос движку.
type OrderService struct {
	orders OrderStore
	engine TradeEngine
	logger *zap.Logger
}

// NewOrderService создает новый экземпляр OrderService.
func NewOrderService(orders OrderStore, engine TradeEngine, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		engine: engine,
		logger: logger.Named("order_service"),
	}
}

// GetOrders возвращает список ордеров с фильтрацией.
//
// Параметры:
// - status: фильтр по статусу (PENDING, SUBMITTED, FILLED, CANCELLED, FAILED),
//   пустая строка - без фильтра
// - market: фильтр по рынку (KRW-BTC), пустая строка - без фильтра
// - limit: максимальное количество записей (по умолчанию 50, максимум 200)
// - offset: смещение для пагинации, используется только без фильтров
//
// Ордера отсортированы по времени создания (новые сверху).
func (s *OrderService) GetOrders(status, market string, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	status = strings.ToUpper(strings.TrimSpace(status))
	market = strings.ToUpper(strings.TrimSpace(market))

	var (
		orders []*models.Order
		err    error
	)
	switch {
	case status != "":
		if !validOrderStatus(status) {
			return nil, ErrInvalidOrderArg
		}
		orders, err = s.orders.ListByStatus(status, limit)
	case market != "":
		orders, err = s.orders.ListByMarket(market, limit)
	default:
		orders, err = s.orders.List(limit, offset)
	}
	if err != nil {
		return nil, err
	}

	if orders == nil {
		orders = []*models.Order{}
	}
	return orders, nil
}

// GetOrder возвращает ордер по ID.
func (s *OrderService) GetOrder(id int64) (*models.Order, error) {
	if id <= 0 {
		return nil, ErrInvalidOrderArg
	}

	order, err := s.orders.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// ExecuteManual запускает ручную сделку через торговый движок.
//
// Параметры:
// - market: рынок сделки, должен входить в список торгуемых движком
// - side: BUY или SELL
// - amount: KRW для покупки, объём базовой валюты для продажи
//
// Возвращаемый ордер всегда в терминальном либо SUBMITTED статусе;
// отказ валидации или риск-контроля приходит как FAILED-ордер
// с заполненным error_message, не как ошибка.
func (s *OrderService) ExecuteManual(ctx context.Context, market, side string, amount decimal.Decimal) (*models.Order, error) {
	if !s.engine.IsRunning() {
		return nil, ErrEngineStopped
	}

	market = strings.ToUpper(strings.TrimSpace(market))
	side = strings.ToUpper(strings.TrimSpace(side))

	if err := utils.ValidateMarket(market); err != nil {
		return nil, ErrInvalidOrderArg
	}
	if err := utils.ValidateSide(side); err != nil {
		return nil, ErrInvalidOrderArg
	}
	if err := utils.ValidateAmount(amount); err != nil {
		return nil, ErrInvalidOrderArg
	}
	if !s.isTraded(market) {
		return nil, ErrUnknownMarket
	}

	s.logger.Info("manual order requested",
		utils.Market(market),
		utils.Side(side),
		utils.Amount(amount))

	return s.engine.ExecuteManual(ctx, market, side, amount)
}

// CancelOrder запрашивает отмену SUBMITTED-ордера на бирже.
//
// Отмена асинхронна: запрос уходит на биржу сразу, а локальный статус
// изменится после того, как свип подтвердит терминальное состояние.
// Работает и при остановленном движке: отмена снижает экспозицию,
// блокировать её нет причин.
func (s *OrderService) CancelOrder(ctx context.Context, id int64) (*models.Order, error) {
	if id <= 0 {
		return nil, ErrInvalidOrderArg
	}

	order, err := s.engine.RequestCancel(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return nil, ErrOrderNotFound
		case errors.Is(err, bot.ErrNotCancellable):
			return nil, ErrOrderNotCancellable
		}
		return nil, err
	}

	s.logger.Info("order cancel requested",
		utils.OrderID(order.ID),
		utils.Market(order.Market))
	return order, nil
}

// StatusSummary - количество ордеров по каждому статусу.
type StatusSummary struct {
	Pending   int `json:"pending"`
	Submitted int `json:"submitted"`
	Filled    int `json:"filled"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

// GetStatusSummary возвращает сводку по статусам ордеров.
func (s *OrderService) GetStatusSummary() (*StatusSummary, error) {
	summary := &StatusSummary{}

	counts := []struct {
		status string
		dst    *int
	}{
		{models.OrderStatusPending, &summary.Pending},
		{models.OrderStatusSubmitted, &summary.Submitted},
		{models.OrderStatusFilled, &summary.Filled},
		{models.OrderStatusCancelled, &summary.Cancelled},
		{models.OrderStatusFailed, &summary.Failed},
	}
	for _, c := range counts {
		n, err := s.orders.CountByStatus(c.status)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	return summary, nil
}

func (s *OrderService) isTraded(market string) bool {
	for _, m := range s.engine.Markets() {
		if m == market {
			return true
		}
	}
	return false
}

func validOrderStatus(status string) bool {
	switch status {
	case models.OrderStatusPending, models.OrderStatusSubmitted, models.OrderStatusFilled,
		models.OrderStatusCancelled, models.OrderStatusFailed:
		return true
	}
	return false
}
