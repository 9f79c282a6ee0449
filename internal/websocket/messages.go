package websocket

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/exchange"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderUpdate - изменение статуса ордера
	// Отправляется при каждом переходе конвейера: SUBMITTED, FILLED,
	// CANCELLED, FAILED
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypePositionUpdate - изменение позиции после применения ордера
	MessageTypePositionUpdate MessageType = "positionUpdate"

	// MessageTypeStatsUpdate - обновление дневной статистики
	// Отправляется после применения ордера и при ролловере дня
	MessageTypeStatsUpdate MessageType = "statsUpdate"

	// MessageTypeTicker - текущая цена рынка
	// Отправляется на каждый успешный опрос коллектора цен
	MessageTypeTicker MessageType = "ticker"

	// MessageTypeNotification - новое уведомление операторам
	MessageTypeNotification MessageType = "notification"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderUpdateMessage - сообщение об изменении ордера
//
// Содержит полную строку ордера: панель не делает дополнительный
// запрос к API, чтобы отрисовать переход статуса.
type OrderUpdateMessage struct {
	BaseMessage
	Data *models.Order `json:"data"`
}

// PositionUpdateMessage - сообщение об изменении позиции
type PositionUpdateMessage struct {
	BaseMessage
	Data *models.Position `json:"data"`
}

// StatsUpdateMessage - сообщение с дневной статистикой
type StatsUpdateMessage struct {
	BaseMessage
	Data *models.DailyStats `json:"data"`
}

// TickerMessage - сообщение с текущей ценой рынка
//
// Отправляется раз в интервал опроса для каждого торгуемого рынка.
// Содержит только поля, нужные панели: полный тикер биржи не
// транслируется.
type TickerMessage struct {
	BaseMessage
	Market     string          `json:"market"`
	TradePrice decimal.Decimal `json:"trade_price"`
	ChangeRate decimal.Decimal `json:"change_rate"`
}

// NotificationMessage - сообщение о новом уведомлении
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewOrderUpdateMessage создает сообщение изменения ордера
func NewOrderUpdateMessage(order *models.Order) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOrderUpdate,
			Timestamp: time.Now().UTC(),
		},
		Data: order,
	}
}

// NewPositionUpdateMessage создает сообщение изменения позиции
func NewPositionUpdateMessage(position *models.Position) *PositionUpdateMessage {
	return &PositionUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionUpdate,
			Timestamp: time.Now().UTC(),
		},
		Data: position,
	}
}

// NewStatsUpdateMessage создает сообщение дневной статистики
func NewStatsUpdateMessage(stats *models.DailyStats) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStatsUpdate,
			Timestamp: time.Now().UTC(),
		},
		Data: stats,
	}
}

// NewTickerMessage создает сообщение цены рынка
func NewTickerMessage(ticker *exchange.Ticker) *TickerMessage {
	return &TickerMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeTicker,
			Timestamp: ticker.Timestamp,
		},
		Market:     ticker.Market,
		TradePrice: ticker.TradePrice,
		ChangeRate: ticker.ChangeRate,
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notification *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now().UTC(),
		},
		Data: notification,
	}
}
