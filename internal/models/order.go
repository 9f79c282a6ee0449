package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order представляет одну попытку сделки.
// Запись создаётся в статусе PENDING на этапе валидации и никогда не удаляется
// (аудиторский след). Мутируют её только исполнитель ордеров и фоновая сверка.
type Order struct {
	ID              int64               `json:"id" db:"id"`
	SignalID        *int64              `json:"signal_id,omitempty" db:"signal_id"` // nil - ручной запуск
	Market          string              `json:"market" db:"market"`                 // KRW-BTC
	Side            string              `json:"side" db:"side"`                     // BUY, SELL
	OrdType         string              `json:"ord_type" db:"ord_type"`             // market, limit
	Status          string              `json:"status" db:"status"`
	RequestedAmount decimal.Decimal     `json:"requested_amount" db:"requested_amount"` // KRW для market BUY, объём для SELL/limit
	RequestedPrice  decimal.NullDecimal `json:"requested_price,omitempty" db:"requested_price"`
	ExecutedPrice   decimal.Decimal     `json:"executed_price" db:"executed_price"`
	ExecutedAmount  decimal.Decimal     `json:"executed_amount" db:"executed_amount"`
	Fee             decimal.Decimal     `json:"fee" db:"fee"`
	AvgCostAtOrder  decimal.NullDecimal `json:"avg_cost_at_order,omitempty" db:"avg_cost_at_order"` // средняя цена позиции на момент SELL
	ExchangeOrderID string              `json:"exchange_order_id,omitempty" db:"exchange_order_id"`
	IdempotencyKey  string              `json:"idempotency_key" db:"idempotency_key"`
	ErrorMessage    string              `json:"error_message,omitempty" db:"error_message"`
	AppliedAt       *time.Time          `json:"applied_at,omitempty" db:"applied_at"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	ExecutedAt      *time.Time          `json:"executed_at,omitempty" db:"executed_at"`
}

// Статусы ордера. Переходы монотонны, терминальные статусы финальны
// (таблица переходов - internal/bot/state_machine.go).
const (
	OrderStatusPending   = "PENDING"
	OrderStatusSubmitted = "SUBMITTED"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusFailed    = "FAILED"
)

// Стороны сделки
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Типы ордеров (словарь Upbit)
const (
	OrdTypeMarket = "market"
	OrdTypeLimit  = "limit"
)

// OrderTrigger описывает происхождение ордера: ручной запуск либо
// сигнал ИИ. Нулевое значение - ручной запуск.
type OrderTrigger struct {
	signalID int64
	bySignal bool
}

// ManualTrigger возвращает триггер ручного запуска.
func ManualTrigger() OrderTrigger {
	return OrderTrigger{}
}

// SignalTrigger возвращает триггер от сохранённого сигнала.
func SignalTrigger(signalID int64) OrderTrigger {
	return OrderTrigger{signalID: signalID, bySignal: true}
}

// SignalID возвращает id сигнала-источника и признак его наличия.
func (t OrderTrigger) SignalID() (int64, bool) {
	return t.signalID, t.bySignal
}

// SignalRef возвращает ссылку для nullable-колонки signal_id.
func (t OrderTrigger) SignalRef() *int64 {
	if !t.bySignal {
		return nil
	}
	id := t.signalID
	return &id
}

// Applied сообщает, применён ли ордер к позиции и дневной статистике.
func (o *Order) Applied() bool {
	return o.AppliedAt != nil
}

// Notional возвращает стоимость ордера в KRW для проверки размера позиции:
// для market BUY заявленная сумма уже в KRW, иначе объём умножается на цену.
func (o *Order) Notional(price decimal.Decimal) decimal.Decimal {
	if o.Side == SideBuy && o.OrdType == OrdTypeMarket {
		return o.RequestedAmount
	}
	if o.RequestedPrice.Valid {
		return o.RequestedAmount.Mul(o.RequestedPrice.Decimal)
	}
	return o.RequestedAmount.Mul(price)
}
