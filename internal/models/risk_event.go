package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskEvent представляет неизменяемую аудиторскую запись о сработавшем
// риск-контроле. Создаётся, никогда не изменяется и не удаляется.
type RiskEvent struct {
	ID           int64           `json:"id" db:"id"`
	EventType    string          `json:"event_type" db:"event_type"`
	Market       string          `json:"market" db:"market"`
	TriggerValue decimal.Decimal `json:"trigger_value" db:"trigger_value"` // сравнивавшееся значение
	Threshold    decimal.Decimal `json:"threshold" db:"threshold"`         // настроенный порог
	Message      string          `json:"message" db:"message"`
	OrderID      *int64          `json:"order_id,omitempty" db:"order_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Типы риск-событий
const (
	RiskEventStopLoss       = "STOP_LOSS"       // продажа ниже стоп-лосса (информационное, не блокирует)
	RiskEventDailyLimit     = "DAILY_LIMIT"     // достигнут дневной лимит убытка
	RiskEventPositionLimit  = "POSITION_LIMIT"  // размер позиции вне допустимого диапазона
	RiskEventVolatilityHalt = "VOLATILITY_HALT" // волатильность выше порога, новые покупки запрещены
	RiskEventTradingHalted  = "TRADING_HALTED"  // торговля остановлена флагом
	RiskEventSystemError    = "SYSTEM_ERROR"    // нарушение инварианта данных
)
