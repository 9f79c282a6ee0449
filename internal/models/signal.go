package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal представляет сохранённую рекомендацию ИИ.
// Конвейер исполнения не интерпретирует reasoning - сигнал для него
// просто входное намерение с уровнем уверенности.
type Signal struct {
	ID         int64           `json:"id" db:"id"`
	Market     string          `json:"market" db:"market"`
	SignalType string          `json:"signal_type" db:"signal_type"` // BUY, HOLD, SELL
	Confidence decimal.Decimal `json:"confidence" db:"confidence"`   // [0, 1]
	Reasoning  string          `json:"reasoning" db:"reasoning"`
	ModelName  string          `json:"model_name" db:"model_name"`
	Tokens     int             `json:"tokens" db:"tokens"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Типы сигналов
const (
	SignalBuy  = "BUY"
	SignalHold = "HOLD"
	SignalSell = "SELL"
)

// Actionable сообщает, требует ли сигнал действия (BUY или SELL).
func (s *Signal) Actionable() bool {
	return s.SignalType == SignalBuy || s.SignalType == SignalSell
}
