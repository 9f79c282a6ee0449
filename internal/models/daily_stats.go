package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyStats представляет агрегат торгового дня (UTC).
// Одна строка на дату, создаётся идемпотентно задачей ролловера либо
// применением первого ордера дня. Инвариант: trade_count >= win_count + loss_count
// (сделки с нулевым PnL не считаются ни выигрышем, ни проигрышем).
type DailyStats struct {
	ID              int64           `json:"id" db:"id"`
	StatDate        time.Time       `json:"stat_date" db:"stat_date"`
	StartingBalance decimal.Decimal `json:"starting_balance" db:"starting_balance"`
	EndingBalance   decimal.Decimal `json:"ending_balance" db:"ending_balance"`
	RealizedPnl     decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	TradeCount      int             `json:"trade_count" db:"trade_count"`
	WinCount        int             `json:"win_count" db:"win_count"`
	LossCount       int             `json:"loss_count" db:"loss_count"`
	IsTradingHalted bool            `json:"is_trading_halted" db:"is_trading_halted"`
	HaltReason      string          `json:"halt_reason,omitempty" db:"halt_reason"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Причины остановки торговли
const (
	HaltReasonDailyLimit = "DAILY_LIMIT"
	HaltReasonManual     = "MANUAL"
)

// LossLimit возвращает абсолютный дневной лимит убытка в KRW
// для заданного процента от стартового баланса.
func (s *DailyStats) LossLimit(limitPct decimal.Decimal) decimal.Decimal {
	return s.StartingBalance.Mul(limitPct).Div(decimal.NewFromInt(100))
}

// LossLimitBreached сообщает, достиг ли накопленный реализованный PnL
// дневного лимита убытка: realized_pnl <= -(limit_pct/100 * starting_balance).
// При нулевом стартовом балансе лимит не применяется.
func (s *DailyStats) LossLimitBreached(limitPct decimal.Decimal) bool {
	if s.StartingBalance.IsZero() {
		return false
	}
	return s.RealizedPnl.LessThanOrEqual(s.LossLimit(limitPct).Neg())
}
