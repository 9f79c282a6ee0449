package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RiskParams представляет настраиваемые параметры риск-контроля.
// Хранятся одной строкой в БД, правятся через API и читаются заново перед
// каждой оценкой: никакого глобального состояния в горячем пути, оценщик
// получает параметры явным аргументом.
type RiskParams struct {
	PositionSizeMinPct     decimal.Decimal `json:"position_size_min_pct" db:"position_size_min_pct"`
	PositionSizeMaxPct     decimal.Decimal `json:"position_size_max_pct" db:"position_size_max_pct"`
	StopLossPct            decimal.Decimal `json:"stop_loss_pct" db:"stop_loss_pct"`
	DailyLossLimitPct      decimal.Decimal `json:"daily_loss_limit_pct" db:"daily_loss_limit_pct"`
	VolatilityThresholdPct decimal.Decimal `json:"volatility_threshold_pct" db:"volatility_threshold_pct"`
	MinConfidence          decimal.Decimal `json:"min_confidence" db:"min_confidence"`
	OrderMaxKRW            decimal.Decimal `json:"order_max_krw" db:"order_max_krw"`
	UpdatedAt              time.Time       `json:"updated_at" db:"updated_at"`
}

// DefaultRiskParams возвращает параметры по умолчанию.
// Используются при первом запуске, пока строка в БД не создана.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		PositionSizeMinPct:     decimal.NewFromFloat(5.0),
		PositionSizeMaxPct:     decimal.NewFromFloat(20.0),
		StopLossPct:            decimal.NewFromFloat(3.0),
		DailyLossLimitPct:      decimal.NewFromFloat(5.0),
		VolatilityThresholdPct: decimal.NewFromFloat(8.0),
		MinConfidence:          decimal.NewFromFloat(0.65),
		OrderMaxKRW:            decimal.NewFromInt(1_000_000),
	}
}

// Validate проверяет диапазоны параметров.
func (p *RiskParams) Validate() error {
	hundred := decimal.NewFromInt(100)
	one := decimal.NewFromInt(1)

	if p.PositionSizeMinPct.IsNegative() || p.PositionSizeMinPct.GreaterThan(hundred) {
		return fmt.Errorf("position_size_min_pct must be in [0, 100], got %s", p.PositionSizeMinPct)
	}
	if p.PositionSizeMaxPct.LessThanOrEqual(decimal.Zero) || p.PositionSizeMaxPct.GreaterThan(hundred) {
		return fmt.Errorf("position_size_max_pct must be in (0, 100], got %s", p.PositionSizeMaxPct)
	}
	if p.PositionSizeMinPct.GreaterThan(p.PositionSizeMaxPct) {
		return fmt.Errorf("position_size_min_pct %s exceeds position_size_max_pct %s",
			p.PositionSizeMinPct, p.PositionSizeMaxPct)
	}
	if p.StopLossPct.LessThanOrEqual(decimal.Zero) || p.StopLossPct.GreaterThan(hundred) {
		return fmt.Errorf("stop_loss_pct must be in (0, 100], got %s", p.StopLossPct)
	}
	if p.DailyLossLimitPct.LessThanOrEqual(decimal.Zero) || p.DailyLossLimitPct.GreaterThan(hundred) {
		return fmt.Errorf("daily_loss_limit_pct must be in (0, 100], got %s", p.DailyLossLimitPct)
	}
	if p.VolatilityThresholdPct.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("volatility_threshold_pct must be positive, got %s", p.VolatilityThresholdPct)
	}
	if p.MinConfidence.IsNegative() || p.MinConfidence.GreaterThan(one) {
		return fmt.Errorf("min_confidence must be in [0, 1], got %s", p.MinConfidence)
	}
	if p.OrderMaxKRW.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("order_max_krw must be positive, got %s", p.OrderMaxKRW)
	}
	return nil
}
