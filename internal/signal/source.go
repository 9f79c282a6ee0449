// Package signal получает торговые рекомендации от языковой модели.
// Для конвейера исполнения источник - чёрный ящик: на входе срез рынка,
// на выходе типизированный сигнал BUY/HOLD/SELL с уверенностью.
package signal

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// Source - источник торговых сигналов
type Source interface {
	Generate(ctx context.Context, snap MarketSnapshot) (*models.Signal, error)
}

// MarketSnapshot - срез рынка, передаваемый модели.
// Содержит только факты: котировку, окно волатильности, позицию и баланс.
type MarketSnapshot struct {
	Market     string          `json:"market"`
	TradePrice decimal.Decimal `json:"trade_price"`
	HighPrice  decimal.Decimal `json:"high_24h"`
	LowPrice   decimal.Decimal `json:"low_24h"`
	ChangeRate decimal.Decimal `json:"change_rate_24h"`
	Volume24h  decimal.Decimal `json:"volume_24h"`
	RangePct   decimal.Decimal `json:"volatility_range_pct"`

	// Текущая позиция; nil когда позиции нет
	Position *PositionBrief `json:"position,omitempty"`

	KRWBalance decimal.Decimal `json:"krw_balance"`
}

// PositionBrief - сводка открытой позиции для контекста модели
type PositionBrief struct {
	Quantity decimal.Decimal `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avg_cost"`
	PnlPct   decimal.Decimal `json:"pnl_pct"`
}
