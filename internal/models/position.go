package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position представляет текущую позицию по рынку.
// Одна строка на рынок: создаётся при первой покупке, при полном выходе
// quantity возвращается в 0, строка не удаляется.
// Инвариант: quantity == 0 => avg_buy_price == 0.
type Position struct {
	ID          int64           `json:"id" db:"id"`
	Market      string          `json:"market" db:"market"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price" db:"avg_buy_price"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// IsFlat сообщает, пуста ли позиция.
func (p *Position) IsFlat() bool {
	return p.Quantity.IsZero()
}

// LossPct возвращает просадку позиции в процентах от средней цены покупки
// (положительное значение - убыток). Для пустой позиции возвращает 0.
func (p *Position) LossPct(currentPrice decimal.Decimal) decimal.Decimal {
	if p.Quantity.IsZero() || p.AvgBuyPrice.IsZero() {
		return decimal.Zero
	}
	return p.AvgBuyPrice.Sub(currentPrice).
		Div(p.AvgBuyPrice).
		Mul(decimal.NewFromInt(100))
}
