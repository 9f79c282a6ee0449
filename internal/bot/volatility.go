package bot

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/exchange"
)

// pricePoint - одно наблюдение цены
type pricePoint struct {
	price decimal.Decimal
	at    time.Time
}

// PriceWindow - скользящее окно цен по рынкам для расчёта волатильности.
//
// Наполняется коллектором (REST-опрос тикера и, если включён,
// WebSocket-поток) и читается риск-оценщиком: размах окна в процентах
// сравнивается с порогом волатильности. Точки старше окна вытесняются
// при каждой записи.
//
// Один mutex на все рынки: при секундном темпе обновлений и паре
// десятков рынков конкуренции нет.
type PriceWindow struct {
	mu     sync.RWMutex
	window time.Duration
	points map[string][]pricePoint
}

// NewPriceWindow создаёт окно цен заданной длительности.
func NewPriceWindow(window time.Duration) *PriceWindow {
	return &PriceWindow{
		window: window,
		points: make(map[string][]pricePoint),
	}
}

// Observe записывает наблюдение цены и вытесняет устаревшие точки.
func (w *PriceWindow) Observe(market string, price decimal.Decimal, at time.Time) {
	if price.LessThanOrEqual(decimal.Zero) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	pts := append(w.points[market], pricePoint{price: price, at: at})
	w.points[market] = w.prune(pts, at)
}

// Seed наполняет окно из минутных свечей при старте движка.
// Свечи приходят в хронологическом порядке; high и low каждой свечи
// дают окну реальный размах, а не только цены закрытия.
func (w *PriceWindow) Seed(market string, candles []exchange.Candle) {
	if len(candles) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	pts := make([]pricePoint, 0, len(candles)*2)
	for _, c := range candles {
		if c.LowPrice.IsPositive() {
			pts = append(pts, pricePoint{price: c.LowPrice, at: c.Timestamp})
		}
		if c.HighPrice.IsPositive() {
			pts = append(pts, pricePoint{price: c.HighPrice, at: c.Timestamp})
		}
	}

	last := candles[len(candles)-1].Timestamp
	w.points[market] = w.prune(pts, last)
}

// prune отбрасывает точки старше окна. Вызывается под mutex.
func (w *PriceWindow) prune(pts []pricePoint, now time.Time) []pricePoint {
	cutoff := now.Add(-w.window)
	firstValid := len(pts)
	for i, p := range pts {
		if !p.at.Before(cutoff) {
			firstValid = i
			break
		}
	}
	return pts[firstValid:]
}

// RangePct возвращает размах окна в процентах: (max-min)/min*100.
// Меньше двух точек - волатильность неизвестна, возвращается 0
// (отсутствие данных не должно блокировать торговлю).
func (w *PriceWindow) RangePct(market string) decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()

	pts := w.points[market]
	if len(pts) < 2 {
		return decimal.Zero
	}

	min, max := pts[0].price, pts[0].price
	for _, p := range pts[1:] {
		if p.price.LessThan(min) {
			min = p.price
		}
		if p.price.GreaterThan(max) {
			max = p.price
		}
	}

	if !min.IsPositive() {
		return decimal.Zero
	}
	return max.Sub(min).Div(min).Mul(decimal.NewFromInt(100))
}

// LastPrice возвращает последнюю наблюдавшуюся цену рынка.
func (w *PriceWindow) LastPrice(market string) (decimal.Decimal, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	pts := w.points[market]
	if len(pts) == 0 {
		return decimal.Zero, false
	}
	return pts[len(pts)-1].price, true
}

// PointCount возвращает число точек в окне рынка.
func (w *PriceWindow) PointCount(market string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.points[market])
}
