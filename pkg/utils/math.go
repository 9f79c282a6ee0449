package utils

import (
	"github.com/shopspring/decimal"
)

// math.go - математика торговых расчётов
//
// Назначение:
// Чистые функции для денежных вычислений. Все суммы, цены и объёмы
// считаются в decimal: повторяющиеся обновления средневзвешенной цены
// на float64 накапливают дрейф округления.
//
// Функции:
// - RoundDownToStep: округление объёма вниз до шага биржи
// - CalculateRangePct: размах цен в процентах (волатильность окна)
// - ChangePct: относительное изменение в процентах
// - PercentOf: доля от суммы
// - WeightedAverage: средневзвешенное значение
// - ClampDecimal: ограничение значения диапазоном

// RoundDownToStep округляет значение ВНИЗ до ближайшего кратного step.
//
// Используется для округления объёма ордера до минимального шага биржи.
// Округление вниз гарантирует, что доступные средства не будут превышены.
// При step <= 0 значение возвращается без изменений.
//
// Примеры:
//   - RoundDownToStep(0.123456789, 0.00000001) = 0.12345678
//   - RoundDownToStep(1.999, 0.01) = 1.99
func RoundDownToStep(value, step decimal.Decimal) decimal.Decimal {
	if step.LessThanOrEqual(decimal.Zero) {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// CalculateRangePct возвращает размах диапазона цен в процентах
// относительно нижней границы:
//
//	((high - low) / low) × 100
//
// Используется как мера волатильности ценового окна.
// При low <= 0 возвращает 0.
func CalculateRangePct(high, low decimal.Decimal) decimal.Decimal {
	if low.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return high.Sub(low).Div(low).Mul(decimal.NewFromInt(100))
}

// ChangePct возвращает относительное изменение от from к to в процентах.
// Положительное значение - рост. При from <= 0 возвращает 0.
func ChangePct(from, to decimal.Decimal) decimal.Decimal {
	if from.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100))
}

// PercentOf возвращает pct процентов от value: value × pct / 100.
// Используется при расчёте размера позиции от капитала.
func PercentOf(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(pct).Div(decimal.NewFromInt(100))
}

// WeightedAverage вычисляет средневзвешенное значение:
//
//	Σ(value_i × weight_i) / Σ(weight_i)
//
// Используется для расчёта средней цены исполнения по списку сделок
// ордера. Отрицательные веса пропускаются. Возвращает 0 при пустых
// или несогласованных входных данных.
func WeightedAverage(values, weights []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 || len(values) != len(weights) {
		return decimal.Zero
	}

	sumWeighted := decimal.Zero
	sumWeights := decimal.Zero
	for i := range values {
		if weights[i].IsNegative() {
			continue
		}
		sumWeighted = sumWeighted.Add(values[i].Mul(weights[i]))
		sumWeights = sumWeights.Add(weights[i])
	}

	if sumWeights.IsZero() {
		return decimal.Zero
	}
	return sumWeighted.Div(sumWeights)
}

// ClampDecimal ограничивает значение диапазоном [min, max].
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}
