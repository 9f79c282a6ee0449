package bot

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// ============================================================
// Риск-оценщик
// ============================================================
//
// Evaluate - чистая функция без побочных эффектов: никакой БД, никаких
// запросов к бирже, никакого глобального состояния. Всё, что нужно для
// решения, приходит аргументами; всё, что нужно записать, возвращается
// в вердикте. Персист риск-событий и остановки торговли - забота
// вызывающего (исполнителя).
//
// Проверки выполняются по порядку, первый отказ выигрывает:
//  1. флаг остановки торговли;
//  2. дневной лимит убытка (отказ требует остановки торговли);
//  3. размер ордера относительно капитала и абсолютный максимум;
//  4. продажа ниже стоп-лосса - информационное событие, НЕ отказ:
//     продажа и есть действие стоп-лосса;
//  5. волатильность выше порога - отказ только для покупок,
//     продажи сокращают риск и не блокируются никогда.

// Intent - намерение совершить сделку, вход риск-оценщика.
type Intent struct {
	Market string
	Side   string          // BUY, SELL
	Amount decimal.Decimal // KRW для market BUY, объём базовой валюты для SELL
	Price  decimal.Decimal // текущая цена рынка
}

// Notional возвращает стоимость намерения в KRW.
func (i Intent) Notional() decimal.Decimal {
	if i.Side == models.SideBuy {
		return i.Amount
	}
	return i.Amount.Mul(i.Price)
}

// RiskSnapshot - состояние счёта на момент оценки.
// Читается из БД после последнего закоммиченного применения ордера,
// устаревших данных оценщик не видит.
type RiskSnapshot struct {
	Day           models.DailyStats // агрегат текущего торгового дня (UTC)
	Equity        decimal.Decimal   // полный капитал: KRW + стоимость позиций
	PositionQty   decimal.Decimal   // объём позиции рынка намерения
	PositionAvg   decimal.Decimal   // средняя цена покупки позиции
	VolatilityPct decimal.Decimal   // размах окна цен в процентах
}

// EventDraft - намётка риск-события. Оценщик возвращает данные,
// исполнитель превращает их в строки risk_events с привязкой к ордеру.
type EventDraft struct {
	EventType    string
	TriggerValue decimal.Decimal // сравнивавшееся значение
	Threshold    decimal.Decimal // настроенный порог
	Message      string
}

// Verdict - результат оценки намерения.
type Verdict struct {
	Allowed       bool
	DenyReason    string // тип риск-события при отказе
	HaltRequested bool   // вызывающий обязан остановить торговлю дня
	Events        []EventDraft
}

// DenyMessage возвращает читаемое объяснение отказа.
func (v Verdict) DenyMessage() string {
	for _, ev := range v.Events {
		if ev.EventType == v.DenyReason {
			return ev.Message
		}
	}
	return v.DenyReason
}

func allow(events []EventDraft) Verdict {
	return Verdict{Allowed: true, Events: events}
}

func deny(events []EventDraft, draft EventDraft) Verdict {
	return Verdict{
		Allowed:    false,
		DenyReason: draft.EventType,
		Events:     append(events, draft),
	}
}

// Evaluate оценивает намерение против параметров риска.
func Evaluate(intent Intent, snap RiskSnapshot, p models.RiskParams) Verdict {
	var events []EventDraft
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	// 1. Торговля остановлена
	if snap.Day.IsTradingHalted {
		reason := snap.Day.HaltReason
		if reason == "" {
			reason = "unknown"
		}
		return deny(events, EventDraft{
			EventType:    models.RiskEventTradingHalted,
			TriggerValue: one,
			Threshold:    one,
			Message:      fmt.Sprintf("trading halted (%s), order rejected", reason),
		})
	}

	// 2. Дневной лимит убытка
	if snap.Day.LossLimitBreached(p.DailyLossLimitPct) {
		limit := snap.Day.LossLimit(p.DailyLossLimitPct)
		v := deny(events, EventDraft{
			EventType:    models.RiskEventDailyLimit,
			TriggerValue: snap.Day.RealizedPnl,
			Threshold:    limit.Neg(),
			Message: fmt.Sprintf("daily realized pnl %s breached loss limit %s",
				snap.Day.RealizedPnl, limit.Neg()),
		})
		v.HaltRequested = true
		return v
	}

	// 3. Размер ордера
	notional := intent.Notional()
	if notional.GreaterThan(p.OrderMaxKRW) {
		return deny(events, EventDraft{
			EventType:    models.RiskEventPositionLimit,
			TriggerValue: notional,
			Threshold:    p.OrderMaxKRW,
			Message:      fmt.Sprintf("order notional %s KRW exceeds maximum %s KRW", notional, p.OrderMaxKRW),
		})
	}
	if !snap.Equity.IsPositive() {
		return deny(events, EventDraft{
			EventType:    models.RiskEventPositionLimit,
			TriggerValue: decimal.Zero,
			Threshold:    p.PositionSizeMinPct,
			Message:      "account equity is zero, cannot size order",
		})
	}
	ratio := notional.Div(snap.Equity).Mul(hundred)
	if ratio.LessThan(p.PositionSizeMinPct) || ratio.GreaterThan(p.PositionSizeMaxPct) {
		return deny(events, EventDraft{
			EventType:    models.RiskEventPositionLimit,
			TriggerValue: ratio,
			Threshold:    p.PositionSizeMaxPct,
			Message: fmt.Sprintf("order size %s%% of equity outside [%s%%, %s%%]",
				ratio.Round(2), p.PositionSizeMinPct, p.PositionSizeMaxPct),
		})
	}

	// 4. Продажа ниже стоп-лосса: информационное событие, продажа разрешена
	if intent.Side == models.SideSell && snap.PositionAvg.IsPositive() && intent.Price.IsPositive() {
		floor := snap.PositionAvg.Mul(one.Sub(p.StopLossPct.Div(hundred)))
		if intent.Price.LessThan(floor) {
			events = append(events, EventDraft{
				EventType:    models.RiskEventStopLoss,
				TriggerValue: intent.Price,
				Threshold:    floor,
				Message: fmt.Sprintf("sell at %s below stop-loss floor %s (avg %s, stop %s%%)",
					intent.Price, floor.Round(2), snap.PositionAvg, p.StopLossPct),
			})
		}
	}

	// 5. Волатильность: блокирует только покупки
	if intent.Side == models.SideBuy && snap.VolatilityPct.GreaterThan(p.VolatilityThresholdPct) {
		return deny(events, EventDraft{
			EventType:    models.RiskEventVolatilityHalt,
			TriggerValue: snap.VolatilityPct,
			Threshold:    p.VolatilityThresholdPct,
			Message: fmt.Sprintf("volatility %s%% above threshold %s%%, buys suspended",
				snap.VolatilityPct.Round(2), p.VolatilityThresholdPct),
		})
	}

	return allow(events)
}
