package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
)

// Execution - терминальный исход ордера по данным биржи.
type Execution struct {
	Status string          // FILLED, CANCELLED, FAILED
	Price  decimal.Decimal // средняя цена исполнения
	Volume decimal.Decimal // исполненный объём базовой валюты
	Fee    decimal.Decimal // комиссия в KRW
	Error  string          // текст ошибки для FAILED
}

// ApplyResult - итог применения ордера к позиции и статистике дня.
type ApplyResult struct {
	Order          *models.Order
	AlreadyApplied bool
	RealizedPnl    decimal.Decimal
	Position       *models.Position
	Stats          *models.DailyStats
	HaltTriggered  bool
}

// Ledger применяет терминальные ордера к позиции и дневной статистике.
//
// Единственная точка изменения positions и daily_stats. Всё происходит
// в одной транзакции с блокировками строк в фиксированном порядке
// orders -> positions -> daily_stats; конкурирующий участник (исполнитель
// против свипа) блокируется, видит applied_at и выходит без работы.
type Ledger struct {
	db        *sql.DB
	orders    *repository.OrderRepository
	positions *repository.PositionRepository
	stats     *repository.StatsRepository
	events    *repository.RiskEventRepository
	params    *repository.RiskParamsRepository
	notifier  Notifier
	logger    *zap.Logger
}

// NewLedger создаёт апдейтер позиции.
func NewLedger(
	db *sql.DB,
	orders *repository.OrderRepository,
	positions *repository.PositionRepository,
	stats *repository.StatsRepository,
	events *repository.RiskEventRepository,
	params *repository.RiskParamsRepository,
	notifier Notifier,
	logger *zap.Logger,
) *Ledger {
	return &Ledger{
		db:        db,
		orders:    orders,
		positions: positions,
		stats:     stats,
		events:    events,
		params:    params,
		notifier:  notifier,
		logger:    logger.Named("ledger"),
	}
}

// Apply переводит ордер в терминальный статус и применяет его эффект
// к позиции и статистике дня одной транзакцией.
//
// Повторный вызов для уже применённого ордера - штатный no-op
// (AlreadyApplied=true): гонка исполнителя и свипа коммутативна.
// Нарушение инварианта откатывает транзакцию целиком; SYSTEM_ERROR
// риск-событие, лог и критическое уведомление пишутся после отката.
func (l *Ledger) Apply(ctx context.Context, orderID int64, exec Execution) (*ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	riskParams, err := l.params.Get()
	if err != nil {
		return nil, fmt.Errorf("load risk params: %w", err)
	}

	result := &ApplyResult{}
	var lockedOrder *models.Order

	err = repository.WithinTx(l.db, func(tx *sql.Tx) error {
		order, err := l.orders.GetForUpdateTx(tx, orderID)
		if err != nil {
			return err
		}
		lockedOrder = order

		if order.Applied() {
			result.Order = order
			result.AlreadyApplied = true
			return nil
		}

		if !CanTransition(order.Status, exec.Status) {
			return NewInvariantViolation(RuleBadTransition,
				"order %d cannot transition %s -> %s", order.ID, order.Status, exec.Status)
		}

		now := time.Now()
		order.Status = exec.Status
		order.ExecutedPrice = exec.Price
		order.ExecutedAmount = exec.Volume
		order.Fee = exec.Fee
		order.ErrorMessage = exec.Error
		order.AppliedAt = &now
		if exec.Status == models.OrderStatusFilled {
			order.ExecutedAt = &now
		}

		switch exec.Status {
		case models.OrderStatusFilled:
			if err := l.applyFill(tx, order, riskParams.DailyLossLimitPct, result); err != nil {
				return err
			}
		case models.OrderStatusCancelled:
			// Отмена позицию не меняет; частичное исполнение остаётся
			// на строке ордера и попадает в аудит предупреждением
			if exec.Volume.IsPositive() {
				l.logger.Warn("cancelled order carries partial execution, position not adjusted",
					zap.Int64("order_id", order.ID),
					zap.String("market", order.Market),
					zap.String("executed_volume", exec.Volume.String()))
			}
		}

		if err := l.orders.MarkAppliedTx(tx, order); err != nil {
			return err
		}

		result.Order = order
		return nil
	})

	if err != nil {
		var violation *InvariantViolation
		if errors.As(err, &violation) {
			RecordLedgerApply("violation")
			l.reportViolation(lockedOrder, violation)
			return nil, err
		}
		RecordLedgerApply("error")
		return nil, err
	}

	if result.AlreadyApplied {
		RecordLedgerApply("skipped")
		l.logger.Debug("order already applied, skipping",
			zap.Int64("order_id", orderID),
			zap.String("status", result.Order.Status))
		return result, nil
	}

	RecordLedgerApply("applied")
	l.afterCommit(result)
	return result, nil
}

// applyFill применяет исполненный ордер внутри транзакции.
func (l *Ledger) applyFill(tx *sql.Tx, order *models.Order, limitPct decimal.Decimal, result *ApplyResult) error {
	position, err := l.positions.GetOrCreateForUpdateTx(tx, order.Market)
	if err != nil {
		return err
	}

	var realized decimal.Decimal

	switch order.Side {
	case models.SideBuy:
		// Средневзвешенная цена покупки
		newQty := position.Quantity.Add(order.ExecutedAmount)
		if newQty.IsPositive() {
			weighted := position.Quantity.Mul(position.AvgBuyPrice).
				Add(order.ExecutedAmount.Mul(order.ExecutedPrice))
			position.AvgBuyPrice = weighted.Div(newQty)
		} else {
			position.AvgBuyPrice = decimal.Zero
		}
		position.Quantity = newQty

	case models.SideSell:
		if order.ExecutedAmount.GreaterThan(position.Quantity) {
			return NewInvariantViolation(RuleSellExceedsPosition,
				"order %d sells %s %s but position holds %s",
				order.ID, order.ExecutedAmount, order.Market, position.Quantity)
		}

		// PnL атрибутируется к средней цене на момент отправки ордера:
		// живая средняя цена могла бы измениться тем же применением
		avgCost := position.AvgBuyPrice
		if order.AvgCostAtOrder.Valid {
			avgCost = order.AvgCostAtOrder.Decimal
		}

		realized = order.ExecutedAmount.Mul(order.ExecutedPrice.Sub(avgCost)).Sub(order.Fee)
		position.Quantity = position.Quantity.Sub(order.ExecutedAmount)

		// Продажа среднюю цену не меняет; пустая позиция сбрасывает её
		if position.Quantity.IsZero() {
			position.AvgBuyPrice = decimal.Zero
		}

	default:
		return fmt.Errorf("order %d has unknown side %q", order.ID, order.Side)
	}

	if err := l.positions.UpdateTx(tx, position); err != nil {
		return err
	}

	stats, err := l.stats.GetOrCreateForUpdateTx(tx, time.Now().UTC())
	if err != nil {
		return err
	}

	stats.TradeCount++
	if order.Side == models.SideSell {
		stats.RealizedPnl = stats.RealizedPnl.Add(realized)
		stats.EndingBalance = stats.EndingBalance.Add(realized)
		switch {
		case realized.IsPositive():
			stats.WinCount++
		case realized.IsNegative():
			stats.LossCount++
		}
	}

	// Пробитый дневной лимит останавливает торговлю в той же транзакции:
	// следующая оценка риска гарантированно видит флаг
	if !stats.IsTradingHalted && stats.LossLimitBreached(limitPct) {
		stats.IsTradingHalted = true
		stats.HaltReason = models.HaltReasonDailyLimit
		result.HaltTriggered = true

		event := &models.RiskEvent{
			EventType:    models.RiskEventDailyLimit,
			Market:       order.Market,
			TriggerValue: stats.RealizedPnl,
			Threshold:    stats.LossLimit(limitPct).Neg(),
			Message: fmt.Sprintf("daily realized pnl %s breached loss limit %s, trading halted",
				stats.RealizedPnl, stats.LossLimit(limitPct).Neg()),
			OrderID: &order.ID,
		}
		if err := l.events.CreateTx(tx, event); err != nil {
			return err
		}
	}

	if err := l.stats.UpdateTx(tx, stats); err != nil {
		return err
	}

	result.RealizedPnl = realized
	result.Position = position
	result.Stats = stats
	return nil
}

// afterCommit обновляет метрики и рассылает уведомления после коммита.
func (l *Ledger) afterCommit(result *ApplyResult) {
	if result.Position != nil {
		qty, _ := result.Position.Quantity.Float64()
		PositionQuantity.WithLabelValues(result.Position.Market).Set(qty)
	}
	if result.Stats != nil {
		pnl, _ := result.Stats.RealizedPnl.Float64()
		DailyRealizedPnl.Set(pnl)
	}

	if !result.HaltTriggered {
		return
	}

	UpdateHaltState(true)
	l.logger.Warn("daily loss limit breached, trading halted",
		zap.Int64("order_id", result.Order.ID),
		zap.String("realized_pnl", result.Stats.RealizedPnl.String()))

	if l.notifier != nil {
		l.notifier.Notify(&models.Notification{
			Type:     models.NotifyDailyLimit,
			Severity: models.SeverityCritical,
			Title:    "Trading halted: daily loss limit",
			Message: fmt.Sprintf("Realized pnl %s KRW breached the daily loss limit, new orders are rejected until reset",
				result.Stats.RealizedPnl),
			Metadata: map[string]string{
				"order_id":     strconv.FormatInt(result.Order.ID, 10),
				"realized_pnl": result.Stats.RealizedPnl.String(),
			},
		})
	}
}

// reportViolation пишет SYSTEM_ERROR риск-событие, лог error-уровня
// и критическое уведомление после отката транзакции.
func (l *Ledger) reportViolation(order *models.Order, violation *InvariantViolation) {
	if order == nil {
		l.logger.Error("ledger invariant violation", zap.Error(violation))
		return
	}

	l.logger.Error("ledger invariant violation, transaction rolled back",
		zap.Int64("order_id", order.ID),
		zap.String("market", order.Market),
		zap.String("rule", violation.Rule),
		zap.String("detail", violation.Message))

	RecordInvariantViolation(violation.Rule)

	event := &models.RiskEvent{
		EventType:    models.RiskEventSystemError,
		Market:       order.Market,
		TriggerValue: order.ExecutedAmount,
		Threshold:    decimal.Zero,
		Message:      violation.Error(),
		OrderID:      &order.ID,
	}
	if err := l.events.Create(event); err != nil {
		l.logger.Error("failed to record SYSTEM_ERROR risk event", zap.Error(err))
	}

	if l.notifier != nil {
		l.notifier.Notify(&models.Notification{
			Type:     models.NotifySystemError,
			Severity: models.SeverityCritical,
			Title:    "Ledger invariant violation",
			Message:  violation.Error(),
			Metadata: map[string]string{
				"order_id": strconv.FormatInt(order.ID, 10),
				"market":   order.Market,
				"rule":     violation.Rule,
			},
		})
	}
}
