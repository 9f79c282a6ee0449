package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/config"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/exchange"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/retry"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/utils"
)

// ExecuteRequest - запрос на исполнение рыночной сделки.
type ExecuteRequest struct {
	Market  string
	Side    string          // BUY, SELL
	Amount  decimal.Decimal // KRW для BUY, объём базовой валюты для SELL
	Trigger models.OrderTrigger
}

// Executor - исполнитель ордеров.
//
// Конвейер одного ордера: валидация -> оценка риска -> строка PENDING ->
// отправка на биржу с повторами -> опрос до терминального статуса ->
// атомарное применение к позиции. Отказы валидации и риск-контроля
// являются штатными исходами: вызывающий всегда получает строку ордера
// с читаемым error_message. Ошибка возвращается только при отказе
// инфраструктуры (недоступна БД), не при торговых исходах.
type Executor struct {
	cfg      config.EngineConfig
	gateway  exchange.Gateway
	repos    *Repositories
	ledger   *Ledger
	window   *PriceWindow
	notifier Notifier
	hub      Broadcaster
	logger   *zap.Logger
}

// NewExecutor создаёт исполнитель ордеров.
func NewExecutor(
	cfg config.EngineConfig,
	gateway exchange.Gateway,
	repos *Repositories,
	ledger *Ledger,
	window *PriceWindow,
	notifier Notifier,
	hub Broadcaster,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		cfg:      cfg,
		gateway:  gateway,
		repos:    repos,
		ledger:   ledger,
		window:   window,
		notifier: notifier,
		hub:      hub,
		logger:   logger.Named("executor"),
	}
}

// Execute проводит запрос через весь конвейер исполнения.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*models.Order, error) {
	logger := e.logger.With(utils.Market(req.Market), utils.Side(req.Side))

	if verr := validateRequest(req); verr != nil {
		logger.Warn("order request malformed", zap.Error(verr))
		return e.createFailed(req, verr.Error())
	}

	// Текущая цена рынка: окно коллектора, при пустом окне - тикер биржи
	price, err := e.currentPrice(ctx, req.Market)
	if err != nil {
		logger.Warn("market price unavailable", zap.Error(err))
		return e.createFailed(req, fmt.Sprintf("market price unavailable: %v", err))
	}

	balances, err := e.gateway.GetBalances(ctx)
	if err != nil {
		logger.Warn("balance check failed", zap.Error(err))
		return e.createFailed(req, fmt.Sprintf("balance check failed: %v", err))
	}

	// Достаточность баланса до оценки риска; отказ без риск-события
	if verr := checkBalance(req, balances); verr != nil {
		logger.Warn("insufficient balance", zap.Error(verr))
		return e.createFailed(req, verr.Error())
	}

	position, err := e.positionFor(req.Market)
	if err != nil {
		return nil, err
	}

	equity := accountEquity(balances, e.window)

	day, err := e.ensureTradingDay(equity)
	if err != nil {
		return nil, err
	}

	riskParams, err := e.repos.RiskParams.Get()
	if err != nil {
		return nil, fmt.Errorf("load risk params: %w", err)
	}

	intent := Intent{Market: req.Market, Side: req.Side, Amount: req.Amount, Price: price}
	snap := RiskSnapshot{
		Day:           *day,
		Equity:        equity,
		PositionQty:   position.Quantity,
		PositionAvg:   position.AvgBuyPrice,
		VolatilityPct: e.window.RangePct(req.Market),
	}

	verdict := Evaluate(intent, snap, *riskParams)
	if !verdict.Allowed {
		return e.deny(req, verdict, logger)
	}

	order := e.newOrder(req)
	if req.Side == models.SideSell && position.Quantity.IsPositive() {
		// Средняя цена фиксируется до исполнения: живая позиция будет
		// изменена тем же филлом, а PnL атрибутируется к этой цене
		order.AvgCostAtOrder = decimal.NewNullDecimal(position.AvgBuyPrice)
	}
	if err := e.repos.Orders.Create(order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// Информационные события (продажа ниже стоп-лосса) при разрешённом ордере
	e.persistEvents(verdict.Events, &order.ID, req.Market)
	for _, ev := range verdict.Events {
		if ev.EventType == models.RiskEventStopLoss {
			e.notify(models.NotifyRiskEvent, models.SeverityInfo, "Stop-loss sell", ev.Message, order)
		}
	}

	logger.Info("order created",
		utils.OrderID(order.ID),
		utils.Amount(req.Amount),
		utils.Price(price),
		zap.String("idempotency_key", order.IdempotencyKey))

	ack, err := e.place(ctx, order)
	if err != nil {
		// Повторы исчерпаны либо фатальный отказ биржи: FAILED с текстом
		// последней ошибки, без изменений позиции
		logger.Warn("order submission failed", utils.OrderID(order.ID), zap.Error(err))
		result, applyErr := e.ledger.Apply(ctx, order.ID, Execution{
			Status: models.OrderStatusFailed,
			Error:  err.Error(),
		})
		if applyErr != nil {
			return order, applyErr
		}
		e.afterTerminal(result)
		return result.Order, nil
	}

	if err := e.repos.Orders.SetSubmitted(order.ID, ack.UUID); err != nil {
		if !errors.Is(err, repository.ErrAlreadySubmitted) {
			return order, fmt.Errorf("record submission: %w", err)
		}
		logger.Warn("exchange order id already recorded", utils.OrderID(order.ID))
	}
	order.Status = models.OrderStatusSubmitted
	order.ExchangeOrderID = ack.UUID

	logger.Info("order submitted",
		utils.OrderID(order.ID),
		utils.ExchangeOrderID(ack.UUID))
	e.broadcastOrder(order)

	return e.awaitFill(ctx, order)
}

// deny оформляет отказ риск-контроля: FAILED-ордер, риск-события,
// остановка торговли если затребована, уведомление.
func (e *Executor) deny(req ExecuteRequest, verdict Verdict, logger *zap.Logger) (*models.Order, error) {
	RecordRiskDenial(verdict.DenyReason)
	logger.Warn("order denied by risk control",
		zap.String("reason", verdict.DenyReason),
		zap.String("detail", verdict.DenyMessage()))

	order, err := e.createFailed(req, verdict.DenyMessage())
	if err != nil {
		return nil, err
	}

	e.persistEvents(verdict.Events, &order.ID, req.Market)

	if verdict.HaltRequested {
		e.haltTrading(order)
	}

	e.notify(models.NotifyOrderDenied, models.SeverityWarning, "Order denied", verdict.DenyMessage(), order)
	return order, nil
}

// place отправляет ордер на биржу с ограниченными повторами.
// Повторяются только ошибки с Retryable()==true (сеть, таймаут, 429,
// 5xx); ключ идемпотентности не даёт повтору продублировать сделку.
func (e *Executor) place(ctx context.Context, order *models.Order) (*exchange.OrderAck, error) {
	req := &exchange.OrderRequest{
		Market:         order.Market,
		OrdType:        exchange.OrdTypeMarket,
		IdempotencyKey: order.IdempotencyKey,
	}
	if order.Side == models.SideBuy {
		req.Side = exchange.SideBuy
		req.Price = order.RequestedAmount // market BUY: сумма в KRW
	} else {
		req.Side = exchange.SideSell
		req.Volume = order.RequestedAmount // market SELL: объём базовой валюты
	}

	cfg := retry.SubmitConfig()
	cfg.MaxAttempts = e.cfg.SubmitMaxAttempts
	cfg.InitialDelay = e.cfg.SubmitRetryBase
	cfg.RetryIf = retry.IsRetryable
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		OrderRetriesTotal.Inc()
		e.logger.Warn("order submission retry",
			utils.OrderID(order.ID),
			utils.Attempt(attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	started := time.Now()
	ack, err := retry.DoWithResult(ctx, func() (*exchange.OrderAck, error) {
		return e.gateway.PlaceOrder(ctx, req)
	}, cfg)
	GatewayRequestLatency.WithLabelValues("place_order").Observe(time.Since(started).Seconds())
	return ack, err
}

// awaitFill опрашивает биржу до терминального статуса ордера.
// Исчерпание попыток при wait|watch не ошибка: ордер остаётся SUBMITTED
// и переходит под надзор свипа. Локальный таймаут никогда не отменяет
// ордер на бирже.
func (e *Executor) awaitFill(ctx context.Context, order *models.Order) (*models.Order, error) {
	logger := e.logger.With(utils.OrderID(order.ID), utils.ExchangeOrderID(order.ExchangeOrderID))

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= e.cfg.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			logger.Info("fill await interrupted, sweep will reconcile", zap.Error(ctx.Err()))
			return order, nil
		case <-ticker.C:
		}

		st, err := e.gateway.GetOrder(ctx, order.ExchangeOrderID)
		if err != nil {
			// Ошибка опроса съедает попытку; в худшем случае ордером
			// займётся свип
			logger.Warn("order poll failed", utils.Attempt(attempt), zap.Error(err))
			continue
		}

		if !exchange.IsTerminalState(st.State) {
			continue
		}

		result, err := e.Finalize(ctx, order.ID, st)
		if err != nil {
			return order, err
		}
		return result.Order, nil
	}

	logger.Info("fill await exhausted, order stays SUBMITTED for sweep",
		zap.Int("attempts", e.cfg.PollMaxAttempts))
	return order, nil
}

// Finalize переводит ордер в терминальный статус по данным биржи и
// применяет его к позиции. Общий путь исполнителя и свипа: защита
// applied_at делает их гонку безопасной.
func (e *Executor) Finalize(ctx context.Context, orderID int64, st *exchange.OrderStatus) (*ApplyResult, error) {
	exec := Execution{
		Price:  st.AvgPrice,
		Volume: st.ExecutedVolume,
		Fee:    st.PaidFee,
	}
	switch st.State {
	case exchange.StateDone:
		exec.Status = models.OrderStatusFilled
	case exchange.StateCancel:
		exec.Status = models.OrderStatusCancelled
	default:
		return nil, fmt.Errorf("order %d: exchange state %q is not terminal", orderID, st.State)
	}

	result, err := e.ledger.Apply(ctx, orderID, exec)
	if err != nil {
		return nil, err
	}
	if !result.AlreadyApplied {
		e.afterTerminal(result)
	}
	return result, nil
}

// RequestCancel запрашивает отмену SUBMITTED ордера на бирже.
// Локальный статус не меняется: терминальный исход (cancel либо done,
// если ордер успел исполниться) зафиксирует опрос свипа. Отмена
// терминального или ещё не отправленного ордера - ErrNotCancellable.
func (e *Executor) RequestCancel(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := e.repos.Orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusSubmitted || order.ExchangeOrderID == "" {
		return nil, fmt.Errorf("order %d in status %s: %w", order.ID, order.Status, ErrNotCancellable)
	}

	ack, err := e.gateway.CancelOrder(ctx, order.ExchangeOrderID)
	if err != nil {
		return nil, fmt.Errorf("cancel order %d: %w", order.ID, err)
	}

	e.logger.Info("order cancel requested",
		utils.OrderID(order.ID),
		utils.ExchangeOrderID(order.ExchangeOrderID),
		zap.String("state", ack.State))
	return order, nil
}

// afterTerminal - метрики, уведомления и broadcast после коммита
// терминального перехода.
func (e *Executor) afterTerminal(result *ApplyResult) {
	order := result.Order
	latency := time.Since(order.CreatedAt).Seconds()
	RecordOrderOutcome(order.Market, order.Side, order.Status, latency)

	switch order.Status {
	case models.OrderStatusFilled:
		e.logger.Info("order filled",
			utils.OrderID(order.ID),
			utils.Market(order.Market),
			utils.Side(order.Side),
			utils.Price(order.ExecutedPrice),
			utils.Amount(order.ExecutedAmount),
			utils.PNL(result.RealizedPnl))
		e.notify(models.NotifyOrderFilled, models.SeverityInfo, "Order filled",
			fmt.Sprintf("%s %s %s at %s KRW, fee %s",
				order.Side, order.ExecutedAmount, order.Market, order.ExecutedPrice, order.Fee),
			order)

	case models.OrderStatusCancelled:
		e.logger.Info("order cancelled by exchange",
			utils.OrderID(order.ID), utils.Market(order.Market))
		e.notify(models.NotifyOrderFailed, models.SeverityWarning, "Order cancelled",
			fmt.Sprintf("%s %s order was cancelled by the exchange", order.Side, order.Market),
			order)

	case models.OrderStatusFailed:
		e.logger.Warn("order failed",
			utils.OrderID(order.ID),
			utils.Market(order.Market),
			zap.String("error", order.ErrorMessage))
		e.notify(models.NotifyOrderFailed, models.SeverityWarning, "Order failed",
			fmt.Sprintf("%s %s order failed: %s", order.Side, order.Market, order.ErrorMessage),
			order)
	}

	e.broadcastOrder(order)
	if e.hub != nil {
		if result.Position != nil {
			e.hub.BroadcastPositionUpdate(result.Position)
		}
		if result.Stats != nil {
			e.hub.BroadcastStatsUpdate(result.Stats)
		}
	}
}

// createFailed создаёт ордер сразу в терминальном статусе FAILED.
// Аудит отказов: каждый отклонённый запрос остаётся строкой с причиной.
func (e *Executor) createFailed(req ExecuteRequest, message string) (*models.Order, error) {
	order := e.newOrder(req)
	order.Status = models.OrderStatusFailed
	order.ErrorMessage = message

	if err := e.repos.Orders.Create(order); err != nil {
		return nil, fmt.Errorf("create failed order: %w", err)
	}

	RecordOrderOutcome(order.Market, order.Side, order.Status, 0)
	e.broadcastOrder(order)
	return order, nil
}

func (e *Executor) newOrder(req ExecuteRequest) *models.Order {
	return &models.Order{
		SignalID:        req.Trigger.SignalRef(),
		Market:          req.Market,
		Side:            req.Side,
		OrdType:         models.OrdTypeMarket,
		Status:          models.OrderStatusPending,
		RequestedAmount: req.Amount,
		IdempotencyKey:  uuid.NewString(),
	}
}

// positionFor возвращает позицию рынка; отсутствие строки - пустая позиция.
func (e *Executor) positionFor(market string) (*models.Position, error) {
	position, err := e.repos.Positions.GetByMarket(market)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			return &models.Position{Market: market}, nil
		}
		return nil, fmt.Errorf("load position: %w", err)
	}
	return position, nil
}

// ensureTradingDay идемпотентно открывает строку торгового дня
// и возвращает её. Стартовый баланс нового дня - текущий капитал.
func (e *Executor) ensureTradingDay(equity decimal.Decimal) (*models.DailyStats, error) {
	today := time.Now().UTC()
	if err := e.repos.Stats.EnsureForDate(today, equity); err != nil {
		return nil, fmt.Errorf("ensure trading day: %w", err)
	}
	day, err := e.repos.Stats.GetByDate(today)
	if err != nil {
		return nil, fmt.Errorf("load trading day: %w", err)
	}
	return day, nil
}

// accountEquity оценивает полный капитал счёта в KRW: свободные и
// заблокированные KRW плюс крипто-активы по последней известной цене
// (окно коллектора, иначе средняя цена покупки из данных Upbit).
func accountEquity(balances []exchange.Balance, window *PriceWindow) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		qty := b.Available.Add(b.Locked)
		if qty.IsZero() {
			continue
		}
		if b.Currency == "KRW" {
			total = total.Add(qty)
			continue
		}
		price := b.AvgBuyPrice
		if last, ok := window.LastPrice("KRW-" + b.Currency); ok {
			price = last
		}
		total = total.Add(qty.Mul(price))
	}
	return total
}

// currentPrice возвращает цену рынка: окно коллектора либо тикер биржи.
func (e *Executor) currentPrice(ctx context.Context, market string) (decimal.Decimal, error) {
	if price, ok := e.window.LastPrice(market); ok {
		return price, nil
	}

	started := time.Now()
	ticker, err := e.gateway.GetTicker(ctx, market)
	GatewayRequestLatency.WithLabelValues("get_ticker").Observe(time.Since(started).Seconds())
	if err != nil {
		return decimal.Zero, err
	}

	e.window.Observe(market, ticker.TradePrice, time.Now())
	return ticker.TradePrice, nil
}

// haltTrading останавливает торговлю дня по требованию риск-оценщика.
func (e *Executor) haltTrading(order *models.Order) {
	if err := e.repos.Stats.SetHalted(time.Now().UTC(), true, models.HaltReasonDailyLimit); err != nil {
		e.logger.Error("failed to persist trading halt", zap.Error(err))
		return
	}

	UpdateHaltState(true)
	e.logger.Warn("trading halted by risk evaluation", utils.OrderID(order.ID))
	e.notify(models.NotifyDailyLimit, models.SeverityCritical, "Trading halted: daily loss limit",
		"Daily loss limit breached, new orders are rejected until reset", order)
}

// persistEvents записывает риск-события с привязкой к ордеру.
// Сбой записи не валит конвейер: событие - аудит, не торговое состояние.
func (e *Executor) persistEvents(drafts []EventDraft, orderID *int64, market string) {
	for _, d := range drafts {
		event := &models.RiskEvent{
			EventType:    d.EventType,
			Market:       market,
			TriggerValue: d.TriggerValue,
			Threshold:    d.Threshold,
			Message:      d.Message,
			OrderID:      orderID,
		}
		if err := e.repos.RiskEvents.Create(event); err != nil {
			e.logger.Error("failed to record risk event",
				zap.String("event_type", d.EventType), zap.Error(err))
		}
	}
}

func (e *Executor) notify(ntype, severity, title, message string, order *models.Order) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(&models.Notification{
		Type:     ntype,
		Severity: severity,
		Title:    title,
		Message:  message,
		Metadata: map[string]string{
			"order_id": fmt.Sprintf("%d", order.ID),
			"market":   order.Market,
			"side":     order.Side,
		},
	})
}

func (e *Executor) broadcastOrder(order *models.Order) {
	if e.hub != nil {
		e.hub.BroadcastOrderUpdate(order)
	}
}

func validateRequest(req ExecuteRequest) *ValidationError {
	if err := utils.ValidateMarket(req.Market); err != nil {
		return NewValidationError(ReasonBadRequest, "%v", err)
	}
	if err := utils.ValidateSide(req.Side); err != nil {
		return NewValidationError(ReasonBadRequest, "%v", err)
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return NewValidationError(ReasonBadRequest, "%v", err)
	}
	return nil
}

// checkBalance проверяет достаточность средств для намерения:
// KRW для покупки, базовая валюта для продажи.
func checkBalance(req ExecuteRequest, balances []exchange.Balance) *ValidationError {
	quote, base := splitMarket(req.Market)

	if req.Side == models.SideBuy {
		have := balanceFor(balances, quote).Available
		if have.LessThan(req.Amount) {
			return NewValidationError(ReasonInsufficientBalance,
				"available %s %s, order requires %s", have, quote, req.Amount)
		}
		return nil
	}

	have := balanceFor(balances, base).Available
	if have.LessThan(req.Amount) {
		return NewValidationError(ReasonInsufficientBalance,
			"available %s %s, order requires %s", have, base, req.Amount)
	}
	return nil
}

func balanceFor(balances []exchange.Balance, currency string) exchange.Balance {
	for _, b := range balances {
		if b.Currency == currency {
			return b
		}
	}
	return exchange.Balance{Currency: currency}
}

func splitMarket(market string) (quote, base string) {
	parts := strings.SplitN(market, "-", 2)
	if len(parts) != 2 {
		return market, ""
	}
	return parts[0], parts[1]
}
