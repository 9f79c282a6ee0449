// Package bot содержит ядро торгового движка: оценку риска, исполнение
// ордеров, ведение позиций и статистики дня, фоновую сверку с биржей.
//
// Движок автономен. Поток сигналов и REST API лишь подают намерения,
// весь путь от намерения до применённого к позиции результата проходит
// внутри пакета и не зависит от внешних вызывающих.
package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/config"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/exchange"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/signal"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/utils"
)

// Минимальный ордер Upbit для KRW-рынков
const minOrderKRW = 5000

// Repositories - доступ движка к хранилищу.
type Repositories struct {
	Orders        *repository.OrderRepository
	Positions     *repository.PositionRepository
	Stats         *repository.StatsRepository
	RiskEvents    *repository.RiskEventRepository
	RiskParams    *repository.RiskParamsRepository
	Signals       *repository.SignalRepository
	Notifications *repository.NotificationRepository
}

// Notifier принимает уведомления движка. Реализация обязана не
// блокировать: конвейер исполнения шлёт уведомления в момент, когда
// результат уже зафиксирован, и ждать доставку не может.
type Notifier interface {
	Notify(n *models.Notification)
}

// Broadcaster рассылает живые обновления подписчикам WebSocket.
// nil допустим: движок работает и без активного хаба.
type Broadcaster interface {
	BroadcastOrderUpdate(order *models.Order)
	BroadcastPositionUpdate(position *models.Position)
	BroadcastStatsUpdate(stats *models.DailyStats)
	BroadcastTicker(ticker *exchange.Ticker)
}

// Engine - торговый движок.
//
// Владеет окном цен, исполнителем, леджером и сверкой; запускает
// периодические задачи сбора цен, генерации сигналов, сверки,
// обновления баланса и смены торгового дня.
type Engine struct {
	cfg      *config.Config
	gateway  exchange.Gateway
	source   signal.Source
	repos    *Repositories
	notifier Notifier
	hub      Broadcaster

	window   *PriceWindow
	ledger   *Ledger
	executor *Executor
	sweeper  *Sweeper

	stream *exchange.TickerStream
	tasks  []*Task

	running int32
	logger  *zap.Logger
}

// NewEngine собирает движок из готовых зависимостей.
// source и hub могут быть nil: без источника движок торгует только
// по ручным запросам, без хаба не рассылает живые обновления.
func NewEngine(
	cfg *config.Config,
	db *sql.DB,
	gateway exchange.Gateway,
	source signal.Source,
	repos *Repositories,
	notifier Notifier,
	hub Broadcaster,
	logger *zap.Logger,
) *Engine {
	log := logger.Named("engine")

	window := NewPriceWindow(cfg.Engine.VolatilityWindow)
	ledger := NewLedger(db, repos.Orders, repos.Positions,
		repos.Stats, repos.RiskEvents, repos.RiskParams, notifier, log)
	executor := NewExecutor(cfg.Engine, gateway, repos, ledger, window,
		notifier, hub, log)
	sweeper := NewSweeper(cfg.Engine, gateway, repos.Orders, executor, log)

	return &Engine{
		cfg:      cfg,
		gateway:  gateway,
		source:   source,
		repos:    repos,
		notifier: notifier,
		hub:      hub,
		window:   window,
		ledger:   ledger,
		executor: executor,
		sweeper:  sweeper,
		logger:   log,
	}
}

// Start запускает движок: сидирует параметры риска, открывает торговый
// день, прогревает окно волатильности, доводит ордера прошлого процесса
// и стартует периодические задачи.
func (e *Engine) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.running, 0, 1) {
		return fmt.Errorf("engine already running")
	}

	e.logger.Info("engine starting",
		zap.Strings("markets", e.cfg.Engine.Markets),
		zap.Bool("signal_source", e.source != nil),
		zap.Bool("ticker_stream", e.cfg.Engine.TickerStream))

	if err := e.seedRiskParams(); err != nil {
		atomic.StoreInt32(&e.running, 0)
		return err
	}

	// Торговый день должен существовать до первого ордера
	e.rollover(ctx)
	e.restoreHaltState()

	e.seedWindows(ctx)

	// Сверка до запуска задач: SUBMITTED-ордера, осиротевшие при
	// прошлом падении процесса, сходятся немедленно
	if resolved, err := e.sweeper.Sweep(ctx); err != nil {
		e.logger.Warn("boot reconciliation failed", zap.Error(err))
	} else if resolved > 0 {
		e.logger.Info("boot reconciliation resolved orphaned orders",
			zap.Int("resolved", resolved))
	}

	if e.cfg.Engine.TickerStream {
		e.startStream()
	}

	tasks := []*Task{
		NewTask("collect", e.cfg.Engine.CollectFreq, e.collect, e.logger),
		NewTask("sweep", e.cfg.Engine.SweepFreq, e.runSweep, e.logger),
		NewTask("balance", e.cfg.Engine.BalanceFreq, e.refreshBalance, e.logger),
		NewTask("rollover", e.cfg.Engine.RolloverFreq, e.rollover, e.logger),
	}
	if e.source != nil {
		tasks = append(tasks, NewTask("signal", e.cfg.Engine.SignalFreq, e.generateSignals, e.logger))
	}
	for _, t := range tasks {
		t.Start(ctx)
	}
	e.tasks = tasks

	e.notifyLifecycle(models.NotifyEngineStarted, "Trading engine started",
		fmt.Sprintf("Markets: %v", e.cfg.Engine.Markets))
	return nil
}

// Stop останавливает задачи и поток котировок. Блокируется до
// завершения текущих проходов задач.
func (e *Engine) Stop() {
	if !atomic.CompareAndSwapInt32(&e.running, 1, 0) {
		return
	}
	e.logger.Info("engine stopping")

	for i := len(e.tasks) - 1; i >= 0; i-- {
		e.tasks[i].Stop()
	}
	e.tasks = nil

	if e.stream != nil {
		if err := e.stream.Close(); err != nil {
			e.logger.Warn("ticker stream close failed", zap.Error(err))
		}
		e.stream = nil
	}

	e.notifyLifecycle(models.NotifyEngineStopped, "Trading engine stopped", "")
	e.logger.Info("engine stopped")
}

// IsRunning сообщает, запущен ли движок.
func (e *Engine) IsRunning() bool {
	return atomic.LoadInt32(&e.running) == 1
}

// ExecuteManual исполняет ордер, запрошенный оператором через API.
// Проходит тот же конвейер валидации, риска и исполнения, что и
// сигнальный: ручной запрос не обходит ни одну проверку.
func (e *Engine) ExecuteManual(ctx context.Context, market, side string, amount decimal.Decimal) (*models.Order, error) {
	return e.executor.Execute(ctx, ExecuteRequest{
		Market:  market,
		Side:    side,
		Amount:  amount,
		Trigger: models.ManualTrigger(),
	})
}

// RequestCancel запрашивает отмену SUBMITTED-ордера на бирже.
// Терминальный исход зафиксирует ближайший проход свипа.
func (e *Engine) RequestCancel(ctx context.Context, orderID int64) (*models.Order, error) {
	return e.executor.RequestCancel(ctx, orderID)
}

// Finalize доводит SUBMITTED-ордер до терминального статуса по данным
// биржи. Используется API-обработчиком ручной сверки.
func (e *Engine) Finalize(ctx context.Context, orderID int64, st *exchange.OrderStatus) (*ApplyResult, error) {
	return e.executor.Finalize(ctx, orderID, st)
}

// LastPrice возвращает последнюю наблюдавшуюся цену рынка.
func (e *Engine) LastPrice(market string) (decimal.Decimal, bool) {
	return e.window.LastPrice(market)
}

// VolatilityPct возвращает размах цен рынка в окне волатильности.
func (e *Engine) VolatilityPct(market string) decimal.Decimal {
	return e.window.RangePct(market)
}

// Markets возвращает список торгуемых рынков.
func (e *Engine) Markets() []string {
	return e.cfg.Engine.Markets
}

// ============================================================
// Запуск: подготовка состояния
// ============================================================

// seedRiskParams создаёт строку параметров риска из окружения.
// Существующая строка не трогается: правки через API переживают рестарт.
func (e *Engine) seedRiskParams() error {
	params := models.RiskParams{
		PositionSizeMinPct:     decimal.NewFromFloat(e.cfg.Risk.PositionSizeMinPct),
		PositionSizeMaxPct:     decimal.NewFromFloat(e.cfg.Risk.PositionSizeMaxPct),
		StopLossPct:            decimal.NewFromFloat(e.cfg.Risk.StopLossPct),
		DailyLossLimitPct:      decimal.NewFromFloat(e.cfg.Risk.DailyLossLimitPct),
		VolatilityThresholdPct: decimal.NewFromFloat(e.cfg.Risk.VolatilityThresholdPct),
		MinConfidence:          decimal.NewFromFloat(e.cfg.Risk.MinConfidence),
		OrderMaxKRW:            decimal.NewFromFloat(e.cfg.Risk.OrderMaxKRW),
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("risk config invalid: %w", err)
	}
	if err := e.repos.RiskParams.Seed(params); err != nil {
		return fmt.Errorf("seed risk params: %w", err)
	}
	return nil
}

// seedWindows прогревает окно волатильности минутными свечами, чтобы
// первый же ордер оценивался по полному окну, а не по пустому.
func (e *Engine) seedWindows(ctx context.Context) {
	count := int(e.cfg.Engine.VolatilityWindow.Minutes())
	if count < 1 {
		count = 1
	}
	for _, market := range e.cfg.Engine.Markets {
		candles, err := e.gateway.GetCandles(ctx, market, 1, count)
		if err != nil {
			e.logger.Warn("volatility window seed failed, collector will fill it",
				utils.Market(market), zap.Error(err))
			continue
		}
		e.window.Seed(market, candles)
		e.logger.Info("volatility window seeded",
			utils.Market(market),
			zap.Int("points", e.window.PointCount(market)))
	}
}

// restoreHaltState восстанавливает метрику остановки торговли после
// рестарта: остановка хранится в строке дня и переживает процесс.
func (e *Engine) restoreHaltState() {
	day, err := e.repos.Stats.GetByDate(time.Now().UTC())
	if err != nil {
		if !errors.Is(err, repository.ErrStatsNotFound) {
			e.logger.Error("failed to read trading day state", zap.Error(err))
		}
		return
	}
	UpdateHaltState(day.IsTradingHalted)
	pnl, _ := day.RealizedPnl.Float64()
	DailyRealizedPnl.Set(pnl)
	if day.IsTradingHalted {
		e.logger.Warn("trading is halted for today",
			zap.String("reason", day.HaltReason))
	}
}

func (e *Engine) startStream() {
	e.stream = exchange.NewTickerStream("", e.cfg.Engine.Markets,
		exchange.DefaultStreamConfig(), e.observeTicker, e.logger)
	if err := e.stream.Connect(); err != nil {
		e.logger.Warn("ticker stream connect failed, REST polling remains",
			zap.Error(err))
	}
}

// ============================================================
// Периодические задачи
// ============================================================

// collect опрашивает тикеры REST-запросом и пополняет окно цен.
// Работает и при включённом WebSocket-потоке: опрос дешёвый, а дыры
// при переподключении потока закрывает именно он.
func (e *Engine) collect(ctx context.Context) {
	for _, market := range e.cfg.Engine.Markets {
		started := time.Now()
		ticker, err := e.gateway.GetTicker(ctx, market)
		GatewayRequestLatency.WithLabelValues("get_ticker").Observe(time.Since(started).Seconds())
		if err != nil {
			e.logger.Warn("ticker poll failed", utils.Market(market), zap.Error(err))
			continue
		}
		e.observeTicker(ticker)
	}

	GoroutineCount.Set(float64(runtime.NumGoroutine()))
	if e.stream != nil {
		UpdateStreamStatus(e.stream.IsConnected())
	}
}

// observeTicker - общий приёмник цены для REST-опроса и WebSocket-потока.
func (e *Engine) observeTicker(t *exchange.Ticker) {
	e.window.Observe(t.Market, t.TradePrice, time.Now())

	price, _ := t.TradePrice.Float64()
	vol, _ := e.window.RangePct(t.Market).Float64()
	UpdateMarketState(t.Market, price, vol)

	if e.hub != nil {
		e.hub.BroadcastTicker(t)
	}
}

func (e *Engine) runSweep(ctx context.Context) {
	if _, err := e.sweeper.Sweep(ctx); err != nil {
		e.logger.Error("reconciliation sweep failed", zap.Error(err))
	}
}

// refreshBalance переносит живую оценку капитала в строку дня.
// Сетевой запрос происходит здесь, вне транзакций применения.
func (e *Engine) refreshBalance(ctx context.Context) {
	balances, err := e.gateway.GetBalances(ctx)
	if err != nil {
		e.logger.Warn("balance refresh failed", zap.Error(err))
		return
	}
	equity := accountEquity(balances, e.window)

	today := time.Now().UTC()
	if err := e.repos.Stats.SetEndingBalance(today, equity); err != nil {
		if !errors.Is(err, repository.ErrStatsNotFound) {
			e.logger.Error("failed to update ending balance", zap.Error(err))
		}
		return
	}

	day, err := e.repos.Stats.GetByDate(today)
	if err != nil {
		return
	}
	UpdateHaltState(day.IsTradingHalted)
	pnl, _ := day.RealizedPnl.Float64()
	DailyRealizedPnl.Set(pnl)
	if e.hub != nil {
		e.hub.BroadcastStatsUpdate(day)
	}
}

// rollover открывает новый торговый день (UTC), если строки ещё нет.
// Стартовый баланс берётся с биржи; при её недоступности наследуется
// ending_balance прошлого дня, при отсутствии и его - ноль, что
// отключает дневной лимит потерь до первого обновления баланса.
func (e *Engine) rollover(ctx context.Context) {
	today := time.Now().UTC()
	if _, err := e.repos.Stats.GetByDate(today); err == nil {
		return
	} else if !errors.Is(err, repository.ErrStatsNotFound) {
		e.logger.Error("trading day check failed", zap.Error(err))
		return
	}

	starting := decimal.Zero
	balances, err := e.gateway.GetBalances(ctx)
	if err != nil {
		e.logger.Warn("balance unavailable at rollover, carrying last ending balance",
			zap.Error(err))
		if last, lerr := e.repos.Stats.GetLatest(); lerr == nil {
			starting = last.EndingBalance
		}
	} else {
		starting = accountEquity(balances, e.window)
	}

	if err := e.repos.Stats.EnsureForDate(today, starting); err != nil {
		e.logger.Error("failed to open trading day", zap.Error(err))
		return
	}

	UpdateHaltState(false)
	DailyRealizedPnl.Set(0)
	e.logger.Info("trading day opened",
		zap.String("date", today.Format("2006-01-02")),
		zap.String("starting_balance", starting.String()))
}

// ============================================================
// Сигнальный цикл
// ============================================================

// generateSignals запрашивает у источника рекомендацию по каждому рынку
// и исполняет пригодные. Ошибки источника не прерывают цикл: следующий
// запуск задачи попробует снова.
func (e *Engine) generateSignals(ctx context.Context) {
	balances, err := e.gateway.GetBalances(ctx)
	if err != nil {
		e.logger.Warn("signal cycle skipped, balances unavailable", zap.Error(err))
		return
	}
	krw := balanceFor(balances, "KRW").Available
	equity := accountEquity(balances, e.window)

	params, err := e.repos.RiskParams.Get()
	if err != nil {
		e.logger.Error("signal cycle skipped, risk params unavailable", zap.Error(err))
		return
	}

	for _, market := range e.cfg.Engine.Markets {
		if ctx.Err() != nil {
			return
		}
		e.generateSignalFor(ctx, market, krw, equity, params)
	}
}

func (e *Engine) generateSignalFor(ctx context.Context, market string, krw, equity decimal.Decimal, params *models.RiskParams) {
	ticker, err := e.gateway.GetTicker(ctx, market)
	if err != nil {
		e.logger.Warn("signal skipped, ticker unavailable",
			utils.Market(market), zap.Error(err))
		return
	}
	e.observeTicker(ticker)

	position, err := e.positionFor(market)
	if err != nil {
		e.logger.Error("signal skipped, position unavailable",
			utils.Market(market), zap.Error(err))
		return
	}

	snap := signal.MarketSnapshot{
		Market:     market,
		TradePrice: ticker.TradePrice,
		HighPrice:  ticker.HighPrice,
		LowPrice:   ticker.LowPrice,
		ChangeRate: ticker.ChangeRate,
		Volume24h:  ticker.Volume24h,
		RangePct:   e.window.RangePct(market),
		KRWBalance: krw,
	}
	if position != nil && position.Quantity.IsPositive() {
		snap.Position = &signal.PositionBrief{
			Quantity: position.Quantity,
			AvgCost:  position.AvgBuyPrice,
			PnlPct:   utils.ChangePct(position.AvgBuyPrice, ticker.TradePrice),
		}
	}

	started := time.Now()
	sig, err := e.source.Generate(ctx, snap)
	if err != nil {
		e.logger.Warn("signal generation failed",
			utils.Market(market), zap.Error(err))
		return
	}
	RecordSignal(market, sig.SignalType, time.Since(started).Seconds())

	if err := e.repos.Signals.Create(sig); err != nil {
		e.logger.Error("failed to persist signal",
			utils.Market(market), zap.Error(err))
		return
	}

	e.logger.Info("signal received",
		utils.Market(market),
		zap.String("signal", sig.SignalType),
		zap.String("confidence", sig.Confidence.String()))

	e.actOnSignal(ctx, sig, snap, params, equity, krw, position)
}

// actOnSignal переводит пригодный сигнал в запрос исполнителю.
// HOLD и сигналы ниже порога уверенности не создают ордеров вовсе:
// порог - фильтр входа, а не правило риска.
func (e *Engine) actOnSignal(
	ctx context.Context,
	sig *models.Signal,
	snap signal.MarketSnapshot,
	params *models.RiskParams,
	equity, krw decimal.Decimal,
	position *models.Position,
) {
	if !sig.Actionable() {
		return
	}
	if sig.Confidence.LessThan(params.MinConfidence) {
		e.logger.Info("signal below confidence threshold",
			utils.Market(sig.Market),
			zap.String("signal", sig.SignalType),
			zap.String("confidence", sig.Confidence.String()),
			zap.String("min_confidence", params.MinConfidence.String()))
		return
	}

	var amount decimal.Decimal
	switch sig.SignalType {
	case models.SignalBuy:
		amount = buySizeKRW(params, equity, krw)
		if amount.LessThan(decimal.NewFromInt(minOrderKRW)) {
			e.logger.Info("buy signal skipped, sized amount below exchange minimum",
				utils.Market(sig.Market), zap.String("amount", amount.String()))
			return
		}
	case models.SignalSell:
		if position == nil || !position.Quantity.IsPositive() {
			e.logger.Info("sell signal skipped, no position to sell",
				utils.Market(sig.Market))
			return
		}
		amount = sellSizeVolume(params, position, snap.TradePrice)
		if !amount.IsPositive() {
			return
		}
	}

	order, err := e.executor.Execute(ctx, ExecuteRequest{
		Market:  sig.Market,
		Side:    sideForSignal(sig.SignalType),
		Amount:  amount,
		Trigger: models.SignalTrigger(sig.ID),
	})
	if err != nil {
		e.logger.Error("signal execution failed",
			utils.Market(sig.Market), zap.Error(err))
		return
	}
	e.logger.Info("signal executed",
		utils.Market(sig.Market),
		utils.OrderID(order.ID),
		utils.Status(order.Status))
}

// buySizeKRW подбирает сумму покупки: целевая доля капитала, ограниченная
// потолком ордера и свободными KRW. Исполнитель всё равно проверит
// границы - здесь сумма лишь приводится к проходному диапазону.
func buySizeKRW(params *models.RiskParams, equity, krw decimal.Decimal) decimal.Decimal {
	target := equity.Mul(params.PositionSizeMaxPct).Div(decimal.NewFromInt(100))
	if target.GreaterThan(params.OrderMaxKRW) {
		target = params.OrderMaxKRW
	}
	if target.GreaterThan(krw) {
		target = krw
	}
	return target.Truncate(0)
}

// sellSizeVolume подбирает объём продажи: вся позиция, но не больше
// потолка ордера в KRW по текущей цене.
func sellSizeVolume(params *models.RiskParams, position *models.Position, price decimal.Decimal) decimal.Decimal {
	volume := position.Quantity
	if price.IsPositive() {
		maxVolume := params.OrderMaxKRW.Div(price)
		if volume.GreaterThan(maxVolume) {
			volume = maxVolume
		}
	}
	return volume.Truncate(8)
}

func sideForSignal(signalType string) string {
	if signalType == models.SignalBuy {
		return models.SideBuy
	}
	return models.SideSell
}

// positionFor возвращает позицию рынка либо nil, если её ещё нет.
func (e *Engine) positionFor(market string) (*models.Position, error) {
	position, err := e.repos.Positions.GetByMarket(market)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return position, nil
}

func (e *Engine) notifyLifecycle(ntype, title, message string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(&models.Notification{
		Type:     ntype,
		Severity: models.SeverityInfo,
		Title:    title,
		Message:  message,
	})
}
