package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового конвейера
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах
// - Анализ исполнения ордеров в production

// ============ Метрики латентности ============

// OrderExecutionLatency - время от создания ордера до терминального статуса
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "order_execution_latency_seconds",
		Help:      "Time from order creation to terminal status in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	},
	[]string{"market", "side"},
)

// GatewayRequestLatency - время запроса к бирже
var GatewayRequestLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "autotrader",
		Subsystem: "exchange",
		Name:      "gateway_request_latency_seconds",
		Help:      "Exchange gateway request latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 1, 2, 5},
	},
	[]string{"operation"}, // place_order, get_order, get_balance, get_ticker
)

// SignalLatency - время генерации сигнала моделью
var SignalLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "signal_latency_seconds",
		Help:      "AI signal generation latency in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
	},
)

// ============ Счётчики событий ============

// OrdersTotal - терминальные исходы ордеров
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "orders_total",
		Help:      "Total number of orders by terminal status",
	},
	[]string{"market", "side", "status"}, // status: FILLED, CANCELLED, FAILED
)

// OrderRetriesTotal - повторные отправки ордеров на биржу
var OrderRetriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "order_retries_total",
		Help:      "Total number of order submission retries",
	},
)

// RiskDenialsTotal - отказы риск-контроля по причинам
var RiskDenialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autotrader",
		Subsystem: "risk",
		Name:      "denials_total",
		Help:      "Total number of risk control denials",
	},
	[]string{"reason"}, // TRADING_HALTED, DAILY_LIMIT, POSITION_LIMIT, VOLATILITY_HALT
)

// InvariantViolationsTotal - нарушения инвариантов данных
var InvariantViolationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autotrader",
		Subsystem: "risk",
		Name:      "invariant_violations_total",
		Help:      "Total number of data invariant violations",
	},
	[]string{"rule"},
)

// LedgerAppliesTotal - применения ордеров к позиции
var LedgerAppliesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "ledger_applies_total",
		Help:      "Total number of ledger apply attempts",
	},
	[]string{"result"}, // applied, skipped, violation, error
)

// SignalsTotal - полученные сигналы по типам
var SignalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "signals_total",
		Help:      "Total number of AI signals received",
	},
	[]string{"market", "signal"}, // BUY, HOLD, SELL
)

// SweepResolvedTotal - ордера, доведённые свипом до терминального статуса
var SweepResolvedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "sweep_resolved_total",
		Help:      "Total number of orders resolved by reconciliation sweep",
	},
)

// SweepErrorsTotal - ошибки опроса биржи внутри свипа
var SweepErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "sweep_errors_total",
		Help:      "Total number of per-order sweep failures",
	},
)

// BufferOverflows - переполнения буферов каналов
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autotrader",
		Subsystem: "runtime",
		Name:      "buffer_overflows_total",
		Help:      "Number of channel buffer overflows (events dropped)",
	},
	[]string{"buffer"}, // notification, ws_broadcast
)

// ============ Метрики состояния ============

// TradingHalted - флаг остановки торговли (1 = остановлена)
var TradingHalted = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "autotrader",
		Subsystem: "risk",
		Name:      "trading_halted",
		Help:      "Trading halt flag (1=halted, 0=trading)",
	},
)

// SubmittedOrders - ордера в статусе SUBMITTED
var SubmittedOrders = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "submitted_orders",
		Help:      "Current number of orders awaiting execution on the exchange",
	},
)

// PositionQuantity - объём позиции по рынку
var PositionQuantity = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "position_quantity",
		Help:      "Current position quantity per market",
	},
	[]string{"market"},
)

// DailyRealizedPnl - реализованный результат торгового дня в KRW
var DailyRealizedPnl = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "autotrader",
		Subsystem: "trading",
		Name:      "daily_realized_pnl_krw",
		Help:      "Realized PnL of the current trading day in KRW",
	},
)

// VolatilityPct - волатильность окна по рынку в процентах
var VolatilityPct = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "autotrader",
		Subsystem: "risk",
		Name:      "volatility_percent",
		Help:      "Price range of the volatility window in percent",
	},
	[]string{"market"},
)

// CurrentPrice - последняя цена сделки по рынку
var CurrentPrice = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "autotrader",
		Subsystem: "exchange",
		Name:      "current_price_krw",
		Help:      "Last trade price per market in KRW",
	},
	[]string{"market"},
)

// StreamConnected - статус WebSocket-потока котировок (1 = подключен)
var StreamConnected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "autotrader",
		Subsystem: "exchange",
		Name:      "ticker_stream_connected",
		Help:      "Upbit ticker stream connection status (1=connected, 0=disconnected)",
	},
)

// GoroutineCount - количество горутин
var GoroutineCount = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "autotrader",
		Subsystem: "runtime",
		Name:      "goroutines",
		Help:      "Current number of goroutines",
	},
)

// ============ Вспомогательные функции ============

// RecordOrderOutcome записывает терминальный исход ордера.
func RecordOrderOutcome(market, side, status string, latencySeconds float64) {
	OrdersTotal.WithLabelValues(market, side, status).Inc()
	OrderExecutionLatency.WithLabelValues(market, side).Observe(latencySeconds)
}

// RecordRiskDenial записывает отказ риск-контроля.
func RecordRiskDenial(reason string) {
	RiskDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordInvariantViolation записывает нарушение инварианта.
func RecordInvariantViolation(rule string) {
	InvariantViolationsTotal.WithLabelValues(rule).Inc()
}

// RecordLedgerApply записывает исход применения ордера к позиции.
func RecordLedgerApply(result string) {
	LedgerAppliesTotal.WithLabelValues(result).Inc()
}

// RecordSignal записывает полученный сигнал.
func RecordSignal(market, signalType string, latencySeconds float64) {
	SignalsTotal.WithLabelValues(market, signalType).Inc()
	SignalLatency.Observe(latencySeconds)
}

// RecordBufferOverflow записывает переполнение буфера.
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

// UpdateHaltState обновляет флаг остановки торговли.
func UpdateHaltState(halted bool) {
	if halted {
		TradingHalted.Set(1)
	} else {
		TradingHalted.Set(0)
	}
}

// UpdateStreamStatus обновляет статус WebSocket-потока котировок.
func UpdateStreamStatus(connected bool) {
	if connected {
		StreamConnected.Set(1)
	} else {
		StreamConnected.Set(0)
	}
}

// UpdateMarketState обновляет цену и волатильность рынка.
func UpdateMarketState(market string, price, volatilityPct float64) {
	CurrentPrice.WithLabelValues(market).Set(price)
	VolatilityPct.WithLabelValues(market).Set(volatilityPct)
}
