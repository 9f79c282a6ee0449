// Package exchange предоставляет шлюз к бирже Upbit: REST клиент,
// подпись запросов и потоковые котировки.
package exchange

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway определяет контракт работы с биржей.
// Единственная реализация - Upbit; интерфейс существует ради подмены
// в тестах исполнителя ордеров и фоновой сверки.
type Gateway interface {
	// PlaceOrder размещает ордер. Повторная отправка с тем же
	// idempotency-ключом не создаёт второй ордер на бирже.
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderAck, error)

	// GetOrder возвращает текущее состояние ордера по биржевому id
	GetOrder(ctx context.Context, exchangeOrderID string) (*OrderStatus, error)

	// CancelOrder запрашивает отмену ордера на бирже. Возвращает
	// подтверждение приёма запроса; фактический исход (cancel либо done
	// при гонке с исполнением) фиксируется последующим опросом
	CancelOrder(ctx context.Context, exchangeOrderID string) (*OrderAck, error)

	// GetBalances возвращает балансы всех валют аккаунта
	GetBalances(ctx context.Context) ([]Balance, error)

	// GetTicker возвращает текущую котировку рынка (без аутентификации)
	GetTicker(ctx context.Context, market string) (*Ticker, error)

	// GetCandles возвращает минутные свечи в хронологическом порядке
	GetCandles(ctx context.Context, market string, unit, count int) ([]Candle, error)
}

// OrderRequest описывает заявку на размещение ордера.
// Для рыночной покупки заполняется Price (сумма в KRW), для рыночной
// продажи - Volume (объём монеты), для лимитного ордера - оба поля.
type OrderRequest struct {
	Market         string          `json:"market"`
	Side           string          `json:"side"`     // BUY, SELL
	OrdType        string          `json:"ord_type"` // market, limit
	Volume         decimal.Decimal `json:"volume"`
	Price          decimal.Decimal `json:"price"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// OrderAck - подтверждение приёма ордера биржей
type OrderAck struct {
	UUID      string    `json:"uuid"`
	State     string    `json:"state"` // wait, watch, done, cancel
	Market    string    `json:"market"`
	Side      string    `json:"side"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderStatus - состояние ордера на бирже.
// AvgPrice выводится из сделок (Σfunds/Σvolume), а не берётся из
// заявленной цены: у рыночных ордеров заявленной цены нет.
type OrderStatus struct {
	UUID           string          `json:"uuid"`
	State          string          `json:"state"` // wait, watch, done, cancel
	Market         string          `json:"market"`
	Side           string          `json:"side"`
	ExecutedVolume decimal.Decimal `json:"executed_volume"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
	PaidFee        decimal.Decimal `json:"paid_fee"`
	TradesCount    int             `json:"trades_count"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Balance - баланс одной валюты аккаунта
type Balance struct {
	Currency    string          `json:"currency"`
	Available   decimal.Decimal `json:"available"`
	Locked      decimal.Decimal `json:"locked"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
}

// Ticker содержит текущую котировку рынка
type Ticker struct {
	Market     string          `json:"market"`
	TradePrice decimal.Decimal `json:"trade_price"`
	HighPrice  decimal.Decimal `json:"high_price"`
	LowPrice   decimal.Decimal `json:"low_price"`
	PrevClose  decimal.Decimal `json:"prev_close"`
	ChangeRate decimal.Decimal `json:"change_rate"` // знаковое изменение за сутки
	Volume24h  decimal.Decimal `json:"volume_24h"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Candle - одна минутная свеча
type Candle struct {
	Market     string          `json:"market"`
	OpenPrice  decimal.Decimal `json:"open_price"`
	HighPrice  decimal.Decimal `json:"high_price"`
	LowPrice   decimal.Decimal `json:"low_price"`
	ClosePrice decimal.Decimal `json:"close_price"`
	Volume     decimal.Decimal `json:"volume"`
	Timestamp  time.Time       `json:"timestamp"` // начало свечи, UTC
}

// Side constants (словарь ядра; bid/ask - внутреннее представление Upbit)
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order type constants
const (
	OrdTypeMarket = "market"
	OrdTypeLimit  = "limit"
)

// Состояния ордера на Upbit
const (
	StateWait   = "wait"   // в книге, ждёт исполнения
	StateWatch  = "watch"  // зарезервирован (стоп-заявка)
	StateDone   = "done"   // исполнен
	StateCancel = "cancel" // отменён
)

// IsTerminalState сообщает, завершён ли ордер на стороне биржи
func IsTerminalState(state string) bool {
	return state == StateDone || state == StateCancel
}

// Error представляет ошибку биржи или транспорта.
// HTTPStatus == 0 означает сетевую ошибку до получения ответа.
type Error struct {
	Code       string // имя ошибки Upbit либо "network"
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "upbit: " + e.Code
	}
	return "upbit: " + e.Code + ": " + e.Message
}

// Unwrap возвращает исходную ошибку для поддержки errors.Is() и errors.As()
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable сообщает, имеет ли смысл повторять запрос: сетевые сбои,
// таймауты, 429 и 5xx - временные; остальные 4xx - отказ биржи.
func (e *Error) Retryable() bool {
	if e.HTTPStatus == 0 {
		return true
	}
	if e.HTTPStatus == http.StatusTooManyRequests {
		return true
	}
	return e.HTTPStatus >= 500
}
