package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/ratelimit"
)

// Горячий путь разбора ответов биржи: jsoniter с поведением encoding/json
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	upbitBaseURL = "https://api.upbit.com"
	upbitWSURL   = "wss://api.upbit.com/websocket/v1"

	// Формат candle_date_time_utc: RFC3339 без зоны
	candleTimeLayout = "2006-01-02T15:04:05"
)

// Upbit реализует Gateway поверх REST API биржи.
// Все приватные запросы подписываются JWT (auth.go), лимиты запросов
// соблюдаются через token bucket на группу эндпоинтов.
type Upbit struct {
	accessKey string
	secretKey string
	baseURL   string
	timeout   time.Duration

	httpClient *http.Client
	limiter    *ratelimit.GroupLimiter
	logger     *zap.Logger
}

// NewUpbit создает клиента Upbit.
// Использует глобальный HTTP клиент с connection pooling; baseURL == ""
// означает боевой адрес api.upbit.com.
func NewUpbit(accessKey, secretKey, baseURL string, timeout time.Duration, logger *zap.Logger) *Upbit {
	if baseURL == "" {
		baseURL = upbitBaseURL
	}
	return &Upbit{
		accessKey:  accessKey,
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: GetGlobalHTTPClient().GetClient(),
		limiter:    ratelimit.NewUpbitLimiter(),
		logger:     logger.Named("upbit"),
	}
}

// Ping проверяет доступность биржи и валидность ключей запросом баланса
func (u *Upbit) Ping(ctx context.Context) error {
	if _, err := u.GetBalances(ctx); err != nil {
		return fmt.Errorf("upbit ping: %w", err)
	}
	return nil
}

// doRequest выполняет HTTP запрос к Upbit API.
// Параметры кодируются один раз: та же строка уходит в URL (GET, DELETE)
// и в query_hash подписи, тело POST - те же параметры в JSON.
func (u *Upbit) doRequest(ctx context.Context, method, endpoint, group string, params map[string]string, signed bool) ([]byte, error) {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	if err := u.limiter.Wait(ctx, group); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	encoded := query.Encode()

	var reqBody string
	reqURL := u.baseURL + endpoint
	if method == http.MethodGet || method == http.MethodDelete {
		if encoded != "" {
			reqURL += "?" + encoded
		}
	} else if len(params) > 0 {
		jsonBytes, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		reqBody = string(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(reqBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if signed {
		token, err := authToken(u.accessKey, u.secretKey, encoded)
		if err != nil {
			return nil, fmt.Errorf("build auth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Code: "network", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: "network", Message: err.Error(), Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := parseAPIError(resp.StatusCode, body)
		u.logger.Warn("api error",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code))
		return nil, apiErr
	}

	return body, nil
}

// parseAPIError разбирает тело ошибки Upbit: {"error":{"name":...,"message":...}}
func parseAPIError(status int, body []byte) *Error {
	var resp struct {
		Error struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}

	e := &Error{HTTPStatus: status}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Name != "" {
		e.Code = resp.Error.Name
		e.Message = resp.Error.Message
		return e
	}

	e.Code = strconv.Itoa(status)
	e.Message = http.StatusText(status)
	return e
}

// sideToUpbit переводит сторону сделки в словарь Upbit
func sideToUpbit(side string) string {
	if side == SideSell {
		return "ask"
	}
	return "bid"
}

// sideFromUpbit переводит bid/ask обратно в словарь ядра
func sideFromUpbit(side string) string {
	if side == "ask" {
		return SideSell
	}
	return SideBuy
}

// orderPayload - общие поля ответов POST /v1/orders и GET /v1/order
type orderPayload struct {
	UUID           string          `json:"uuid"`
	Side           string          `json:"side"`
	OrdType        string          `json:"ord_type"`
	State          string          `json:"state"`
	Market         string          `json:"market"`
	CreatedAt      time.Time       `json:"created_at"`
	ExecutedVolume decimal.Decimal `json:"executed_volume"`
	PaidFee        decimal.Decimal `json:"paid_fee"`
	TradesCount    int             `json:"trades_count"`
	Trades         []struct {
		Price  decimal.Decimal `json:"price"`
		Volume decimal.Decimal `json:"volume"`
		Funds  decimal.Decimal `json:"funds"`
	} `json:"trades"`
}

func (u *Upbit) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderAck, error) {
	params := map[string]string{
		"market": req.Market,
		"side":   sideToUpbit(req.Side),
	}

	// Upbit кодирует рыночную покупку как ord_type=price (сумма в KRW),
	// рыночную продажу как ord_type=market (объём монеты)
	switch {
	case req.OrdType == OrdTypeMarket && req.Side == SideBuy:
		params["ord_type"] = "price"
		params["price"] = req.Price.String()
	case req.OrdType == OrdTypeMarket:
		params["ord_type"] = "market"
		params["volume"] = req.Volume.String()
	default:
		params["ord_type"] = "limit"
		params["volume"] = req.Volume.String()
		params["price"] = req.Price.String()
	}

	if req.IdempotencyKey != "" {
		params["identifier"] = req.IdempotencyKey
	}

	body, err := u.doRequest(ctx, http.MethodPost, "/v1/orders", ratelimit.GroupOrder, params, true)
	if err != nil {
		return nil, err
	}

	var resp orderPayload
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	u.logger.Info("order placed",
		zap.String("market", resp.Market),
		zap.String("uuid", resp.UUID),
		zap.String("state", resp.State))

	return &OrderAck{
		UUID:      resp.UUID,
		State:     resp.State,
		Market:    resp.Market,
		Side:      sideFromUpbit(resp.Side),
		CreatedAt: resp.CreatedAt,
	}, nil
}

func (u *Upbit) GetOrder(ctx context.Context, exchangeOrderID string) (*OrderStatus, error) {
	params := map[string]string{
		"uuid": exchangeOrderID,
	}

	body, err := u.doRequest(ctx, http.MethodGet, "/v1/order", ratelimit.GroupPrivate, params, true)
	if err != nil {
		return nil, err
	}

	var resp orderPayload
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	// Средняя цена исполнения: Σfunds / Σvolume по сделкам
	totalFunds := decimal.Zero
	totalVolume := decimal.Zero
	for _, t := range resp.Trades {
		totalFunds = totalFunds.Add(t.Funds)
		totalVolume = totalVolume.Add(t.Volume)
	}

	avgPrice := decimal.Zero
	if totalVolume.IsPositive() {
		avgPrice = totalFunds.Div(totalVolume)
	}

	return &OrderStatus{
		UUID:           resp.UUID,
		State:          resp.State,
		Market:         resp.Market,
		Side:           sideFromUpbit(resp.Side),
		ExecutedVolume: resp.ExecutedVolume,
		AvgPrice:       avgPrice,
		PaidFee:        resp.PaidFee,
		TradesCount:    resp.TradesCount,
		CreatedAt:      resp.CreatedAt,
	}, nil
}

func (u *Upbit) CancelOrder(ctx context.Context, exchangeOrderID string) (*OrderAck, error) {
	params := map[string]string{
		"uuid": exchangeOrderID,
	}

	body, err := u.doRequest(ctx, http.MethodDelete, "/v1/order", ratelimit.GroupOrder, params, true)
	if err != nil {
		return nil, err
	}

	var resp orderPayload
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode cancel response: %w", err)
	}

	u.logger.Info("order cancel requested",
		zap.String("market", resp.Market),
		zap.String("uuid", resp.UUID),
		zap.String("state", resp.State))

	return &OrderAck{
		UUID:      resp.UUID,
		State:     resp.State,
		Market:    resp.Market,
		Side:      sideFromUpbit(resp.Side),
		CreatedAt: resp.CreatedAt,
	}, nil
}

func (u *Upbit) GetBalances(ctx context.Context) ([]Balance, error) {
	body, err := u.doRequest(ctx, http.MethodGet, "/v1/accounts", ratelimit.GroupPrivate, nil, true)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Currency    string          `json:"currency"`
		Balance     decimal.Decimal `json:"balance"`
		Locked      decimal.Decimal `json:"locked"`
		AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode accounts response: %w", err)
	}

	balances := make([]Balance, 0, len(resp))
	for _, a := range resp {
		balances = append(balances, Balance{
			Currency:    a.Currency,
			Available:   a.Balance,
			Locked:      a.Locked,
			AvgBuyPrice: a.AvgBuyPrice,
		})
	}

	return balances, nil
}

func (u *Upbit) GetTicker(ctx context.Context, market string) (*Ticker, error) {
	params := map[string]string{
		"markets": market,
	}

	body, err := u.doRequest(ctx, http.MethodGet, "/v1/ticker", ratelimit.GroupQuotation, params, false)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Market           string          `json:"market"`
		TradePrice       decimal.Decimal `json:"trade_price"`
		HighPrice        decimal.Decimal `json:"high_price"`
		LowPrice         decimal.Decimal `json:"low_price"`
		PrevClosingPrice decimal.Decimal `json:"prev_closing_price"`
		SignedChangeRate decimal.Decimal `json:"signed_change_rate"`
		AccTradeVolume   decimal.Decimal `json:"acc_trade_volume_24h"`
		Timestamp        int64           `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode ticker response: %w", err)
	}

	if len(resp) == 0 {
		return nil, fmt.Errorf("ticker not found for %s", market)
	}

	t := resp[0]
	return &Ticker{
		Market:     t.Market,
		TradePrice: t.TradePrice,
		HighPrice:  t.HighPrice,
		LowPrice:   t.LowPrice,
		PrevClose:  t.PrevClosingPrice,
		ChangeRate: t.SignedChangeRate,
		Volume24h:  t.AccTradeVolume,
		Timestamp:  time.UnixMilli(t.Timestamp),
	}, nil
}

func (u *Upbit) GetCandles(ctx context.Context, market string, unit, count int) ([]Candle, error) {
	if count > 200 {
		count = 200
	}

	params := map[string]string{
		"market": market,
		"count":  strconv.Itoa(count),
	}

	endpoint := "/v1/candles/minutes/" + strconv.Itoa(unit)
	body, err := u.doRequest(ctx, http.MethodGet, endpoint, ratelimit.GroupQuotation, params, false)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Market      string          `json:"market"`
		DateTimeUTC string          `json:"candle_date_time_utc"`
		OpenPrice   decimal.Decimal `json:"opening_price"`
		HighPrice   decimal.Decimal `json:"high_price"`
		LowPrice    decimal.Decimal `json:"low_price"`
		TradePrice  decimal.Decimal `json:"trade_price"`
		AccVolume   decimal.Decimal `json:"candle_acc_trade_volume"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode candles response: %w", err)
	}

	// Upbit отдаёт свечи от новых к старым; разворачиваем в хронологию
	candles := make([]Candle, 0, len(resp))
	for i := len(resp) - 1; i >= 0; i-- {
		c := resp[i]
		ts, err := time.Parse(candleTimeLayout, c.DateTimeUTC)
		if err != nil {
			return nil, fmt.Errorf("parse candle time %q: %w", c.DateTimeUTC, err)
		}
		candles = append(candles, Candle{
			Market:     c.Market,
			OpenPrice:  c.OpenPrice,
			HighPrice:  c.HighPrice,
			LowPrice:   c.LowPrice,
			ClosePrice: c.TradePrice,
			Volume:     c.AccVolume,
			Timestamp:  ts.UTC(),
		})
	}

	return candles, nil
}
