package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
)

// OrderHandler отвечает за работу с ордерами через API
//
// Endpoints:
// - GET /api/v1/orders - список ордеров с фильтрацией
// - GET /api/v1/orders/summary - сводка по статусам
// - GET /api/v1/orders/{id} - один ордер
// - POST /api/v1/orders - ручная сделка
// - POST /api/v1/orders/{id}/cancel - запрос отмены на бирже
//
// Назначение:
// Ручная сделка проходит тот же конвейер валидации, риск-контроля
// и исполнения, что и сигнальная: API не обходит ни одну проверку.
// Отказ риск-контроля возвращается как FAILED-ордер с причиной
// в error_message, а не как HTTP ошибка.
type OrderHandler struct {
	orderService service.OrderServiceInterface
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимости
func NewOrderHandler(orderService service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// GetOrdersResponse представляет ответ списка ордеров
type GetOrdersResponse struct {
	Orders []*models.Order `json:"orders"`
	Total  int             `json:"total"`
}

// GetOrders возвращает список ордеров с фильтрацией
//
// GET /api/v1/orders
//
// Query параметры:
// - status (string): PENDING, SUBMITTED, FILLED, CANCELLED, FAILED
// - market (string): фильтр по рынку (KRW-BTC)
// - limit (int): количество записей (по умолчанию 50, максимум 200)
// - offset (int): смещение, используется только без фильтров
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: неизвестный статус в фильтре
// - 500 Internal Server Error: ошибка сервера
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	market := r.URL.Query().Get("market")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	orders, err := h.orderService.GetOrders(status, market, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrderArg) {
			respondWithError(w, http.StatusBadRequest, "Unknown order status: "+status)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get orders: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetOrdersResponse{
		Orders: orders,
		Total:  len(orders),
	})
}

// GetOrder возвращает один ордер по ID
//
// GET /api/v1/orders/{id}
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: некорректный id
// - 404 Not Found: ордер не найден
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	order, err := h.orderService.GetOrder(id)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get order: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

// CreateOrderRequest представляет запрос ручной сделки
type CreateOrderRequest struct {
	Market string          `json:"market"` // KRW-BTC
	Side   string          `json:"side"`   // BUY, SELL
	Amount decimal.Decimal `json:"amount"` // KRW для BUY, объём монеты для SELL
}

// CreateOrder запускает ручную сделку
//
// POST /api/v1/orders
//
// Тело запроса:
//
//	{"market": "KRW-BTC", "side": "BUY", "amount": "50000"}
//
// Ордер возвращается в конечном состоянии конвейера: FILLED при
// быстром исполнении, SUBMITTED если биржа не успела за окно опроса,
// FAILED при отказе валидации или риск-контроля (причина в
// error_message). HTTP статус 201 во всех этих случаях: строка
// ордера создана.
//
// HTTP коды:
// - 201 Created: ордер создан (смотрите поле status)
// - 400 Bad Request: некорректные параметры запроса
// - 503 Service Unavailable: движок остановлен
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.orderService.ExecuteManual(r.Context(), req.Market, req.Side, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEngineStopped):
			respondWithError(w, http.StatusServiceUnavailable, "Trading engine is not running")
		case errors.Is(err, service.ErrUnknownMarket):
			respondWithError(w, http.StatusBadRequest, "Market is not traded: "+req.Market)
		case errors.Is(err, service.ErrInvalidOrderArg):
			respondWithError(w, http.StatusBadRequest, "Invalid order parameters")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to execute order: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, order)
}

// CancelOrder запрашивает отмену SUBMITTED-ордера на бирже
//
// POST /api/v1/orders/{id}/cancel
//
// Отмена асинхронна: биржа принимает запрос, а терминальный статус
// (CANCELLED либо FILLED, если ордер успел исполниться) зафиксирует
// фоновая сверка. Ответ содержит ордер на момент запроса.
//
// HTTP коды:
// - 202 Accepted: запрос отмены принят биржей
// - 400 Bad Request: некорректный id
// - 404 Not Found: ордер не найден
// - 409 Conflict: ордер не в статусе SUBMITTED
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	order, err := h.orderService.CancelOrder(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			respondWithError(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, service.ErrOrderNotCancellable):
			respondWithError(w, http.StatusConflict, "Order is not cancellable")
		case errors.Is(err, service.ErrInvalidOrderArg):
			respondWithError(w, http.StatusBadRequest, "Invalid order id")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to cancel order: "+err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusAccepted, order)
}

// GetSummary возвращает количество ордеров по каждому статусу
//
// GET /api/v1/orders/summary
func (h *OrderHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orderService.GetStatusSummary()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get summary: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}
