package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
)

// SignalHandler отвечает за просмотр торговых сигналов ИИ
//
// Endpoints:
// - GET /api/v1/signals - журнал сигналов
// - GET /api/v1/signals/latest - последний сигнал рынка
// - GET /api/v1/signals/{id} - один сигнал
//
// Сигналы создает только движок; API отдает их в режиме чтения
// для анализа решений модели.
type SignalHandler struct {
	signalService service.SignalServiceInterface
}

// NewSignalHandler создает новый SignalHandler с внедрением зависимости
func NewSignalHandler(signalService service.SignalServiceInterface) *SignalHandler {
	return &SignalHandler{
		signalService: signalService,
	}
}

// GetSignalsResponse представляет ответ журнала сигналов
type GetSignalsResponse struct {
	Signals []*models.Signal `json:"signals"`
	Total   int              `json:"total"`
}

// GetSignals возвращает журнал сигналов (новые сверху)
//
// GET /api/v1/signals
//
// Query параметры:
// - limit (int): количество записей (по умолчанию 50, максимум 200)
func (h *SignalHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	signals, err := h.signalService.GetSignals(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get signals: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetSignalsResponse{
		Signals: signals,
		Total:   len(signals),
	})
}

// GetSignal возвращает один сигнал по ID
//
// GET /api/v1/signals/{id}
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: некорректный id
// - 404 Not Found: сигнал не найден
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(mux.Vars(r))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid signal id")
		return
	}

	signal, err := h.signalService.GetSignal(id)
	if err != nil {
		if errors.Is(err, service.ErrSignalNotFound) {
			respondWithError(w, http.StatusNotFound, "Signal not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get signal: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, signal)
}

// GetLatest возвращает последний сигнал рынка
//
// GET /api/v1/signals/latest?market=KRW-BTC
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: параметр market не указан
// - 404 Not Found: для рынка еще нет сигналов
func (h *SignalHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	market := r.URL.Query().Get("market")
	if market == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter market is required")
		return
	}

	signal, err := h.signalService.GetLatestForMarket(market)
	if err != nil {
		if errors.Is(err, service.ErrSignalNotFound) {
			respondWithError(w, http.StatusNotFound, "No signals for market: "+market)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get signal: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, signal)
}
