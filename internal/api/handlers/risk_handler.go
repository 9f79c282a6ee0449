package handlers

import (
	"errors"
	"net/http"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
)

// RiskHandler отвечает за управление риск-контролем
//
// Endpoints:
// - GET /api/v1/risk/params - текущие параметры риска
// - PUT /api/v1/risk/params - обновление параметров
// - GET /api/v1/risk/status - состояние торговли (halted или нет)
// - POST /api/v1/risk/halt - ручная остановка торговли
// - POST /api/v1/risk/resume - возобновление торговли
// - GET /api/v1/risk/events - журнал риск-событий
//
// Назначение:
// Оператор управляет границами риска без перезапуска процесса:
// исполнитель перечитывает параметры перед каждой оценкой.
// Остановка действует до конца торгового дня (UTC) либо до
// явного resume.
type RiskHandler struct {
	riskService service.RiskServiceInterface
}

// NewRiskHandler создает новый RiskHandler с внедрением зависимости
func NewRiskHandler(riskService service.RiskServiceInterface) *RiskHandler {
	return &RiskHandler{
		riskService: riskService,
	}
}

// GetParams возвращает текущие параметры риска
//
// GET /api/v1/risk/params
func (h *RiskHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	params, err := h.riskService.GetParams()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get risk params: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, params)
}

// UpdateParams обновляет параметры риска
//
// PUT /api/v1/risk/params
//
// Тело запроса - полный набор параметров:
//
//	{
//	  "position_size_min_pct": "5",
//	  "position_size_max_pct": "20",
//	  "stop_loss_pct": "3",
//	  "daily_loss_limit_pct": "5",
//	  "volatility_threshold_pct": "8",
//	  "min_confidence": "0.65",
//	  "order_max_krw": "1000000"
//	}
//
// HTTP коды:
// - 200 OK: параметры сохранены, возвращается актуальное состояние
// - 400 Bad Request: параметры вне допустимых диапазонов
func (h *RiskHandler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	var params models.RiskParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	updated, err := h.riskService.UpdateParams(&params)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRiskParams) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to update risk params: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

// StatusResponse представляет состояние торговли
type StatusResponse struct {
	Halted bool   `json:"halted"`
	Reason string `json:"reason,omitempty"`
}

// GetStatus возвращает состояние торговли на текущий день
//
// GET /api/v1/risk/status
func (h *RiskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	halted, reason, err := h.riskService.IsHalted()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get halt status: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, StatusResponse{
		Halted: halted,
		Reason: reason,
	})
}

// HaltRequest представляет запрос ручной остановки торговли
type HaltRequest struct {
	Reason string `json:"reason"`
}

// Halt останавливает торговлю до конца дня
//
// POST /api/v1/risk/halt
//
// Тело запроса (опционально):
//
//	{"reason": "maintenance window"}
//
// HTTP коды:
// - 200 OK: торговля остановлена
// - 409 Conflict: торговый день еще не открыт
func (h *RiskHandler) Halt(w http.ResponseWriter, r *http.Request) {
	var req HaltRequest
	if r.Body != nil {
		// Пустое тело допустимо, причина подставится по умолчанию
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.riskService.HaltTrading(req.Reason); err != nil {
		if errors.Is(err, service.ErrNoTradingDay) {
			respondWithError(w, http.StatusConflict, "Trading day is not open yet")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to halt trading: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Trading halted"})
}

// Resume возобновляет торговлю
//
// POST /api/v1/risk/resume
//
// HTTP коды:
// - 200 OK: торговля возобновлена
// - 409 Conflict: торговый день еще не открыт
func (h *RiskHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.riskService.ResumeTrading(); err != nil {
		if errors.Is(err, service.ErrNoTradingDay) {
			respondWithError(w, http.StatusConflict, "Trading day is not open yet")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to resume trading: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Trading resumed"})
}

// GetEventsResponse представляет ответ журнала риск-событий
type GetEventsResponse struct {
	Events []*models.RiskEvent `json:"events"`
	Total  int                 `json:"total"`
}

// GetEvents возвращает журнал риск-событий (новые сверху)
//
// GET /api/v1/risk/events
//
// Query параметры:
// - type (string): фильтр по типу события (STOP_LOSS, DAILY_LIMIT,
//   POSITION_LIMIT, VOLATILITY_HALT, TRADING_HALTED, SYSTEM_ERROR)
// - limit (int): количество записей (по умолчанию 50)
func (h *RiskHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("type")
	limit := queryInt(r, "limit", 50)

	events, err := h.riskService.GetEvents(eventType, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get risk events: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetEventsResponse{
		Events: events,
		Total:  len(events),
	})
}
