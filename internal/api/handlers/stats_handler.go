package handlers

import (
	"errors"
	"net/http"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
)

// StatsHandler отвечает за дневную статистику торговли
//
// Endpoints:
// - GET /api/v1/stats/today - статистика текущего дня (UTC)
// - GET /api/v1/stats/history - история по дням
// - GET /api/v1/stats/performance - сводка эффективности за период
type StatsHandler struct {
	statsService service.StatsServiceInterface
}

// NewStatsHandler создает новый StatsHandler с внедрением зависимости
func NewStatsHandler(statsService service.StatsServiceInterface) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
	}
}

// GetToday возвращает статистику текущего торгового дня
//
// GET /api/v1/stats/today
//
// HTTP коды:
// - 200 OK: успешно
// - 404 Not Found: день еще не открыт (не было ни ордера, ни rollover)
func (h *StatsHandler) GetToday(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.GetToday()
	if err != nil {
		if errors.Is(err, service.ErrStatsNotFound) {
			respondWithError(w, http.StatusNotFound, "No stats for today yet")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get stats: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// GetHistoryResponse представляет ответ истории по дням
type GetHistoryResponse struct {
	Days  []*models.DailyStats `json:"days"`
	Total int                  `json:"total"`
}

// GetHistory возвращает историю дневной статистики (новые дни сверху)
//
// GET /api/v1/stats/history
//
// Query параметры:
// - days (int): глубина истории (по умолчанию 30, максимум 365)
func (h *StatsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)

	history, err := h.statsService.GetHistory(days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get history: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetHistoryResponse{
		Days:  history,
		Total: len(history),
	})
}

// GetPerformance возвращает сводку эффективности за период
//
// GET /api/v1/stats/performance
//
// Query параметры:
// - days (int): период расчета (по умолчанию 30)
//
// Win rate считается только по сделкам с ненулевым P&L:
// покупки и безубыточные продажи не искажают процент.
func (h *StatsHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)

	summary, err := h.statsService.GetPerformance(days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get performance: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}
