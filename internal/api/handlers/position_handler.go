package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
)

// PositionHandler отвечает за просмотр позиций
//
// Endpoints:
// - GET /api/v1/positions - все позиции
// - GET /api/v1/positions/{market} - позиция одного рынка
//
// Позиции отдаются с рыночной оценкой: текущая цена из окна
// коллектора и нереализованный P&L, если цена известна.
type PositionHandler struct {
	positionService service.PositionServiceInterface
}

// NewPositionHandler создает новый PositionHandler с внедрением зависимости
func NewPositionHandler(positionService service.PositionServiceInterface) *PositionHandler {
	return &PositionHandler{
		positionService: positionService,
	}
}

// GetPositionsResponse представляет ответ списка позиций
type GetPositionsResponse struct {
	Positions []*service.PositionView `json:"positions"`
	Total     int                     `json:"total"`
}

// GetPositions возвращает все позиции
//
// GET /api/v1/positions
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positionService.GetPositions()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get positions: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetPositionsResponse{
		Positions: positions,
		Total:     len(positions),
	})
}

// GetPosition возвращает позицию одного рынка
//
// GET /api/v1/positions/{market}
//
// HTTP коды:
// - 200 OK: успешно
// - 404 Not Found: позиция не найдена либо рынок некорректен
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	market := mux.Vars(r)["market"]

	position, err := h.positionService.GetPosition(market)
	if err != nil {
		if errors.Is(err, service.ErrPositionNotFound) {
			respondWithError(w, http.StatusNotFound, "Position not found: "+market)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get position: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, position)
}
