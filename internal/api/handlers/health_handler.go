package handlers

import (
	"database/sql"
	"net/http"
	"time"
)

// EngineStatus - подмножество торгового движка для health check
type EngineStatus interface {
	IsRunning() bool
	Markets() []string
}

// HealthHandler отвечает за проверку живости сервиса
//
// GET /healthz
//
// Отчет включает состояние БД и движка. Недоступная БД дает 503:
// без нее не работает ни один endpoint. Остановленный движок
// оставляет 200 - API чтения продолжает обслуживаться.
type HealthHandler struct {
	db     *sql.DB
	engine EngineStatus
}

// NewHealthHandler создает новый HealthHandler
func NewHealthHandler(db *sql.DB, engine EngineStatus) *HealthHandler {
	return &HealthHandler{
		db:     db,
		engine: engine,
	}
}

// HealthResponse представляет отчет о состоянии сервиса
type HealthResponse struct {
	Status        string   `json:"status"` // ok, degraded
	Database      string   `json:"database"`
	EngineRunning bool     `json:"engine_running"`
	Markets       []string `json:"markets"`
	Time          string   `json:"time"`
}

// Health возвращает состояние сервиса
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Database: "ok",
		Time:     time.Now().UTC().Format(time.RFC3339),
	}

	code := http.StatusOK
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "error: " + err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	if h.engine != nil {
		resp.EngineRunning = h.engine.IsRunning()
		resp.Markets = h.engine.Markets()
	}

	respondWithJSON(w, code, resp)
}
