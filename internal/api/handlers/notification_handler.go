package handlers

import (
	"net/http"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
)

// NotificationHandler отвечает за журнал уведомлений
//
// Endpoints:
// - GET /api/v1/notifications - последние уведомления
// - DELETE /api/v1/notifications - удаление старых записей
//
// Журнал пишет диспетчер уведомлений (internal/notify); API отдает
// его панели управления и позволяет подчищать историю.
type NotificationHandler struct {
	notificationService service.NotificationServiceInterface
}

// NewNotificationHandler создает новый NotificationHandler с внедрением зависимости
func NewNotificationHandler(notificationService service.NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// GetNotificationsResponse представляет ответ списка уведомлений
type GetNotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

// GetNotifications возвращает последние уведомления (новые сверху)
//
// GET /api/v1/notifications
//
// Query параметры:
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	notifications, err := h.notificationService.GetNotifications(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get notifications: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: notifications,
		Total:         len(notifications),
	})
}

// CleanupResponse представляет ответ очистки журнала
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// Cleanup удаляет уведомления старше заданного количества дней
//
// DELETE /api/v1/notifications
//
// Query параметры:
// - days (int): сохранить записи моложе N дней (по умолчанию 30)
func (h *NotificationHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)

	deleted, err := h.notificationService.Cleanup(days)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to clean notifications: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted})
}
