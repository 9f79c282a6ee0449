package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// NotificationService предоставляет чтение и очистку журнала уведомлений.
//
// Создание уведомлений идёт через диспетчер internal/notify и в сервис
// не заходит: API только читает то, что диспетчер уже записал.
type NotificationService struct {
	notifications NotificationStore
	logger        *zap.Logger
}

// NewNotificationService создает новый экземпляр NotificationService.
func NewNotificationService(notifications NotificationStore, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		logger:        logger.Named("notification_service"),
	}
}

// GetNotifications возвращает последние уведомления (новые сверху).
//
// Параметры:
// - limit: максимальное количество записей (по умолчанию 100, максимум 500)
func (s *NotificationService) GetNotifications(limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	notifications, err := s.notifications.ListRecent(limit)
	if err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	return notifications, nil
}

// Cleanup удаляет уведомления старше указанного количества дней
// и возвращает число удалённых записей.
func (s *NotificationService) Cleanup(olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = 30
	}

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	deleted, err := s.notifications.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info("notification journal cleaned",
			zap.Int64("deleted", deleted),
			zap.Int("older_than_days", olderThanDays))
	}
	return deleted, nil
}
