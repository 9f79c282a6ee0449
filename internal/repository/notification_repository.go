package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// NotificationRepository - работа с таблицей notifications.
// Хранит историю уведомлений для ленты в UI; доставка во внешние
// каналы выполняется диспетчером, не репозиторием.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет уведомление, metadata сериализуется в JSONB
func (r *NotificationRepository) Create(n *models.Notification) error {
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notifications (ntype, severity, title, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	n.CreatedAt = time.Now()
	if n.Severity == "" {
		n.Severity = models.SeverityInfo
	}

	return r.db.QueryRow(
		query,
		n.Type,
		n.Severity,
		n.Title,
		n.Message,
		metadataJSON,
		n.CreatedAt,
	).Scan(&n.ID)
}

// ListRecent возвращает последние уведомления, новые первыми
func (r *NotificationRepository) ListRecent(limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, ntype, severity, title, message, metadata, created_at
		FROM notifications
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var metadataJSON []byte
		err := rows.Scan(
			&n.ID,
			&n.Type,
			&n.Severity,
			&n.Title,
			&n.Message,
			&metadataJSON,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &n.Metadata); err != nil {
				return nil, err
			}
		}

		list = append(list, n)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// DeleteOlderThan удаляет уведомления старше указанной даты.
// Периодическая чистка ленты.
func (r *NotificationRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE created_at < $1`, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
