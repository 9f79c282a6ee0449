package repository

import (
	"database/sql"
	"time"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// RiskEventRepository - работа с таблицей risk_events.
// Таблица append-only: записи создаются и читаются, обновлений нет.
type RiskEventRepository struct {
	db *sql.DB
}

// NewRiskEventRepository создает новый экземпляр репозитория
func NewRiskEventRepository(db *sql.DB) *RiskEventRepository {
	return &RiskEventRepository{db: db}
}

func scanRiskEvent(s rowScanner) (*models.RiskEvent, error) {
	event := &models.RiskEvent{}
	err := s.Scan(
		&event.ID,
		&event.EventType,
		&event.Market,
		&event.TriggerValue,
		&event.Threshold,
		&event.Message,
		&event.OrderID,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Create записывает риск-событие
func (r *RiskEventRepository) Create(event *models.RiskEvent) error {
	query := `
		INSERT INTO risk_events (event_type, market, trigger_value, threshold, message, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	event.CreatedAt = time.Now()

	return r.db.QueryRow(
		query,
		event.EventType,
		event.Market,
		event.TriggerValue,
		event.Threshold,
		event.Message,
		event.OrderID,
		event.CreatedAt,
	).Scan(&event.ID)
}

// CreateTx записывает риск-событие внутри транзакции применения.
// Используется для события DAILY_LIMIT: остановка торговли и её причина
// коммитятся атомарно с вызвавшим их изменением статистики.
func (r *RiskEventRepository) CreateTx(tx *sql.Tx, event *models.RiskEvent) error {
	query := `
		INSERT INTO risk_events (event_type, market, trigger_value, threshold, message, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	event.CreatedAt = time.Now()

	return tx.QueryRow(
		query,
		event.EventType,
		event.Market,
		event.TriggerValue,
		event.Threshold,
		event.Message,
		event.OrderID,
		event.CreatedAt,
	).Scan(&event.ID)
}

func (r *RiskEventRepository) queryEvents(query string, args ...interface{}) ([]*models.RiskEvent, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.RiskEvent
	for rows.Next() {
		event, err := scanRiskEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// ListRecent возвращает последние события, новые первыми
func (r *RiskEventRepository) ListRecent(limit int) ([]*models.RiskEvent, error) {
	query := `
		SELECT id, event_type, market, trigger_value, threshold, message, order_id, created_at
		FROM risk_events
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryEvents(query, limit)
}

// ListByType возвращает последние события указанного типа
func (r *RiskEventRepository) ListByType(eventType string, limit int) ([]*models.RiskEvent, error) {
	query := `
		SELECT id, event_type, market, trigger_value, threshold, message, order_id, created_at
		FROM risk_events
		WHERE event_type = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryEvents(query, eventType, limit)
}

// CountSince возвращает количество событий с указанного момента.
// Используется метриками и дневной сводкой.
func (r *RiskEventRepository) CountSince(since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM risk_events WHERE created_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
