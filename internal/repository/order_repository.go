package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")

	// Повторная попытка записать exchange_order_id: идентификатор
	// выставляется ровно один раз при переходе PENDING -> SUBMITTED.
	ErrAlreadySubmitted = errors.New("order already has exchange order id")
)

// Колонки таблицы orders в порядке сканирования.
// Nullable-текст отдаём через COALESCE, чтобы модель держала простые строки.
const orderColumns = `id, signal_id, market, side, ord_type, status,
		requested_amount, requested_price, executed_price, executed_amount, fee,
		avg_cost_at_order, COALESCE(exchange_order_id, ''), idempotency_key,
		COALESCE(error_message, ''), applied_at, created_at, executed_at`

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s rowScanner) (*models.Order, error) {
	order := &models.Order{}
	err := s.Scan(
		&order.ID,
		&order.SignalID,
		&order.Market,
		&order.Side,
		&order.OrdType,
		&order.Status,
		&order.RequestedAmount,
		&order.RequestedPrice,
		&order.ExecutedPrice,
		&order.ExecutedAmount,
		&order.Fee,
		&order.AvgCostAtOrder,
		&order.ExchangeOrderID,
		&order.IdempotencyKey,
		&order.ErrorMessage,
		&order.AppliedAt,
		&order.CreatedAt,
		&order.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) queryOrders(query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// Create создает запись об ордере. Обычный путь - статус PENDING;
// отклонённые запросы создаются сразу в FAILED с текстом причины.
// Исполненные объёмы заполняются позже, при применении к позиции.
func (r *OrderRepository) Create(order *models.Order) error {
	query := `
		INSERT INTO orders (signal_id, market, side, ord_type, status,
			requested_amount, requested_price, avg_cost_at_order, idempotency_key,
			error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
		RETURNING id`

	order.CreatedAt = time.Now()
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}

	return r.db.QueryRow(
		query,
		order.SignalID,
		order.Market,
		order.Side,
		order.OrdType,
		order.Status,
		order.RequestedAmount,
		order.RequestedPrice,
		order.AvgCostAtOrder,
		order.IdempotencyKey,
		order.ErrorMessage,
		order.CreatedAt,
	).Scan(&order.ID)
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetByIdempotencyKey возвращает ордер по ключу идемпотентности.
// Нужен при восстановлении после сбоя между отправкой и записью статуса.
func (r *OrderRepository) GetByIdempotencyKey(key string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	order, err := scanOrder(r.db.QueryRow(query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// List возвращает ордера постранично, новые первыми
func (r *OrderRepository) List(limit, offset int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	return r.queryOrders(query, limit, offset)
}

// ListByStatus возвращает ордера с указанным статусом, новые первыми
func (r *OrderRepository) ListByStatus(status string, limit int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryOrders(query, status, limit)
}

// ListByMarket возвращает ордера рынка, новые первыми
func (r *OrderRepository) ListByMarket(market string, limit int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE market = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryOrders(query, market, limit)
}

// ListSubmittedBefore возвращает SUBMITTED-ордера созданные до cutoff,
// старые первыми. Кандидаты фоновой сверки.
func (r *OrderRepository) ListSubmittedBefore(cutoff time.Time, limit int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`

	return r.queryOrders(query, models.OrderStatusSubmitted, cutoff, limit)
}

// CountByStatus возвращает количество ордеров с указанным статусом
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateStatus обновляет только статус ордера
func (r *OrderRepository) UpdateStatus(id int64, status string) error {
	result, err := r.db.Exec(`UPDATE orders SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// SetSubmitted переводит ордер в SUBMITTED и записывает exchange_order_id.
// Условие exchange_order_id IS NULL гарантирует запись ровно один раз:
// повторный вызов вернёт ErrAlreadySubmitted.
func (r *OrderRepository) SetSubmitted(id int64, exchangeOrderID string) error {
	query := `
		UPDATE orders
		SET status = $1, exchange_order_id = $2
		WHERE id = $3 AND exchange_order_id IS NULL`

	result, err := r.db.Exec(query, models.OrderStatusSubmitted, exchangeOrderID, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlreadySubmitted
	}

	return nil
}

// SetFailed переводит ордер в FAILED с сообщением об ошибке
func (r *OrderRepository) SetFailed(id int64, errorMessage string) error {
	query := `
		UPDATE orders
		SET status = $1, error_message = NULLIF($2, '')
		WHERE id = $3`

	result, err := r.db.Exec(query, models.OrderStatusFailed, errorMessage, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// GetForUpdateTx возвращает ордер под блокировкой строки.
// Первый шаг применения к позиции: порядок блокировок
// всегда orders -> positions -> daily_stats.
func (r *OrderRepository) GetForUpdateTx(tx *sql.Tx, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// MarkAppliedTx записывает терминальный статус, данные исполнения и
// отметку applied_at одним UPDATE внутри транзакции применения.
func (r *OrderRepository) MarkAppliedTx(tx *sql.Tx, order *models.Order) error {
	query := `
		UPDATE orders
		SET status = $1, executed_price = $2, executed_amount = $3, fee = $4,
			error_message = NULLIF($5, ''), applied_at = $6, executed_at = $7
		WHERE id = $8`

	result, err := tx.Exec(
		query,
		order.Status,
		order.ExecutedPrice,
		order.ExecutedAmount,
		order.Fee,
		order.ErrorMessage,
		order.AppliedAt,
		order.ExecutedAt,
		order.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}
