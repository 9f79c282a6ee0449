package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// Ошибки репозитория сигналов
var (
	ErrSignalNotFound = errors.New("signal not found")
)

// SignalRepository - работа с таблицей signals.
// Каждый ответ модели сохраняется до принятия торгового решения,
// чтобы ордер мог сослаться на сигнал-источник.
type SignalRepository struct {
	db *sql.DB
}

// NewSignalRepository создает новый экземпляр репозитория
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

func scanSignal(s rowScanner) (*models.Signal, error) {
	signal := &models.Signal{}
	err := s.Scan(
		&signal.ID,
		&signal.Market,
		&signal.SignalType,
		&signal.Confidence,
		&signal.Reasoning,
		&signal.ModelName,
		&signal.Tokens,
		&signal.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return signal, nil
}

// Create сохраняет сигнал
func (r *SignalRepository) Create(signal *models.Signal) error {
	query := `
		INSERT INTO signals (market, signal_type, confidence, reasoning, model_name, tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	signal.CreatedAt = time.Now()

	return r.db.QueryRow(
		query,
		signal.Market,
		signal.SignalType,
		signal.Confidence,
		signal.Reasoning,
		signal.ModelName,
		signal.Tokens,
		signal.CreatedAt,
	).Scan(&signal.ID)
}

// GetByID возвращает сигнал по ID
func (r *SignalRepository) GetByID(id int64) (*models.Signal, error) {
	query := `
		SELECT id, market, signal_type, confidence, reasoning, model_name, tokens, created_at
		FROM signals
		WHERE id = $1`

	signal, err := scanSignal(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}

	return signal, nil
}

// GetLatestByMarket возвращает последний сигнал рынка
func (r *SignalRepository) GetLatestByMarket(market string) (*models.Signal, error) {
	query := `
		SELECT id, market, signal_type, confidence, reasoning, model_name, tokens, created_at
		FROM signals
		WHERE market = $1
		ORDER BY created_at DESC
		LIMIT 1`

	signal, err := scanSignal(r.db.QueryRow(query, market))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}

	return signal, nil
}

// ListRecent возвращает последние сигналы, новые первыми
func (r *SignalRepository) ListRecent(limit int) ([]*models.Signal, error) {
	query := `
		SELECT id, market, signal_type, confidence, reasoning, model_name, tokens, created_at
		FROM signals
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, signal)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return signals, nil
}
