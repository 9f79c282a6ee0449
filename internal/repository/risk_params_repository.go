package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// Ошибки репозитория риск-параметров
var (
	ErrRiskParamsNotFound = errors.New("risk params not found")
)

// RiskParamsRepository - работа с таблицей risk_params.
// Всегда одна строка с id=1: параметры глобальные, правятся через API
// и перечитываются оценщиком риска перед каждой проверкой.
type RiskParamsRepository struct {
	db *sql.DB
}

// NewRiskParamsRepository создает новый экземпляр репозитория
func NewRiskParamsRepository(db *sql.DB) *RiskParamsRepository {
	return &RiskParamsRepository{db: db}
}

// Get возвращает текущие параметры риска.
// Если строки ещё нет, создаёт её со значениями по умолчанию.
func (r *RiskParamsRepository) Get() (*models.RiskParams, error) {
	query := `
		SELECT position_size_min_pct, position_size_max_pct, stop_loss_pct,
			daily_loss_limit_pct, volatility_threshold_pct, min_confidence,
			order_max_krw, updated_at
		FROM risk_params
		WHERE id = 1`

	params := &models.RiskParams{}
	err := r.db.QueryRow(query).Scan(
		&params.PositionSizeMinPct,
		&params.PositionSizeMaxPct,
		&params.StopLossPct,
		&params.DailyLossLimitPct,
		&params.VolatilityThresholdPct,
		&params.MinConfidence,
		&params.OrderMaxKRW,
		&params.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.createDefault()
		}
		return nil, err
	}

	return params, nil
}

// Update перезаписывает параметры риска
func (r *RiskParamsRepository) Update(params *models.RiskParams) error {
	query := `
		UPDATE risk_params
		SET position_size_min_pct = $1, position_size_max_pct = $2, stop_loss_pct = $3,
			daily_loss_limit_pct = $4, volatility_threshold_pct = $5, min_confidence = $6,
			order_max_krw = $7, updated_at = $8
		WHERE id = 1`

	params.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		query,
		params.PositionSizeMinPct,
		params.PositionSizeMaxPct,
		params.StopLossPct,
		params.DailyLossLimitPct,
		params.VolatilityThresholdPct,
		params.MinConfidence,
		params.OrderMaxKRW,
		params.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRiskParamsNotFound
	}

	return nil
}

// Seed идемпотентно создает строку параметров.
// Вызывается на старте со значениями из окружения: существующая
// строка не перезаписывается, правки через API имеют приоритет.
func (r *RiskParamsRepository) Seed(params models.RiskParams) error {
	query := `
		INSERT INTO risk_params (id, position_size_min_pct, position_size_max_pct,
			stop_loss_pct, daily_loss_limit_pct, volatility_threshold_pct,
			min_confidence, order_max_krw, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Exec(
		query,
		params.PositionSizeMinPct,
		params.PositionSizeMaxPct,
		params.StopLossPct,
		params.DailyLossLimitPct,
		params.VolatilityThresholdPct,
		params.MinConfidence,
		params.OrderMaxKRW,
		time.Now(),
	)
	return err
}

// createDefault создает строку параметров со значениями по умолчанию
func (r *RiskParamsRepository) createDefault() (*models.RiskParams, error) {
	params := models.DefaultRiskParams()
	params.UpdatedAt = time.Now()

	if err := r.Seed(params); err != nil {
		return nil, err
	}

	return &params, nil
}
