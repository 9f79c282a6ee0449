package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
)

// PositionRepository - работа с таблицей positions.
// По одной строке на рынок, количество не бывает отрицательным
// (CHECK в схеме дублирует проверку в коде применения).
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func scanPosition(s rowScanner) (*models.Position, error) {
	position := &models.Position{}
	err := s.Scan(
		&position.ID,
		&position.Market,
		&position.Quantity,
		&position.AvgBuyPrice,
		&position.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return position, nil
}

// GetByMarket возвращает позицию по рынку
func (r *PositionRepository) GetByMarket(market string) (*models.Position, error) {
	query := `
		SELECT id, market, quantity, avg_buy_price, updated_at
		FROM positions
		WHERE market = $1`

	position, err := scanPosition(r.db.QueryRow(query, market))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	return position, nil
}

// GetAll возвращает все позиции, включая нулевые
func (r *PositionRepository) GetAll() ([]*models.Position, error) {
	query := `
		SELECT id, market, quantity, avg_buy_price, updated_at
		FROM positions
		ORDER BY market`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}

// GetOrCreateForUpdateTx возвращает позицию рынка под блокировкой строки,
// создавая нулевую запись при первом обращении.
func (r *PositionRepository) GetOrCreateForUpdateTx(tx *sql.Tx, market string) (*models.Position, error) {
	insert := `
		INSERT INTO positions (market, updated_at)
		VALUES ($1, $2)
		ON CONFLICT (market) DO NOTHING`

	if _, err := tx.Exec(insert, market, time.Now()); err != nil {
		return nil, err
	}

	query := `
		SELECT id, market, quantity, avg_buy_price, updated_at
		FROM positions
		WHERE market = $1
		FOR UPDATE`

	position, err := scanPosition(tx.QueryRow(query, market))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	return position, nil
}

// UpdateTx записывает количество и среднюю цену покупки под транзакцией применения
func (r *PositionRepository) UpdateTx(tx *sql.Tx, position *models.Position) error {
	query := `
		UPDATE positions
		SET quantity = $1, avg_buy_price = $2, updated_at = $3
		WHERE id = $4`

	position.UpdatedAt = time.Now()

	result, err := tx.Exec(query, position.Quantity, position.AvgBuyPrice, position.UpdatedAt, position.ID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPositionNotFound
	}

	return nil
}
