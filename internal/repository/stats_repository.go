package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// Ошибки репозитория дневной статистики
var (
	ErrStatsNotFound = errors.New("daily stats not found")
)

const statsColumns = `id, stat_date, starting_balance, ending_balance, realized_pnl,
		trade_count, win_count, loss_count, is_trading_halted,
		COALESCE(halt_reason, ''), updated_at`

// StatsRepository - работа с таблицей daily_stats.
// Одна строка на UTC-дату, ключ stat_date.
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository создает новый экземпляр репозитория
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// dayString приводит время к ключу дня в UTC
func dayString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func scanStats(s rowScanner) (*models.DailyStats, error) {
	stats := &models.DailyStats{}
	err := s.Scan(
		&stats.ID,
		&stats.StatDate,
		&stats.StartingBalance,
		&stats.EndingBalance,
		&stats.RealizedPnl,
		&stats.TradeCount,
		&stats.WinCount,
		&stats.LossCount,
		&stats.IsTradingHalted,
		&stats.HaltReason,
		&stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// EnsureForDate идемпотентно создает строку дня со стартовым балансом.
// Вызывается на старте движка и при смене торгового дня;
// ending_balance начинает день равным starting_balance.
func (r *StatsRepository) EnsureForDate(date time.Time, startingBalance decimal.Decimal) error {
	query := `
		INSERT INTO daily_stats (stat_date, starting_balance, ending_balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stat_date) DO NOTHING`

	_, err := r.db.Exec(query, dayString(date), startingBalance, startingBalance, time.Now())
	return err
}

// GetByDate возвращает статистику за UTC-день
func (r *StatsRepository) GetByDate(date time.Time) (*models.DailyStats, error) {
	query := `SELECT ` + statsColumns + ` FROM daily_stats WHERE stat_date = $1`

	stats, err := scanStats(r.db.QueryRow(query, dayString(date)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, err
	}

	return stats, nil
}

// GetLatest возвращает статистику последнего торгового дня
func (r *StatsRepository) GetLatest() (*models.DailyStats, error) {
	query := `SELECT ` + statsColumns + ` FROM daily_stats ORDER BY stat_date DESC LIMIT 1`

	stats, err := scanStats(r.db.QueryRow(query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, err
	}

	return stats, nil
}

// ListRecent возвращает статистику последних дней, новые первыми
func (r *StatsRepository) ListRecent(limit int) ([]*models.DailyStats, error) {
	query := `SELECT ` + statsColumns + ` FROM daily_stats ORDER BY stat_date DESC LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.DailyStats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, stats)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// GetOrCreateForUpdateTx возвращает строку дня под блокировкой,
// создавая нулевую запись если день ещё не открыт.
// Последний шаг порядка блокировок orders -> positions -> daily_stats.
func (r *StatsRepository) GetOrCreateForUpdateTx(tx *sql.Tx, date time.Time) (*models.DailyStats, error) {
	insert := `
		INSERT INTO daily_stats (stat_date, updated_at)
		VALUES ($1, $2)
		ON CONFLICT (stat_date) DO NOTHING`

	if _, err := tx.Exec(insert, dayString(date), time.Now()); err != nil {
		return nil, err
	}

	query := `SELECT ` + statsColumns + ` FROM daily_stats WHERE stat_date = $1 FOR UPDATE`

	stats, err := scanStats(tx.QueryRow(query, dayString(date)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatsNotFound
		}
		return nil, err
	}

	return stats, nil
}

// UpdateTx записывает агрегаты дня под транзакцией применения.
// starting_balance не мутирует: он фиксируется при открытии дня.
func (r *StatsRepository) UpdateTx(tx *sql.Tx, stats *models.DailyStats) error {
	query := `
		UPDATE daily_stats
		SET ending_balance = $1, realized_pnl = $2, trade_count = $3,
			win_count = $4, loss_count = $5, is_trading_halted = $6,
			halt_reason = NULLIF($7, ''), updated_at = $8
		WHERE id = $9`

	stats.UpdatedAt = time.Now()

	result, err := tx.Exec(
		query,
		stats.EndingBalance,
		stats.RealizedPnl,
		stats.TradeCount,
		stats.WinCount,
		stats.LossCount,
		stats.IsTradingHalted,
		stats.HaltReason,
		stats.UpdatedAt,
		stats.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrStatsNotFound
	}

	return nil
}

// SetHalted выставляет или снимает флаг остановки торговли за день.
// Ручное управление через REST API.
func (r *StatsRepository) SetHalted(date time.Time, halted bool, reason string) error {
	query := `
		UPDATE daily_stats
		SET is_trading_halted = $1, halt_reason = NULLIF($2, ''), updated_at = $3
		WHERE stat_date = $4`

	result, err := r.db.Exec(query, halted, reason, time.Now(), dayString(date))
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrStatsNotFound
	}

	return nil
}

// SetEndingBalance обновляет текущую оценку капитала за день.
// Вызывается периодической задачей с живым балансом биржи,
// сетевые запросы в транзакцию применения не допускаются.
func (r *StatsRepository) SetEndingBalance(date time.Time, balance decimal.Decimal) error {
	query := `
		UPDATE daily_stats
		SET ending_balance = $1, updated_at = $2
		WHERE stat_date = $3`

	result, err := r.db.Exec(query, balance, time.Now(), dayString(date))
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrStatsNotFound
	}

	return nil
}
