package service

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
)

// ErrStatsNotFound возвращается, когда строки торгового дня ещё нет.
var ErrStatsNotFound = errors.New("daily stats not found")

// PerformanceSummary - сводка торговли за период.
type PerformanceSummary struct {
	Days        int             `json:"days"`
	TotalPnl    decimal.Decimal `json:"total_pnl"`
	TradeCount  int             `json:"trade_count"`
	WinCount    int             `json:"win_count"`
	LossCount   int             `json:"loss_count"`
	WinRatePct  decimal.Decimal `json:"win_rate_pct"`
	BestDayPnl  decimal.Decimal `json:"best_day_pnl"`
	WorstDayPnl decimal.Decimal `json:"worst_day_pnl"`
}

// StatsService предоставляет чтение дневной статистики торговли.
//
// Строки daily_stats пишет только транзакция применения ордера и
// задача ролловера; сервис их никогда не изменяет, кроме флага
// остановки торговли (см. RiskService).
type StatsService struct {
	stats StatsStore
}

// NewStatsService создает новый экземпляр StatsService.
func NewStatsService(stats StatsStore) *StatsService {
	return &StatsService{stats: stats}
}

// GetToday возвращает статистику текущего торгового дня (UTC).
func (s *StatsService) GetToday() (*models.DailyStats, error) {
	day, err := s.stats.GetByDate(time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrStatsNotFound) {
			return nil, ErrStatsNotFound
		}
		return nil, err
	}
	return day, nil
}

// GetHistory возвращает статистику последних дней (новые сверху).
//
// Параметры:
// - days: глубина истории (по умолчанию 30, максимум 365)
func (s *StatsService) GetHistory(days int) ([]*models.DailyStats, error) {
	if days <= 0 {
		days = 30
	}
	if days > 365 {
		days = 365
	}

	history, err := s.stats.ListRecent(days)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []*models.DailyStats{}
	}
	return history, nil
}

// GetPerformance возвращает агрегированную сводку за последние дни.
//
// Win rate считается от суммы выигрышей и проигрышей: сделки
// с нулевым PnL в знаменатель не входят.
func (s *StatsService) GetPerformance(days int) (*PerformanceSummary, error) {
	history, err := s.GetHistory(days)
	if err != nil {
		return nil, err
	}

	summary := &PerformanceSummary{Days: len(history)}
	for i, day := range history {
		summary.TotalPnl = summary.TotalPnl.Add(day.RealizedPnl)
		summary.TradeCount += day.TradeCount
		summary.WinCount += day.WinCount
		summary.LossCount += day.LossCount

		if i == 0 || day.RealizedPnl.GreaterThan(summary.BestDayPnl) {
			summary.BestDayPnl = day.RealizedPnl
		}
		if i == 0 || day.RealizedPnl.LessThan(summary.WorstDayPnl) {
			summary.WorstDayPnl = day.RealizedPnl
		}
	}

	decided := summary.WinCount + summary.LossCount
	if decided > 0 {
		summary.WinRatePct = decimal.NewFromInt(int64(summary.WinCount)).
			Div(decimal.NewFromInt(int64(decided))).
			Mul(decimal.NewFromInt(100))
	}

	return summary, nil
}
