package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
)

// Ошибки сервиса управления рисками
var (
	ErrInvalidRiskParams = errors.New("invalid risk params")
	ErrNoTradingDay      = errors.New("trading day is not open yet")
)

// RiskService - управление параметрами риска и ручная остановка торговли.
//
// Сама оценка рисков выполняется чистой функцией bot.Evaluate внутри
// конвейера исполнения; сервис только администрирует её входы:
// - чтение и изменение параметров риска (с валидацией диапазонов)
// - ручная остановка и возобновление торговли
// - журнал риск-событий
//
// Автоматическая остановка по дневному лимиту живёт в транзакции
// применения ордера (internal/bot/ledger.go) и через сервис не проходит.
type RiskService struct {
	params RiskParamsStore
	events RiskEventStore
	stats  StatsStore
	logger *zap.Logger
}

// NewRiskService создает новый экземпляр RiskService.
func NewRiskService(params RiskParamsStore, events RiskEventStore, stats StatsStore, logger *zap.Logger) *RiskService {
	return &RiskService{
		params: params,
		events: events,
		stats:  stats,
		logger: logger.Named("risk_service"),
	}
}

// GetParams возвращает текущие параметры риска.
func (s *RiskService) GetParams() (*models.RiskParams, error) {
	return s.params.Get()
}

// UpdateParams заменяет параметры риска после валидации диапазонов.
//
// Новые параметры действуют с первой же оценки после коммита:
// исполнитель перечитывает их перед каждой сделкой.
func (s *RiskService) UpdateParams(params *models.RiskParams) (*models.RiskParams, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRiskParams, err)
	}

	if err := s.params.Update(params); err != nil {
		return nil, err
	}

	s.logger.Info("risk params updated",
		zap.String("position_size_min_pct", params.PositionSizeMinPct.String()),
		zap.String("position_size_max_pct", params.PositionSizeMaxPct.String()),
		zap.String("daily_loss_limit_pct", params.DailyLossLimitPct.String()),
		zap.String("order_max_krw", params.OrderMaxKRW.String()))

	return s.params.Get()
}

// HaltTrading вручную останавливает торговлю текущего дня.
//
// Все новые ордера отклоняются первой же проверкой риск-оценщика
// до сброса флага. Причина остаётся в журнале риск-событий.
func (s *RiskService) HaltTrading(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual halt by operator"
	}

	if err := s.stats.SetHalted(time.Now().UTC(), true, models.HaltReasonManual); err != nil {
		if errors.Is(err, repository.ErrStatsNotFound) {
			return ErrNoTradingDay
		}
		return err
	}

	one := decimal.NewFromInt(1)
	event := &models.RiskEvent{
		EventType:    models.RiskEventTradingHalted,
		TriggerValue: one,
		Threshold:    one,
		Message:      reason,
	}
	if err := s.events.Create(event); err != nil {
		s.logger.Error("failed to record manual halt event", zap.Error(err))
	}

	s.logger.Warn("trading halted manually", zap.String("reason", reason))
	return nil
}

// ResumeTrading снимает остановку торговли текущего дня.
//
// Снимает и ручную остановку, и остановку по дневному лимиту;
// лимит сработает снова на первом же ордере, если убыток дня
// всё ещё за порогом.
func (s *RiskService) ResumeTrading() error {
	if err := s.stats.SetHalted(time.Now().UTC(), false, ""); err != nil {
		if errors.Is(err, repository.ErrStatsNotFound) {
			return ErrNoTradingDay
		}
		return err
	}

	s.logger.Info("trading resumed by operator")
	return nil
}

// IsHalted сообщает, остановлена ли торговля текущего дня.
// Отсутствие строки дня трактуется как работающая торговля.
func (s *RiskService) IsHalted() (bool, string, error) {
	day, err := s.stats.GetByDate(time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrStatsNotFound) {
			return false, "", nil
		}
		return false, "", err
	}
	return day.IsTradingHalted, day.HaltReason, nil
}

// GetEvents возвращает журнал риск-событий.
//
// Параметры:
// - eventType: фильтр по типу события, пустая строка - без фильтра
// - limit: максимальное количество записей (по умолчанию 50, максимум 200)
func (s *RiskService) GetEvents(eventType string, limit int) ([]*models.RiskEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	eventType = strings.ToUpper(strings.TrimSpace(eventType))

	var (
		events []*models.RiskEvent
		err    error
	)
	if eventType != "" {
		events, err = s.events.ListByType(eventType, limit)
	} else {
		events, err = s.events.ListRecent(limit)
	}
	if err != nil {
		return nil, err
	}

	if events == nil {
		events = []*models.RiskEvent{}
	}
	return events, nil
}
