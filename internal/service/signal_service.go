package service

import (
	"errors"
	"strings"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
)

// ErrSignalNotFound возвращается, когда сигнал не найден.
var ErrSignalNotFound = errors.New("signal not found")

// SignalService предоставляет чтение журнала сигналов ИИ.
// Генерация сигналов - задача движка; сервис только показывает историю.
type SignalService struct {
	signals SignalStore
}

// NewSignalService создает новый экземпляр SignalService.
func NewSignalService(signals SignalStore) *SignalService {
	return &SignalService{signals: signals}
}

// GetSignals возвращает последние сигналы (новые сверху).
func (s *SignalService) GetSignals(limit int) ([]*models.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	signals, err := s.signals.ListRecent(limit)
	if err != nil {
		return nil, err
	}
	if signals == nil {
		signals = []*models.Signal{}
	}
	return signals, nil
}

// GetSignal возвращает сигнал по ID.
func (s *SignalService) GetSignal(id int64) (*models.Signal, error) {
	if id <= 0 {
		return nil, ErrSignalNotFound
	}

	signal, err := s.signals.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrSignalNotFound) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return signal, nil
}

// GetLatestForMarket возвращает последний сигнал по рынку.
func (s *SignalService) GetLatestForMarket(market string) (*models.Signal, error) {
	market = strings.ToUpper(strings.TrimSpace(market))

	signal, err := s.signals.GetLatestByMarket(market)
	if err != nil {
		if errors.Is(err, repository.ErrSignalNotFound) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return signal, nil
}
