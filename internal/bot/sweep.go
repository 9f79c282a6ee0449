package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/config"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/exchange"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/utils"
)

// Максимум ордеров за один проход сверки
const sweepBatchSize = 100

// Sweeper - фоновая сверка застрявших ордеров.
//
// Ордер, чьё ожидание исполнения истекло (или чей процесс упал между
// отправкой и опросом), остаётся SUBMITTED. Свип периодически запрашивает
// его статус у биржи и доводит до терминала тем же путём финализации,
// что и исполнитель: защита applied_at исключает двойное применение.
//
// Ошибки опроса изолированы по ордерам: отказ одного запроса откладывает
// только этот ордер до следующего прохода.
type Sweeper struct {
	cfg      config.EngineConfig
	gateway  exchange.Gateway
	orders   *repository.OrderRepository
	executor *Executor
	logger   *zap.Logger
}

// NewSweeper создаёт сверку ордеров.
func NewSweeper(
	cfg config.EngineConfig,
	gateway exchange.Gateway,
	orders *repository.OrderRepository,
	executor *Executor,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		gateway:  gateway,
		orders:   orders,
		executor: executor,
		logger:   logger.Named("sweep"),
	}
}

// Sweep выполняет один проход сверки и возвращает число ордеров,
// доведённых до терминального статуса.
//
// Ордера младше SweepMinAge пропускаются - ими ещё занимается
// исполнитель. Ордера старше StaleAfter только репортятся: их статус
// не сходится слишком долго, нужен ручной разбор.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.SweepMinAge)
	orders, err := s.orders.ListSubmittedBefore(cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list submitted orders: %w", err)
	}

	if len(orders) == 0 {
		s.refreshGauge()
		return 0, nil
	}

	staleCutoff := time.Now().Add(-s.cfg.StaleAfter)
	resolved := 0
	stale := 0

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}

		if order.CreatedAt.Before(staleCutoff) {
			stale++
			s.logger.Warn("order stuck beyond stale window, manual review needed",
				utils.OrderID(order.ID),
				utils.Market(order.Market),
				utils.ExchangeOrderID(order.ExchangeOrderID),
				zap.Time("created_at", order.CreatedAt))
			continue
		}

		st, err := s.gateway.GetOrder(ctx, order.ExchangeOrderID)
		if err != nil {
			SweepErrorsTotal.Inc()
			s.logger.Warn("sweep poll failed, order deferred to next pass",
				utils.OrderID(order.ID), zap.Error(err))
			continue
		}

		if !exchange.IsTerminalState(st.State) {
			continue
		}

		result, err := s.executor.Finalize(ctx, order.ID, st)
		if err != nil {
			SweepErrorsTotal.Inc()
			s.logger.Error("sweep finalize failed",
				utils.OrderID(order.ID), zap.Error(err))
			continue
		}

		if !result.AlreadyApplied {
			resolved++
			SweepResolvedTotal.Inc()
			s.logger.Info("sweep resolved order",
				utils.OrderID(order.ID),
				utils.Status(result.Order.Status))
		}
	}

	if resolved > 0 || stale > 0 {
		s.logger.Info("sweep pass complete",
			zap.Int("checked", len(orders)),
			zap.Int("resolved", resolved),
			zap.Int("stale", stale))
	}

	s.refreshGauge()
	return resolved, nil
}

func (s *Sweeper) refreshGauge() {
	if count, err := s.orders.CountByStatus(models.OrderStatusSubmitted); err == nil {
		SubmittedOrders.Set(float64(count))
	}
}
