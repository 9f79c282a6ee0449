package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task - периодическая фоновая задача движка.
//
// Каждая задача владеет собственным тикером и каналом остановки;
// движок только составляет их вместе. Паника внутри запуска гасится
// с логом error-уровня: одна неудачная итерация не убивает процесс.
type Task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewTask создаёт задачу с именем, интервалом и функцией запуска.
func NewTask(name string, interval time.Duration, run func(ctx context.Context), logger *zap.Logger) *Task {
	return &Task{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logger.Named("task." + name),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает цикл задачи в отдельной горутине.
func (t *Task) Start(ctx context.Context) {
	t.logger.Info("task started", zap.Duration("interval", t.interval))
	go t.loop(ctx)
}

func (t *Task) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("task stopped", zap.String("reason", "context cancelled"))
			return
		case <-t.stop:
			t.logger.Info("task stopped", zap.String("reason", "stop requested"))
			return
		case <-ticker.C:
			t.safeRun(ctx)
		}
	}
}

func (t *Task) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("task run panicked", zap.Any("panic", r))
		}
	}()

	started := time.Now()
	t.run(ctx)

	elapsed := time.Since(started)
	if elapsed > t.interval {
		t.logger.Warn("task run exceeded its interval",
			zap.Duration("elapsed", elapsed),
			zap.Duration("interval", t.interval))
	}
}

// Stop останавливает задачу и дожидается завершения текущего запуска.
// Повторные вызовы безопасны.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	<-t.done
}

// Name возвращает имя задачи.
func (t *Task) Name() string {
	return t.name
}
