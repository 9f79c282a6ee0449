package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config определяет поведение повторных попыток.
//
// Экспоненциальный backoff:
// delay(n) = min(InitialDelay * Multiplier^n, MaxDelay) ± jitter
//
// Jitter размазывает повторы по времени, когда несколько клиентов
// сталкиваются с одной и той же ошибкой одновременно.
type Config struct {
	// MaxAttempts - максимальное число попыток, включая первую.
	// 0 или отрицательное = без ограничения (использовать только с контекстом)
	MaxAttempts int

	// InitialDelay - задержка перед второй попыткой.
	// По умолчанию: 100ms
	InitialDelay time.Duration

	// MaxDelay - верхняя граница задержки.
	// По умолчанию: 30s
	MaxDelay time.Duration

	// Multiplier - множитель экспоненциального роста.
	// По умолчанию: 2.0
	Multiplier float64

	// JitterFactor - доля случайной вариации задержки (0.0 - 1.0).
	// 0.0 = детерминированные задержки
	JitterFactor float64

	// RetryIf решает, повторять ли после данной ошибки.
	// nil = повторять любые ошибки
	RetryIf func(error) bool

	// OnRetry вызывается перед каждым повтором (логирование, метрики).
	OnRetry func(attempt int, err error, delay time.Duration)
}

// SubmitConfig - конфигурация для отправки ордера на биржу.
//
// 3 попытки, задержки ровно 1s и 2s (без jitter): последовательность
// повторов детерминирована и проверяема.
func SubmitConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0,
	}
}

// DefaultConfig - конфигурация для обычных API-запросов
// (балансы, тикеры): 4 попытки, задержки 100ms, 200ms, 400ms (+ jitter).
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// ConservativeConfig - конфигурация для дорогих внешних вызовов
// (генерация сигнала): 3 попытки, задержки 500ms, 1s (+ jitter).
func ConservativeConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// validate подставляет значения по умолчанию вместо некорректных.
func (c *Config) validate() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// calculateDelay вычисляет задержку после попытки attempt (нумерация с 0).
func (c *Config) calculateDelay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterFactor > 0 {
		jitter := delay * c.JitterFactor * (rand.Float64()*2 - 1)
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Do выполняет операцию с повторными попытками.
//
// Возвращает nil при успехе любой из попыток, иначе последнюю ошибку.
// Отмена контекста прерывает и ожидание задержки, и цикл попыток.
//
// Пример:
//
//	err := retry.Do(ctx, func() error {
//	    return gateway.PlaceOrder(ctx, req)
//	}, retry.SubmitConfig())
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// DoWithResult выполняет операцию, возвращающую значение, с повторами.
//
// Пример:
//
//	ack, err := retry.DoWithResult(ctx, func() (*exchange.OrderAck, error) {
//	    return gateway.PlaceOrder(ctx, req)
//	}, retry.SubmitConfig())
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var lastErr error
	var zero T

	for attempt := 0; cfg.MaxAttempts <= 0 || attempt < cfg.MaxAttempts; attempt++ {
		// Контекст проверяется перед каждой попыткой
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}

		// После последней попытки не ждём
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.calculateDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// ============================================================
// Классификация ошибок
// ============================================================

// RetryableError - контракт ошибок, знающих о своей повторяемости.
// Его реализует exchange.Error: сетевые сбои и rate-limit повторяемы,
// отклонённые биржей ордера - нет.
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable сообщает, имеет ли смысл повторять операцию.
//
// Возвращает true если:
// - ошибка (или обёрнутая в ней) реализует RetryableError с Retryable() == true
// - ошибка временная (Temporary() == true)
// - ошибка не несёт информации о повторяемости (повторяем по умолчанию)
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	type temporary interface {
		Temporary() bool
	}
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return true
}

// RetryIfNotContext не повторяет после отмены или таймаута контекста.
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ============================================================
// Обёртки ошибок
// ============================================================

// PermanentError помечает ошибку как неповторяемую.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// Permanent оборачивает ошибку в PermanentError.
//
// Пример:
//
//	if insufficientBalance {
//	    return retry.Permanent(errors.New("insufficient balance"))
//	}
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError помечает ошибку как повторяемую.
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string {
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

func (e *TemporaryError) Retryable() bool {
	return true
}

func (e *TemporaryError) Temporary() bool {
	return true
}

// Temporary оборачивает ошибку в TemporaryError.
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}
