package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Группы эндпоинтов Upbit API. У каждой группы собственный лимит,
// превышение любого из них даёт HTTP 429 на всю группу.
const (
	GroupOrder     = "order"     // POST /v1/orders, DELETE /v1/order
	GroupPrivate   = "private"   // GET /v1/order, GET /v1/accounts
	GroupQuotation = "quotation" // GET /v1/ticker, GET /v1/candles/*
)

// Лимиты Upbit на секундное окно (официальная документация).
const (
	UpbitOrderRate     = 8.0
	UpbitPrivateRate   = 30.0
	UpbitQuotationRate = 10.0
)

// RateLimiter - token bucket для контроля частоты запросов к Upbit.
//
// Ведро наполняется с постоянной скоростью rate токенов/сек до ёмкости
// burst, каждый запрос потребляет один токен. Upbit считает лимиты по
// секундным окнам, поэтому burst держим равным rate: краткий всплеск
// сверх окна всё равно вернёт 429.
type RateLimiter struct {
	rate       float64 // токенов в секунду
	burst      float64 // ёмкость ведра
	tokens     float64 // текущее количество токенов
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter создаёт limiter со скоростью rate req/sec и ёмкостью burst.
// Невалидные параметры заменяются безопасными значениями.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 || burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst, // начинаем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет токены пропорционально прошедшему времени.
// Вызывается под lock'ом.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()

	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}

	rl.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста.
// Возвращает nil когда токен получен, иначе ctx.Err().
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// Время до появления следующего токена
		waitTime := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-time.After(waitTime):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow проверяет доступность токена без блокировки.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	return false
}

// Tokens возвращает текущее количество доступных токенов.
// Используется для мониторинга.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// Rate возвращает скорость пополнения (токенов/сек).
func (rl *RateLimiter) Rate() float64 {
	return rl.rate
}

// Burst возвращает ёмкость ведра.
func (rl *RateLimiter) Burst() float64 {
	return rl.burst
}

// ============================================================
// GroupLimiter - лимитер по группам эндпоинтов
// ============================================================

// GroupLimiter держит отдельный RateLimiter на каждую группу эндпоинтов.
// Запрос к группе без лимитера проходит без ожидания.
type GroupLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

// NewGroupLimiter создаёт пустой GroupLimiter.
func NewGroupLimiter() *GroupLimiter {
	return &GroupLimiter{
		limiters: make(map[string]*RateLimiter),
	}
}

// NewUpbitLimiter создаёт GroupLimiter с лимитами Upbit:
// order 8 req/sec, private 30 req/sec, quotation 10 req/sec.
func NewUpbitLimiter() *GroupLimiter {
	gl := NewGroupLimiter()
	gl.Add(GroupOrder, UpbitOrderRate, UpbitOrderRate)
	gl.Add(GroupPrivate, UpbitPrivateRate, UpbitPrivateRate)
	gl.Add(GroupQuotation, UpbitQuotationRate, UpbitQuotationRate)
	return gl
}

// Add регистрирует limiter для группы.
func (gl *GroupLimiter) Add(group string, rate, burst float64) {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	gl.limiters[group] = NewRateLimiter(rate, burst)
}

// Wait ожидает токен для указанной группы.
func (gl *GroupLimiter) Wait(ctx context.Context, group string) error {
	gl.mu.RLock()
	limiter, ok := gl.limiters[group]
	gl.mu.RUnlock()

	if !ok {
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow проверяет доступность токена для группы без блокировки.
func (gl *GroupLimiter) Allow(group string) bool {
	gl.mu.RLock()
	limiter, ok := gl.limiters[group]
	gl.mu.RUnlock()

	if !ok {
		return true
	}

	return limiter.Allow()
}

// Get возвращает limiter группы или nil.
func (gl *GroupLimiter) Get(group string) *RateLimiter {
	gl.mu.RLock()
	defer gl.mu.RUnlock()
	return gl.limiters[group]
}
