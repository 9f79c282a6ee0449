package bot

import (
	"errors"
	"fmt"
)

// Ошибки торгового конвейера.
//
// Классификация определяет поведение исполнителя:
//   - ValidationError: ордер создаётся со статусом FAILED, повторов нет;
//   - exchange.Error с Retryable(): повторная отправка через pkg/retry;
//   - InvariantViolation: транзакция применения откатывается целиком,
//     пишется SYSTEM_ERROR риск-событие и критическое уведомление.

// ErrAlreadyApplied возвращается при попытке повторно применить ордер
// к позиции. Не ошибка по сути: гонка исполнителя и свипа штатна,
// второй участник просто пропускает работу.
var ErrAlreadyApplied = errors.New("order already applied to ledger")

// ErrNotCancellable возвращается при запросе отмены ордера, которого
// нет на бирже: PENDING ещё не отправлен, терминальные уже завершены.
var ErrNotCancellable = errors.New("order is not cancellable")

// ValidationError - ошибка проверки намерения до контакта с биржей:
// недостаточный баланс, некорректные параметры, отказ риск-контроля.
// Никогда не повторяется.
type ValidationError struct {
	Reason  string // INSUFFICIENT_BALANCE, BAD_REQUEST либо тип риск-события
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Message)
}

// Retryable сообщает pkg/retry, что повторять бессмысленно.
func (e *ValidationError) Retryable() bool {
	return false
}

// NewValidationError создаёт ошибку валидации.
func NewValidationError(reason, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvariantViolation - нарушение инварианта данных: продажа больше
// позиции, недопустимый переход статуса. Сигнал о рассинхронизации
// с биржей или о баге; обновление отклоняется, состояние в БД
// остаётся прежним до вмешательства оператора.
type InvariantViolation struct {
	Rule    string // SELL_EXCEEDS_POSITION, BAD_TRANSITION
	Message string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s: %s", e.Rule, e.Message)
}

func (e *InvariantViolation) Retryable() bool {
	return false
}

// NewInvariantViolation создаёт ошибку нарушения инварианта.
func NewInvariantViolation(rule, format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	}
}

// Причины ValidationError помимо типов риск-событий
const (
	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
	ReasonBadRequest          = "BAD_REQUEST"
)

// Правила InvariantViolation
const (
	RuleSellExceedsPosition = "SELL_EXCEEDS_POSITION"
	RuleBadTransition       = "BAD_TRANSITION"
)
