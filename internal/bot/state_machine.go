package bot

import "github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"

// ValidTransitions определяет допустимые переходы статусов ордера.
//
// PENDING -> FAILED минует биржу: отказ валидации или риск-контроля.
// Терминальные статусы переходов не имеют - ордер неизменен навсегда.
var ValidTransitions = map[string][]string{
	models.OrderStatusPending:   {models.OrderStatusSubmitted, models.OrderStatusFailed},
	models.OrderStatusSubmitted: {models.OrderStatusFilled, models.OrderStatusCancelled, models.OrderStatusFailed},
	models.OrderStatusFilled:    {},
	models.OrderStatusCancelled: {},
	models.OrderStatusFailed:    {},
}

// CanTransition проверяет допустимость перехода.
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus возвращает true для статусов, из которых нет переходов.
func IsTerminalStatus(s string) bool {
	return s == models.OrderStatusFilled || s == models.OrderStatusCancelled || s == models.OrderStatusFailed
}

// StatusInfo возвращает описание статуса для UI.
func StatusInfo(s string) string {
	switch s {
	case models.OrderStatusPending:
		return "Ордер создан, ожидает отправки на биржу"
	case models.OrderStatusSubmitted:
		return "Ордер принят биржей, ожидание исполнения"
	case models.OrderStatusFilled:
		return "Ордер исполнен"
	case models.OrderStatusCancelled:
		return "Ордер отменён биржей"
	case models.OrderStatusFailed:
		return "Ордер не выполнен"
	default:
		return "Неизвестный статус"
	}
}
