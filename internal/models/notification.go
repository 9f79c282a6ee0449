package models

import "time"

// Notification представляет уведомление для операторов.
// Доставка (БД, Discord, WebSocket) выполняется диспетчером в режиме
// fire-and-forget: сбой доставки никогда не влияет на торговый конвейер.
type Notification struct {
	ID        int64             `json:"id" db:"id"`
	Type      string            `json:"type" db:"ntype"`
	Severity  string            `json:"severity" db:"severity"` // info, warning, critical
	Title     string            `json:"title" db:"title"`
	Message   string            `json:"message" db:"message"`
	Metadata  map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Типы уведомлений
const (
	NotifyOrderFilled   = "order_filled"
	NotifyOrderFailed   = "order_failed"
	NotifyOrderDenied   = "order_denied"
	NotifyRiskEvent     = "risk_event"
	NotifyDailyLimit    = "daily_limit"
	NotifyEngineStarted = "engine_started"
	NotifyEngineStopped = "engine_stopped"
	NotifySystemError   = "system_error"
)

// Уровни важности
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
