package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// validator.go - валидация входных данных
//
// Назначение:
// Проверка корректности данных, приходящих из HTTP API и конфигурации,
// до того как они попадут в торговый конвейер.

// ValidateMarket проверяет формат кода рынка Upbit: "KRW-BTC".
// Ожидается валюта котировки, дефис и код актива, всё в верхнем регистре.
func ValidateMarket(market string) error {
	if market == "" {
		return fmt.Errorf("market is empty")
	}

	parts := strings.Split(market, "-")
	if len(parts) != 2 {
		return fmt.Errorf("market %q must have format QUOTE-BASE, e.g. KRW-BTC", market)
	}

	for _, part := range parts {
		if len(part) < 2 || len(part) > 10 {
			return fmt.Errorf("market %q has invalid segment %q", market, part)
		}
		for _, r := range part {
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return fmt.Errorf("market %q contains invalid character %q", market, r)
			}
		}
	}
	return nil
}

// ValidateSide проверяет сторону сделки.
func ValidateSide(side string) error {
	switch side {
	case "BUY", "SELL":
		return nil
	default:
		return fmt.Errorf("side must be BUY or SELL, got %q", side)
	}
}

// ValidateOrdType проверяет тип ордера.
func ValidateOrdType(ordType string) error {
	switch ordType {
	case "market", "limit":
		return nil
	default:
		return fmt.Errorf("ord_type must be market or limit, got %q", ordType)
	}
}

// ValidateAmount проверяет, что сумма/объём строго положительны.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("amount must be positive, got %s", amount)
	}
	return nil
}

// ValidateConfidence проверяет уверенность сигнала в диапазоне [0, 1].
func ValidateConfidence(confidence decimal.Decimal) error {
	if confidence.IsNegative() || confidence.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("confidence must be in [0, 1], got %s", confidence)
	}
	return nil
}

// ValidateAPIKey выполняет базовую проверку API-ключа:
// непустой, без пробелов, разумная длина.
func ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("api key is empty")
	}
	if len(key) < 16 {
		return fmt.Errorf("api key is too short")
	}
	if strings.ContainsAny(key, " \t\n") {
		return fmt.Errorf("api key contains whitespace")
	}
	return nil
}
