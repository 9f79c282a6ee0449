package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

// ============ OrderTrigger Tests ============

func TestOrderTrigger_Manual(t *testing.T) {
	trig := ManualTrigger()

	if _, ok := trig.SignalID(); ok {
		t.Error("ручной триггер не должен иметь сигнала-источника")
	}
	if ref := trig.SignalRef(); ref != nil {
		t.Errorf("SignalRef: ожидали nil, получили %v", *ref)
	}
}

func TestOrderTrigger_Signal(t *testing.T) {
	trig := SignalTrigger(42)

	id, ok := trig.SignalID()
	if !ok {
		t.Fatal("сигнальный триггер должен иметь сигнал-источник")
	}
	if id != 42 {
		t.Errorf("SignalID: ожидали 42, получили %d", id)
	}

	ref := trig.SignalRef()
	if ref == nil || *ref != 42 {
		t.Errorf("SignalRef: ожидали указатель на 42, получили %v", ref)
	}
}

// ============ Order Tests ============

func TestOrder_Notional(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		price decimal.Decimal
		want  decimal.Decimal
	}{
		{
			name: "market BUY - сумма уже в KRW",
			order: Order{
				Side:            SideBuy,
				OrdType:         OrdTypeMarket,
				RequestedAmount: decimal.NewFromInt(100000),
			},
			price: decimal.NewFromInt(50000000),
			want:  decimal.NewFromInt(100000),
		},
		{
			name: "market SELL - объём умножается на текущую цену",
			order: Order{
				Side:            SideSell,
				OrdType:         OrdTypeMarket,
				RequestedAmount: decimal.NewFromFloat(0.002),
			},
			price: decimal.NewFromInt(50000000),
			want:  decimal.NewFromInt(100000),
		},
		{
			name: "limit BUY - объём умножается на заявленную цену",
			order: Order{
				Side:            SideBuy,
				OrdType:         OrdTypeLimit,
				RequestedAmount: decimal.NewFromFloat(0.001),
				RequestedPrice:  decimal.NewNullDecimal(decimal.NewFromInt(60000000)),
			},
			price: decimal.NewFromInt(50000000),
			want:  decimal.NewFromInt(60000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.order.Notional(tt.price)
			if !got.Equal(tt.want) {
				t.Errorf("Notional: ожидали %s, получили %s", tt.want, got)
			}
		})
	}
}

// ============ Position Tests ============

func TestPosition_LossPct(t *testing.T) {
	p := Position{
		Market:      "KRW-BTC",
		Quantity:    decimal.NewFromFloat(0.5),
		AvgBuyPrice: decimal.NewFromInt(100000),
	}

	loss := p.LossPct(decimal.NewFromInt(97000))
	if !loss.Equal(decimal.NewFromInt(3)) {
		t.Errorf("LossPct: ожидали 3, получили %s", loss)
	}

	// рост цены даёт отрицательную просадку
	gain := p.LossPct(decimal.NewFromInt(110000))
	if !gain.Equal(decimal.NewFromInt(-10)) {
		t.Errorf("LossPct: ожидали -10, получили %s", gain)
	}

	flat := Position{Market: "KRW-ETH"}
	if !flat.LossPct(decimal.NewFromInt(100)).IsZero() {
		t.Error("LossPct пустой позиции должен быть 0")
	}
}

// ============ DailyStats Tests ============

func TestDailyStats_LossLimitBreached(t *testing.T) {
	limitPct := decimal.NewFromInt(5)

	tests := []struct {
		name     string
		starting decimal.Decimal
		realized decimal.Decimal
		want     bool
	}{
		{"убыток меньше лимита", decimal.NewFromInt(1000000), decimal.NewFromInt(-49999), false},
		{"убыток ровно на лимите", decimal.NewFromInt(1000000), decimal.NewFromInt(-50000), true},
		{"убыток больше лимита", decimal.NewFromInt(1000000), decimal.NewFromInt(-51000), true},
		{"прибыльный день", decimal.NewFromInt(1000000), decimal.NewFromInt(30000), false},
		{"нулевой стартовый баланс - лимит не применяется", decimal.Zero, decimal.NewFromInt(-100000), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DailyStats{StartingBalance: tt.starting, RealizedPnl: tt.realized}
			if got := s.LossLimitBreached(limitPct); got != tt.want {
				t.Errorf("LossLimitBreached: ожидали %v, получили %v", tt.want, got)
			}
		})
	}
}

// ============ RiskParams Tests ============

func TestRiskParams_Validate(t *testing.T) {
	valid := DefaultRiskParams()
	if err := valid.Validate(); err != nil {
		t.Errorf("параметры по умолчанию должны проходить валидацию: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RiskParams)
	}{
		{"min_pct больше max_pct", func(p *RiskParams) {
			p.PositionSizeMinPct = decimal.NewFromInt(30)
			p.PositionSizeMaxPct = decimal.NewFromInt(20)
		}},
		{"отрицательный min_pct", func(p *RiskParams) {
			p.PositionSizeMinPct = decimal.NewFromInt(-1)
		}},
		{"нулевой stop_loss", func(p *RiskParams) {
			p.StopLossPct = decimal.Zero
		}},
		{"daily_loss_limit больше 100", func(p *RiskParams) {
			p.DailyLossLimitPct = decimal.NewFromInt(101)
		}},
		{"confidence больше 1", func(p *RiskParams) {
			p.MinConfidence = decimal.NewFromFloat(1.5)
		}},
		{"нулевой order_max_krw", func(p *RiskParams) {
			p.OrderMaxKRW = decimal.Zero
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultRiskParams()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("ожидали ошибку валидации, получили nil")
			}
		})
	}
}

// ============ Signal Tests ============

func TestSignal_Actionable(t *testing.T) {
	for _, tt := range []struct {
		sigType string
		want    bool
	}{
		{SignalBuy, true},
		{SignalSell, true},
		{SignalHold, false},
	} {
		s := Signal{SignalType: tt.sigType}
		if got := s.Actionable(); got != tt.want {
			t.Errorf("Actionable(%s): ожидали %v, получили %v", tt.sigType, tt.want, got)
		}
	}
}
