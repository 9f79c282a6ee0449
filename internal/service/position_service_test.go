package service

import (
	"errors"
	"testing"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

func TestPositionServiceGetPositionWithPrice(t *testing.T) {
	store := NewMockPositionStore()
	store.add(&models.Position{Market: "KRW-BTC", Quantity: d("0.5"), AvgBuyPrice: d("100000")})

	quoter := NewMockMarketQuoter()
	quoter.setPrice("KRW-BTC", "110000")

	svc := NewPositionService(store, quoter)

	view, err := svc.GetPosition("krw-btc")
	if err != nil {
		t.Fatalf("GetPosition returned error: %v", err)
	}

	if !view.HasPrice {
		t.Fatal("expected HasPrice with a known market price")
	}
	if !view.CurrentPrice.Equal(d("110000")) {
		t.Errorf("current price = %s, want 110000", view.CurrentPrice)
	}
	// (110000 - 100000) * 0.5 = 5000
	if !view.UnrealizedPnl.Equal(d("5000")) {
		t.Errorf("unrealized pnl = %s, want 5000", view.UnrealizedPnl)
	}
	if !view.UnrealizedPnlPct.Equal(d("10")) {
		t.Errorf("unrealized pnl pct = %s, want 10", view.UnrealizedPnlPct)
	}
}

func TestPositionServiceGetPositionWithoutPrice(t *testing.T) {
	store := NewMockPositionStore()
	store.add(&models.Position{Market: "KRW-BTC", Quantity: d("0.5"), AvgBuyPrice: d("100000")})

	svc := NewPositionService(store, NewMockMarketQuoter())

	view, err := svc.GetPosition("KRW-BTC")
	if err != nil {
		t.Fatalf("GetPosition returned error: %v", err)
	}

	if view.HasPrice {
		t.Error("HasPrice must be false without a collected price")
	}
	if !view.UnrealizedPnl.IsZero() {
		t.Errorf("unrealized pnl = %s, want 0 without a price", view.UnrealizedPnl)
	}
}

func TestPositionServiceEmptyPositionSkipsPnl(t *testing.T) {
	store := NewMockPositionStore()
	store.add(&models.Position{Market: "KRW-BTC", Quantity: d("0"), AvgBuyPrice: d("0")})

	quoter := NewMockMarketQuoter()
	quoter.setPrice("KRW-BTC", "110000")

	svc := NewPositionService(store, quoter)

	view, err := svc.GetPosition("KRW-BTC")
	if err != nil {
		t.Fatalf("GetPosition returned error: %v", err)
	}

	if !view.HasPrice {
		t.Error("price is known, HasPrice must be true")
	}
	if !view.UnrealizedPnl.IsZero() {
		t.Errorf("unrealized pnl = %s, want 0 for an empty position", view.UnrealizedPnl)
	}
}

func TestPositionServiceGetPositionNotFound(t *testing.T) {
	svc := NewPositionService(NewMockPositionStore(), NewMockMarketQuoter())

	if _, err := svc.GetPosition("KRW-BTC"); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("error = %v, want ErrPositionNotFound", err)
	}
	if _, err := svc.GetPosition("not-a-market"); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("error = %v, want ErrPositionNotFound for malformed market", err)
	}
}

func TestPositionServiceGetPositions(t *testing.T) {
	store := NewMockPositionStore()
	store.add(&models.Position{Market: "KRW-BTC", Quantity: d("1"), AvgBuyPrice: d("100000")})
	store.add(&models.Position{Market: "KRW-ETH", Quantity: d("2"), AvgBuyPrice: d("5000")})

	quoter := NewMockMarketQuoter()
	quoter.setPrice("KRW-BTC", "90000")

	svc := NewPositionService(store, quoter)

	views, err := svc.GetPositions()
	if err != nil {
		t.Fatalf("GetPositions returned error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d positions, want 2", len(views))
	}

	// KRW-BTC идёт первым (сортировка по рынку), цена известна, убыток
	if !views[0].UnrealizedPnl.Equal(d("-10000")) {
		t.Errorf("KRW-BTC pnl = %s, want -10000", views[0].UnrealizedPnl)
	}
	// KRW-ETH без цены
	if views[1].HasPrice {
		t.Error("KRW-ETH must have no price")
	}
}
