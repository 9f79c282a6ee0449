package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// ============================================================
// PositionRepository Tests
// ============================================================

func positionRow(market, quantity, avgPrice string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "market", "quantity", "avg_buy_price", "updated_at"}).
		AddRow(1, market, quantity, avgPrice, time.Now())
}

func TestPositionRepositoryGetByMarket(t *testing.T) {
	tests := []struct {
		name        string
		market      string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name:   "success",
			market: "KRW-BTC",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, market, quantity, avg_buy_price, updated_at FROM positions WHERE market = \$1`).
					WithArgs("KRW-BTC").
					WillReturnRows(positionRow("KRW-BTC", "0.005", "49000000"))
			},
			expectError: nil,
		},
		{
			name:   "not found",
			market: "KRW-DOGE",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM positions WHERE market = \$1`).
					WithArgs("KRW-DOGE").
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrPositionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewPositionRepository(db)
			position, err := repo.GetByMarket(tt.market)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if position.Market != tt.market {
					t.Errorf("market = %s, want %s", position.Market, tt.market)
				}
				if !position.Quantity.Equal(d("0.005")) {
					t.Errorf("quantity = %s, want 0.005", position.Quantity)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestPositionRepositoryGetAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "market", "quantity", "avg_buy_price", "updated_at"}).
		AddRow(1, "KRW-BTC", "0.005", "49000000", time.Now()).
		AddRow(2, "KRW-ETH", "0", "0", time.Now())

	mock.ExpectQuery(`SELECT .+ FROM positions ORDER BY market`).
		WillReturnRows(rows)

	repo := NewPositionRepository(db)
	positions, err := repo.GetAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}
	if !positions[1].IsFlat() {
		t.Error("нулевая позиция должна быть flat")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPositionRepositoryGetOrCreateForUpdateTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO positions \(market, updated_at\) VALUES \(\$1, \$2\) ON CONFLICT \(market\) DO NOTHING`).
		WithArgs("KRW-BTC", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM positions WHERE market = \$1 FOR UPDATE`).
		WithArgs("KRW-BTC").
		WillReturnRows(positionRow("KRW-BTC", "0.005", "49000000"))
	mock.ExpectCommit()

	repo := NewPositionRepository(db)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	position, err := repo.GetOrCreateForUpdateTx(tx, "KRW-BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if position.Market != "KRW-BTC" {
		t.Errorf("market = %s, want KRW-BTC", position.Market)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPositionRepositoryUpdateTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	position := &models.Position{
		ID:          1,
		Market:      "KRW-BTC",
		Quantity:    d("0.007"),
		AvgBuyPrice: d("49500000"),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE positions SET quantity = \$1, avg_buy_price = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs(d("0.007"), d("49500000"), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPositionRepository(db)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if err := repo.UpdateTx(tx, position); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPositionRepositoryUpdateTxNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE positions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewPositionRepository(db)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	err = repo.UpdateTx(tx, &models.Position{ID: 999, Quantity: d("1"), AvgBuyPrice: d("1")})
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
