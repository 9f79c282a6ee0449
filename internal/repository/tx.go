package repository

import (
	"database/sql"
	"fmt"
)

// WithinTx выполняет fn внутри транзакции.
// Ошибка fn откатывает транзакцию целиком, при успехе выполняется commit.
// Применение ордера к позиции и дневной статистике проходит только здесь:
// частичных записей не бывает.
func WithinTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
