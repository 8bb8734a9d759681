package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLUnitOfWork はdatabase/sqlトランザクションによるUnitOfWorkの実装。
// ビジネス変更のコミットと監査レコードの書き込みを1つの原子的な単位に
// まとめるために使用する。どちらかが失敗すれば両方ロールバックされ、
// 監査されていない変更がコミットされることはない。
type SQLUnitOfWork struct {
	db *sql.DB
}

// NewSQLUnitOfWork はSQLUnitOfWorkを生成する。
func NewSQLUnitOfWork(db *sql.DB) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db}
}

// Within は1つのトランザクション内でfnを実行する。
func (u *SQLUnitOfWork) Within(ctx context.Context, fn func(q Querier) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ UnitOfWork = (*SQLUnitOfWork)(nil)
