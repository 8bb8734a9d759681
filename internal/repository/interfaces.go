// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/ledgerbook/internal/model"
)

// Querier は*sql.DBと*sql.Txの共通操作を表す。
// 書き込み系メソッドはQuerierを受け取り、ビジネス変更と監査レコードを
// 同一トランザクション内で実行できるようにする。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UnitOfWork は1つのトランザクション境界内で関数を実行する。
// fnがエラーを返した場合はロールバックし、そうでなければコミットする。
type UnitOfWork interface {
	Within(ctx context.Context, fn func(q Querier) error) error
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はusernameでユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// List は全ユーザーをID昇順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// UsernameTaken はexcludeID以外のユーザーがusernameを使用中かを返す。
	UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error)

	// EmailTaken はexcludeID以外のユーザーがemailを使用中かを返す。
	EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error)

	// Create はユーザーを作成し、IDとタイムスタンプをuserに書き戻す。
	Create(ctx context.Context, q Querier, user *model.User) error

	// Update はユーザーの可変フィールドを更新し、updated_atを書き戻す。
	Update(ctx context.Context, q Querier, user *model.User) error
}

// EntryFilter は台帳エントリ一覧の絞り込み条件。
type EntryFilter struct {
	EntryType *model.EntryType
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PerPage   int
}

// EntryRepository は台帳エントリの永続化インターフェース。
// ソフトデリート済みのエントリは読み取り系メソッドから除外される。
type EntryRepository interface {
	// FindByID は指定IDの未削除エントリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.LedgerEntry, error)

	// List は条件に合致する未削除エントリをcreated_at降順で返す。
	// 2番目の戻り値はページング前の総件数。
	List(ctx context.Context, filter EntryFilter) ([]*model.LedgerEntry, int, error)

	// Balance は未削除エントリ全体の収支を集計する。
	Balance(ctx context.Context) (*model.Balance, error)

	// Create はエントリを作成し、IDとタイムスタンプをentryに書き戻す。
	Create(ctx context.Context, q Querier, entry *model.LedgerEntry) error

	// Update はエントリの金額・説明・種別を更新し、updated_atを書き戻す。
	Update(ctx context.Context, q Querier, entry *model.LedgerEntry) error

	// SoftDelete はエントリをソフトデリートする。
	SoftDelete(ctx context.Context, q Querier, id int64) error
}

// AuditFilter は監査ログ一覧の絞り込み条件。
type AuditFilter struct {
	ActionType *model.ActionType
	TableName  string
	UserID     *int64
	StartDate  *time.Time
	EndDate    *time.Time
	Search     string
	Page       int
	PerPage    int
}

// AuditRepository は監査レコードの永続化インターフェース。
// 追記と読み取りのみを提供する。更新・削除操作は存在しない。
type AuditRepository interface {
	// Insert は監査レコードを追記し、IDとcreated_atをrecordに書き戻す。
	Insert(ctx context.Context, q Querier, record *model.AuditRecord) error

	// FindByID は指定IDの監査レコードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.AuditRecord, error)

	// List は条件に合致する監査レコードをcreated_at降順で返す。
	// 2番目の戻り値はページング前の総件数。
	List(ctx context.Context, filter AuditFilter) ([]*model.AuditRecord, int, error)
}
