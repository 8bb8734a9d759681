package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/hitoshi/ledgerbook/internal/model"
)

// PostgresEntryRepo はPostgreSQLを使用した台帳エントリリポジトリ。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

const entryColumns = `id, amount, description, entry_type, created_by, created_at, updated_at, is_deleted`

func scanEntry(row interface{ Scan(dest ...any) error }) (*model.LedgerEntry, error) {
	entry := &model.LedgerEntry{}
	var entryType string
	err := row.Scan(
		&entry.ID, &entry.Amount, &entry.Description, &entryType,
		&entry.CreatedBy, &entry.CreatedAt, &entry.UpdatedAt, &entry.IsDeleted,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := model.ParseEntryType(entryType)
	if err != nil {
		return nil, fmt.Errorf("stored entry type is invalid: %w", err)
	}
	entry.EntryType = parsed

	return entry, nil
}

// FindByID は指定IDの未削除エントリを取得する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) FindByID(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 AND is_deleted = FALSE`,
		id,
	)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry by ID: %w", err)
	}

	return entry, nil
}

// buildEntryWhere はフィルタからWHERE句とバインド引数を構築する。
// ソフトデリート済みエントリは常に除外する。
func buildEntryWhere(filter EntryFilter) (string, []any) {
	where := `WHERE is_deleted = FALSE`
	var args []any

	if filter.EntryType != nil {
		args = append(args, string(*filter.EntryType))
		where += ` AND entry_type = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += ` AND description ILIKE $` + strconv.Itoa(len(args))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where += ` AND created_at <= $` + strconv.Itoa(len(args))
	}

	return where, args
}

// List は条件に合致する未削除エントリをcreated_at降順で返す。
func (r *PostgresEntryRepo) List(ctx context.Context, filter EntryFilter) ([]*model.LedgerEntry, int, error) {
	where, args := buildEntryWhere(filter)

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries `+where,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	limit := filter.PerPage
	if limit <= 0 {
		limit = 10
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	args = append(args, limit, offset)
	query := `SELECT ` + entryColumns + ` FROM ledger_entries ` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) +
		` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, total, nil
}

// Balance は未削除エントリ全体の収支を集計する。
// 合計はSQL側のNUMERICで計算し、浮動小数の誤差を避ける。
func (r *PostgresEntryRepo) Balance(ctx context.Context) (*model.Balance, error) {
	b := &model.Balance{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(amount) FILTER (WHERE entry_type = 'credit'), 0)::text,
		   COALESCE(SUM(amount) FILTER (WHERE entry_type = 'debit'), 0)::text,
		   (COALESCE(SUM(amount) FILTER (WHERE entry_type = 'credit'), 0)
		    - COALESCE(SUM(amount) FILTER (WHERE entry_type = 'debit'), 0))::text
		 FROM ledger_entries
		 WHERE is_deleted = FALSE`,
	).Scan(&b.TotalCredits, &b.TotalDebits, &b.Balance)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate balance: %w", err)
	}
	return b, nil
}

// Create はエントリを作成し、IDとタイムスタンプをentryに書き戻す。
func (r *PostgresEntryRepo) Create(ctx context.Context, q Querier, entry *model.LedgerEntry) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO ledger_entries (amount, description, entry_type, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, amount, created_at, updated_at`,
		entry.Amount, entry.Description, string(entry.EntryType), entry.CreatedBy,
	).Scan(&entry.ID, &entry.Amount, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// Update はエントリの金額・説明・種別を更新し、updated_atを書き戻す。
func (r *PostgresEntryRepo) Update(ctx context.Context, q Querier, entry *model.LedgerEntry) error {
	err := q.QueryRowContext(ctx,
		`UPDATE ledger_entries
		 SET amount = $1, description = $2, entry_type = $3, updated_at = now()
		 WHERE id = $4 AND is_deleted = FALSE
		 RETURNING amount, updated_at`,
		entry.Amount, entry.Description, string(entry.EntryType), entry.ID,
	).Scan(&entry.Amount, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("entry not found: %d", entry.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return nil
}

// SoftDelete はエントリをソフトデリートする。物理削除は行わない。
func (r *PostgresEntryRepo) SoftDelete(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx,
		`UPDATE ledger_entries SET is_deleted = TRUE, updated_at = now()
		 WHERE id = $1 AND is_deleted = FALSE`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft-delete entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("entry not found: %d", id)
	}
	return nil
}

// compile-time interface check
var _ EntryRepository = (*PostgresEntryRepo)(nil)
