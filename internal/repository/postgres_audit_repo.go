package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hitoshi/ledgerbook/internal/model"
)

// PostgresAuditRepo はPostgreSQLを使用した監査レコードリポジトリ。
// audit_logsテーブルは追記専用であり、この型はUPDATE/DELETE文を持たない。
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// marshalValues はスナップショットをJSONBカラム用に変換する。nilはNULLになる。
func marshalValues(values map[string]any) (any, error) {
	if values == nil {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit values: %w", err)
	}
	return data, nil
}

// Insert は監査レコードを追記し、IDとcreated_atをrecordに書き戻す。
// リトライは行わない。失敗は呼び出し側に伝播し、周囲のトランザクションを
// ロールバックさせる。
func (r *PostgresAuditRepo) Insert(ctx context.Context, q Querier, record *model.AuditRecord) error {
	oldValues, err := marshalValues(record.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalValues(record.NewValues)
	if err != nil {
		return err
	}

	err = q.QueryRowContext(ctx,
		`INSERT INTO audit_logs (user_id, action_type, table_name, record_id, old_values, new_values, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		record.UserID, string(record.ActionType), record.TableName, record.RecordID,
		oldValues, newValues, record.IPAddress, record.UserAgent,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

func scanAuditRecord(row interface{ Scan(dest ...any) error }) (*model.AuditRecord, error) {
	record := &model.AuditRecord{}
	var (
		actionType string
		oldValues  []byte
		newValues  []byte
		ipAddress  sql.NullString
		userAgent  sql.NullString
	)
	err := row.Scan(
		&record.ID, &record.UserID, &actionType, &record.TableName, &record.RecordID,
		&oldValues, &newValues, &ipAddress, &userAgent, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := model.ParseActionType(actionType)
	if err != nil {
		return nil, fmt.Errorf("stored action type is invalid: %w", err)
	}
	record.ActionType = parsed

	if len(oldValues) > 0 {
		if err := json.Unmarshal(oldValues, &record.OldValues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal old values: %w", err)
		}
	}
	if len(newValues) > 0 {
		if err := json.Unmarshal(newValues, &record.NewValues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal new values: %w", err)
		}
	}
	record.IPAddress = ipAddress.String
	record.UserAgent = userAgent.String

	return record, nil
}

const auditColumns = `id, user_id, action_type, table_name, record_id, old_values, new_values, ip_address, user_agent, created_at`

// FindByID は指定IDの監査レコードを取得する。見つからない場合はnilを返す。
func (r *PostgresAuditRepo) FindByID(ctx context.Context, id int64) (*model.AuditRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`,
		id,
	)

	record, err := scanAuditRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find audit record by ID: %w", err)
	}

	return record, nil
}

// buildAuditWhere はフィルタからWHERE句とバインド引数を構築する。
func buildAuditWhere(filter AuditFilter) (string, []any) {
	where := `WHERE TRUE`
	var args []any

	if filter.ActionType != nil {
		args = append(args, string(*filter.ActionType))
		where += ` AND action_type = $` + strconv.Itoa(len(args))
	}
	if filter.TableName != "" {
		args = append(args, filter.TableName)
		where += ` AND table_name = $` + strconv.Itoa(len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where += ` AND user_id = $` + strconv.Itoa(len(args))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (action_type ILIKE $` + n + ` OR table_name ILIKE $` + n + ` OR ip_address ILIKE $` + n + `)`
	}

	return where, args
}

// List は条件に合致する監査レコードをcreated_at降順で返す。
func (r *PostgresAuditRepo) List(ctx context.Context, filter AuditFilter) ([]*model.AuditRecord, int, error) {
	where, args := buildAuditWhere(filter)

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs `+where,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
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
	query := `SELECT ` + auditColumns + ` FROM audit_logs ` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) +
		` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*model.AuditRecord
	for rows.Next() {
		record, err := scanAuditRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate audit records: %w", err)
	}

	return records, total, nil
}

// compile-time interface check
var _ AuditRepository = (*PostgresAuditRepo)(nil)
