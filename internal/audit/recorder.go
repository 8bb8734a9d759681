// Package audit は監査証跡の記録と照会を提供する。
//
// 監査レコードは追記専用であり、成功した全ての変更操作
// （LOGIN/LOGOUTを含む）につき正確に1件書き込まれる。
package audit

import (
	"context"
	"fmt"

	"github.com/hitoshi/ledgerbook/internal/model"
	"github.com/hitoshi/ledgerbook/internal/repository"
)

// Origin はリクエストの発信元情報を表す。
type Origin struct {
	IPAddress string
	UserAgent string
}

// Entry は記録する監査イベントの内容。
// OldValues/NewValuesには変更された公開フィールドのみを入れること。
// パスワード変更は真偽値マーカー（password_changed）のみを記録し、
// ハッシュ値は決して含めない。
type Entry struct {
	ActorID   int64
	Action    model.ActionType
	TableName string
	RecordID  *int64
	OldValues map[string]any
	NewValues map[string]any
	Origin    Origin
}

// Recorder は監査レコードを書き込む。
type Recorder struct {
	repo repository.AuditRepository
}

// NewRecorder はRecorderを生成する。
func NewRecorder(repo repository.AuditRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Record は監査レコードを無条件に1件追記する。
// リトライは行わず、失敗はそのまま伝播する。qにビジネス変更と同じ
// トランザクションを渡すことで、変更と監査が原子的にコミットされる。
// 呼び出しは変更が確定した後の状態（更新後のタイムスタンプ等）を渡すこと。
func (r *Recorder) Record(ctx context.Context, q repository.Querier, e Entry) (*model.AuditRecord, error) {
	if !e.Action.Valid() {
		return nil, fmt.Errorf("invalid action type: %q", e.Action)
	}

	record := &model.AuditRecord{
		UserID:     e.ActorID,
		ActionType: e.Action,
		TableName:  e.TableName,
		RecordID:   e.RecordID,
		OldValues:  e.OldValues,
		NewValues:  e.NewValues,
		IPAddress:  e.Origin.IPAddress,
		UserAgent:  e.Origin.UserAgent,
	}

	if err := r.repo.Insert(ctx, q, record); err != nil {
		return nil, fmt.Errorf("failed to record audit entry: %w", err)
	}

	return record, nil
}
