package model

import (
	"fmt"
	"time"
)

// ActionType は監査対象アクションの種別を表す閉じた列挙型。
type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
	ActionLogin  ActionType = "LOGIN"
	ActionLogout ActionType = "LOGOUT"
)

// ParseActionType は文字列をActionTypeに変換する。未知の値はエラーを返す。
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout:
		return ActionType(s), nil
	default:
		return "", fmt.Errorf("unknown action type: %q", s)
	}
}

// Valid はActionTypeが定義済みの値であるかを返す。
func (a ActionType) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout:
		return true
	}
	return false
}

// AuditRecord は監査証跡の1レコードを表す。
// 一度書き込まれた後は更新も削除もされない追記専用のデータ。
// OldValues/NewValuesには変更された公開フィールドの差分のみを入れ、
// パスワードハッシュ等の秘匿情報は決して含めない。
type AuditRecord struct {
	ID         int64
	UserID     int64
	ActionType ActionType
	TableName  string
	RecordID   *int64
	OldValues  map[string]any
	NewValues  map[string]any
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// 監査対象テーブル名。
const (
	AuditTableUsers         = "users"
	AuditTableLedgerEntries = "ledger_entries"
)
