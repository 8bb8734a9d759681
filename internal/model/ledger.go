package model

import (
	"fmt"
	"time"
)

// EntryType は台帳エントリの資金の流れの方向を表す閉じた列挙型。
type EntryType string

const (
	// EntryCredit は入金を表す。
	EntryCredit EntryType = "credit"
	// EntryDebit は出金を表す。
	EntryDebit EntryType = "debit"
)

// ParseEntryType は文字列をEntryTypeに変換する。未知の値はエラーを返す。
func ParseEntryType(s string) (EntryType, error) {
	switch EntryType(s) {
	case EntryCredit, EntryDebit:
		return EntryType(s), nil
	default:
		return "", fmt.Errorf("unknown entry type: %q", s)
	}
}

// Valid はEntryTypeが定義済みの値であるかを返す。
func (t EntryType) Valid() bool {
	return t == EntryCredit || t == EntryDebit
}

// LedgerEntry は台帳の金銭記録を表す。
// AmountはDB上のNUMERIC(10,2)を文字列として保持し、浮動小数の誤差を避ける。
// 削除は物理削除ではなくIsDeletedフラグによるソフトデリート。
type LedgerEntry struct {
	ID          int64
	Amount      string
	Description string
	EntryType   EntryType
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IsDeleted   bool
}

// Balance は未削除エントリ全体の収支集計を表す。
// Balance = TotalCredits - TotalDebits。
type Balance struct {
	Balance      string
	TotalCredits string
	TotalDebits  string
}
