// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Role はユーザーの権限クラスを表す閉じた列挙型。
// 文字列比較をビジネスロジック内に散らさないため、境界でParseRoleを通して検証する。
type Role string

const (
	// RoleAdmin は全ての管理操作を許可するロール。
	RoleAdmin Role = "admin"
	// RoleViewer は閲覧専用ロール。昇格された操作は持たない。
	RoleViewer Role = "viewer"
)

// ParseRole は文字列をRoleに変換する。未知の値はエラーを返す。
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleViewer:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// Valid はRoleが定義済みの値であるかを返す。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleViewer
}

// User はサービス利用ユーザーを表す。
// usernameとemailはユーザー全体で一意。is_active=falseのユーザーは
// 資格情報が正しくても認証されない。
type User struct {
	ID           int64
	Username     string
	Email        string
	FullName     string
	Role         Role
	IsActive     bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
