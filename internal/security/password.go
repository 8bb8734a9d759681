// Package security は資格情報の保護機能を提供する。
//
// PasswordHasher はbcryptによる適応型ソルト付きハッシュを提供する。
// 同一パスワードでも呼び出しごとに異なるダイジェストを生成し（ソルトは毎回新規）、
// 検証はダイジェストに埋め込まれたソルトとコストで再計算して行う。
package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher はパスワードの一方向ハッシュ化と検証を行う。
// コストファクタは起動時に設定から注入され、以後変更されない。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// costがbcryptの許容範囲外の場合はbcrypt.DefaultCostに丸める。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash はパスワードをbcryptでハッシュ化したダイジェストを返す。
func (h *PasswordHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify はパスワードがダイジェストと一致するかを返す。
// bcryptの比較は定数時間で行われる。不正な形式のダイジェストは
// エラーを発生させずfalseを返す。
func (h *PasswordHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
