package security

import (
	"unicode"

	"github.com/hitoshi/ledgerbook/internal/model"
)

// パスワードポリシー: 8文字以上、大文字・小文字・数字を各1文字以上含む。
const minPasswordLength = 8

// ValidatePassword はパスワードが複雑性ポリシーを満たすかを検査する。
// 違反時はValidationErrorを返す。
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return model.NewValidationError("Password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		return model.NewValidationError("Password must contain at least one uppercase letter")
	}
	if !hasLower {
		return model.NewValidationError("Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		return model.NewValidationError("Password must contain at least one digit")
	}

	return nil
}
